package memory

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

func TestOrderTransitionGuard(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOrderRepository(store)

	if err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		return repo.Create(ctx, tx, validOrder("o-1"))
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	transition := func(from []domain.OrderStatus, to domain.OrderStatus, reason string) bool {
		t.Helper()
		var applied bool
		err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
			var err error
			applied, err = repo.Transition(ctx, tx, "o-1", from, to, reason)
			return err
		})
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		return applied
	}

	if transition([]domain.OrderStatus{domain.OrderStatusConfirmed}, domain.OrderStatusPaid, "") {
		t.Error("transition from a non-matching status must be rejected")
	}
	if !transition([]domain.OrderStatus{domain.OrderStatusPending}, domain.OrderStatusConfirmed, "") {
		t.Fatal("pending to confirmed must apply")
	}
	if !transition([]domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed}, domain.OrderStatusCancelled, "payment declined") {
		t.Fatal("confirmed to cancelled must apply")
	}
	if transition([]domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed}, domain.OrderStatusPaid, "") {
		t.Error("terminal order must absorb further transitions")
	}

	order, err := repo.Get(ctx, "o-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", order.Status)
	}
	if order.CancellationReason != "payment declined" {
		t.Errorf("cancellation reason must be recorded, got %q", order.CancellationReason)
	}
}

func TestOrderTransitionMissingOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOrderRepository(store)

	err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		applied, err := repo.Transition(ctx, tx, "missing", []domain.OrderStatus{domain.OrderStatusPending}, domain.OrderStatusConfirmed, "")
		if err != nil {
			return err
		}
		if applied {
			t.Error("transition of a missing order must be rejected")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
}

func TestOrderCreateDefaultsSaleChannel(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOrderRepository(store)

	if err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		return repo.Create(ctx, tx, validOrder("o-1"))
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	order, err := repo.Get(ctx, "o-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.SaleChannel != domain.SaleChannelStandard {
		t.Errorf("sale channel must default to standard, got %q", order.SaleChannel)
	}
}
