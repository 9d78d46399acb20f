package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/events"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
)

type sagaFixture struct {
	store  *memory.Store
	orders domain.OrderRepository
	outbox domain.OutboxRepository
	saga   Orchestrator
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()
	store := memory.NewStore()
	orders := memory.NewOrderRepository(store)
	outbox := memory.NewOutboxRepository(store)
	catalogue := memory.NewCatalogueRepository(store)
	timeline := memory.NewTimelineRepository(store)

	ctx := context.Background()
	err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		return catalogue.Upsert(ctx, tx, domain.Product{ProductID: "p-1", Name: "widget", PriceMinor: 100})
	})
	if err != nil {
		t.Fatalf("seed catalogue: %v", err)
	}

	return &sagaFixture{
		store:  store,
		orders: orders,
		outbox: outbox,
		saga:   NewOrchestrator(store, orders, outbox, catalogue, timeline, nil, nil),
	}
}

// claimAll выкачивает из outbox всё, что готово к публикации.
func (f *sagaFixture) claimAll(t *testing.T) []domain.OutboxMessage {
	t.Helper()
	claimed, err := f.outbox.ClaimPending(context.Background(), 100, time.Minute)
	if err != nil {
		t.Fatalf("claim outbox: %v", err)
	}
	return claimed
}

func TestCreateOrderResolvesPriceFromCatalogue(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	order, err := f.saga.CreateOrder(ctx, "u-1", "RUB", []domain.OrderLine{
		{ProductID: "p-1", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("new order must be pending, got %s", order.Status)
	}
	if order.TotalPriceMinor != 300 {
		t.Errorf("price must resolve from catalogue, got %d", order.TotalPriceMinor)
	}
	if order.CorrelationID == "" {
		t.Error("order must get a correlation id")
	}

	claimed := f.claimAll(t)
	if len(claimed) != 1 || claimed[0].EventType != events.TypeOrderCreated {
		t.Fatalf("expected one order.created in outbox, got %+v", claimed)
	}
	if claimed[0].AggregateID != order.ID {
		t.Errorf("outbox aggregate id mismatch: %s", claimed[0].AggregateID)
	}
}

func TestCreateOrderRejectsUnknownProduct(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	_, err := f.saga.CreateOrder(ctx, "u-1", "RUB", []domain.OrderLine{
		{ProductID: "ghost", Quantity: 1},
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}

	_, err = f.saga.CreateOrder(ctx, "u-1", "RUB", []domain.OrderLine{
		{ProductID: "p-1", Quantity: 0},
	})
	if !errors.Is(err, domain.ErrLineQuantityInvalid) {
		t.Errorf("expected ErrLineQuantityInvalid, got %v", err)
	}
}

func TestHappyPathToPaid(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	order, err := f.saga.CreateOrder(ctx, "u-1", "RUB", []domain.OrderLine{{ProductID: "p-1", Quantity: 1}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	f.claimAll(t)

	if err := f.saga.HandleInventoryReserved(ctx, events.InventoryResult{OrderID: order.ID}); err != nil {
		t.Fatalf("inventory reserved: %v", err)
	}
	got, _ := f.saga.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}

	claimed := f.claimAll(t)
	if len(claimed) != 1 || claimed[0].EventType != events.TypeOrderConfirmed {
		t.Fatalf("expected order.confirmed in outbox, got %+v", claimed)
	}

	if err := f.saga.HandlePaymentSucceeded(ctx, events.PaymentOutcome{OrderID: order.ID}); err != nil {
		t.Fatalf("payment succeeded: %v", err)
	}
	got, _ = f.saga.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusPaid {
		t.Errorf("expected paid, got %s", got.Status)
	}
}

func TestDuplicatePaymentSucceededIsAbsorbed(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	order, err := f.saga.CreateOrder(ctx, "u-1", "RUB", []domain.OrderLine{{ProductID: "p-1", Quantity: 1}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := f.saga.HandleInventoryReserved(ctx, events.InventoryResult{OrderID: order.ID}); err != nil {
		t.Fatalf("inventory reserved: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := f.saga.HandlePaymentSucceeded(ctx, events.PaymentOutcome{OrderID: order.ID}); err != nil {
			t.Fatalf("payment succeeded #%d: %v", i, err)
		}
	}

	got, _ := f.saga.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusPaid {
		t.Errorf("expected paid, got %s", got.Status)
	}
}

func TestPaymentFailedCancelsConfirmedOrder(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	order, err := f.saga.CreateOrder(ctx, "u-1", "RUB", []domain.OrderLine{{ProductID: "p-1", Quantity: 2}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := f.saga.HandleInventoryReserved(ctx, events.InventoryResult{OrderID: order.ID}); err != nil {
		t.Fatalf("inventory reserved: %v", err)
	}
	f.claimAll(t)

	if err := f.saga.HandlePaymentFailed(ctx, events.PaymentOutcome{OrderID: order.ID, Reason: "card declined"}); err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	got, _ := f.saga.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if got.CancellationReason != "card declined" {
		t.Errorf("unexpected cancellation reason %q", got.CancellationReason)
	}

	claimed := f.claimAll(t)
	if len(claimed) != 1 || claimed[0].EventType != events.TypeOrderCancelled {
		t.Fatalf("expected order.cancelled in outbox, got %+v", claimed)
	}

	// Поздний успех платежа после отмены игнорируется.
	if err := f.saga.HandlePaymentSucceeded(ctx, events.PaymentOutcome{OrderID: order.ID}); err != nil {
		t.Fatalf("late payment succeeded: %v", err)
	}
	got, _ = f.saga.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusCancelled {
		t.Errorf("terminal status must absorb late events, got %s", got.Status)
	}
}

func TestInventoryFailedCancelsPendingOrder(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	order, err := f.saga.CreateOrder(ctx, "u-1", "RUB", []domain.OrderLine{{ProductID: "p-1", Quantity: 1}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	f.claimAll(t)

	if err := f.saga.HandleInventoryFailed(ctx, events.InventoryResult{OrderID: order.ID, Reason: "insufficient stock"}); err != nil {
		t.Fatalf("inventory failed: %v", err)
	}

	got, _ := f.saga.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
}

func TestUnknownOrderIsTransient(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	err := f.saga.HandleInventoryReserved(ctx, events.InventoryResult{OrderID: "ghost"})
	if !domain.IsTransient(err) {
		t.Errorf("event ahead of order commit must be transient, got %v", err)
	}
}

func TestHandleSeckillWonCreatesConfirmedOrderOnce(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	win := events.SeckillWon{ProductID: "p-1", UserID: "u-1", PriceMinor: 4999}
	if err := f.saga.HandleSeckillWon(ctx, win); err != nil {
		t.Fatalf("seckill won: %v", err)
	}

	claimed := f.claimAll(t)
	if len(claimed) != 1 || claimed[0].EventType != events.TypeOrderConfirmed {
		t.Fatalf("expected order.confirmed in outbox, got %+v", claimed)
	}
	if claimed[0].EventID != "seckill-confirmed:p-1:u-1" {
		t.Errorf("event id must be deterministic, got %q", claimed[0].EventID)
	}

	order, err := f.saga.GetOrder(ctx, claimed[0].AggregateID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed || order.SaleChannel != domain.SaleChannelSeckill {
		t.Errorf("seckill order must start confirmed: %+v", order)
	}

	// Повторная доставка победы не создаёт второй заказ.
	if err := f.saga.HandleSeckillWon(ctx, win); err != nil {
		t.Fatalf("redelivered seckill won: %v", err)
	}
	if extra := f.claimAll(t); len(extra) != 0 {
		t.Errorf("duplicate win must not enqueue a second event, got %+v", extra)
	}
}

func TestHandleSeckillWonCurrency(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	win := events.SeckillWon{ProductID: "p-1", UserID: "u-1", PriceMinor: 4999, Currency: "KZT"}
	if err := f.saga.HandleSeckillWon(ctx, win); err != nil {
		t.Fatalf("seckill won: %v", err)
	}
	claimed := f.claimAll(t)
	order, err := f.saga.GetOrder(ctx, claimed[0].AggregateID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Currency != "KZT" {
		t.Errorf("order must carry the campaign currency, got %q", order.Currency)
	}

	// Событие без валюты получает валюту по умолчанию.
	if err := f.saga.HandleSeckillWon(ctx, events.SeckillWon{ProductID: "p-2", UserID: "u-2", PriceMinor: 100}); err != nil {
		t.Fatalf("seckill won: %v", err)
	}
	claimed = f.claimAll(t)
	order, err = f.saga.GetOrder(ctx, claimed[0].AggregateID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Currency != "RUB" {
		t.Errorf("missing currency must fall back to RUB, got %q", order.Currency)
	}
}

func TestSeckillCancellationReleasesSlot(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	if err := f.saga.HandleSeckillWon(ctx, events.SeckillWon{ProductID: "p-1", UserID: "u-1", PriceMinor: 4999}); err != nil {
		t.Fatalf("seckill won: %v", err)
	}
	claimed := f.claimAll(t)
	orderID := claimed[0].AggregateID

	if err := f.saga.HandlePaymentFailed(ctx, events.PaymentOutcome{OrderID: orderID, Reason: "card declined"}); err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	byType := map[string]domain.OutboxMessage{}
	for _, msg := range f.claimAll(t) {
		byType[msg.EventType] = msg
	}
	if _, ok := byType[events.TypeOrderCancelled]; !ok {
		t.Error("cancellation must emit order.cancelled")
	}
	release, ok := byType[events.TypeOrderSeckillRelease]
	if !ok {
		t.Fatal("cancellation of a seckill order must emit order.seckill.release")
	}
	if release.EventID != "seckill-release:"+orderID {
		t.Errorf("release event id must be deterministic, got %q", release.EventID)
	}
}

func TestTimelineRecordsLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)

	order, err := f.saga.CreateOrder(ctx, "u-1", "RUB", []domain.OrderLine{{ProductID: "p-1", Quantity: 1}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := f.saga.HandleInventoryReserved(ctx, events.InventoryResult{OrderID: order.ID}); err != nil {
		t.Fatalf("inventory reserved: %v", err)
	}

	timeline, err := f.saga.Timeline(ctx, order.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(timeline) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(timeline))
	}
	if timeline[0].Type != events.TypeOrderCreated {
		t.Errorf("first timeline event must be order.created, got %s", timeline[0].Type)
	}
}
