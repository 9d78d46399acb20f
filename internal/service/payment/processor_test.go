package payment

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/events"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
)

// stubGateway возвращает заранее заданный исход и считает обращения.
type stubGateway struct {
	mu     sync.Mutex
	result domain.PaymentResult
	calls  int
}

func (g *stubGateway) Process(ctx context.Context, req ProcessRequest) domain.PaymentResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	result := g.result
	result.AmountMinor = req.AmountMinor
	result.Currency = req.Currency
	return result
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type processorFixture struct {
	store    *memory.Store
	payments domain.PaymentRepository
	outbox   domain.OutboxRepository
	gateway  *stubGateway
	proc     *Processor
}

func newProcessorFixture(t *testing.T, result domain.PaymentResult) *processorFixture {
	t.Helper()
	store := memory.NewStore()
	payments := memory.NewPaymentRepository(store)
	outbox := memory.NewOutboxRepository(store)
	gateway := &stubGateway{result: result}

	return &processorFixture{
		store:    store,
		payments: payments,
		outbox:   outbox,
		gateway:  gateway,
		proc:     NewProcessor(store, payments, outbox, gateway, nil, nil),
	}
}

func (f *processorFixture) claimAll(t *testing.T) []domain.OutboxMessage {
	t.Helper()
	claimed, err := f.outbox.ClaimPending(context.Background(), 100, time.Minute)
	if err != nil {
		t.Fatalf("claim outbox: %v", err)
	}
	return claimed
}

func confirmedEvent() events.OrderConfirmed {
	return events.OrderConfirmed{
		OrderID:         "o-1",
		TotalPriceMinor: 300,
		Currency:        "RUB",
		Products:        []events.ProductLine{{ProductID: "p-1", Quantity: 3}},
		CorrelationID:   "corr-1",
	}
}

func TestProcessorSuccessEmitsPaymentSucceeded(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, domain.PaymentResult{
		Status:        domain.PaymentStatusSucceeded,
		TransactionID: "txn-1",
		Attempts:      1,
		ProcessedAt:   time.Now(),
	})

	if err := f.proc.HandleOrderConfirmed(ctx, confirmedEvent()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	payment, err := f.payments.Get(ctx, "o-1")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != domain.PaymentStatusSucceeded || payment.TransactionID != "txn-1" {
		t.Errorf("payment record wrong: %+v", payment)
	}
	if payment.AmountMinor != 300 {
		t.Errorf("amount must follow the order, got %d", payment.AmountMinor)
	}

	claimed := f.claimAll(t)
	if len(claimed) != 1 || claimed[0].EventType != events.TypePaymentSucceeded {
		t.Fatalf("expected payment.succeeded, got %+v", claimed)
	}
	if claimed[0].EventID != "payment-succeeded:o-1" {
		t.Errorf("event id must be deterministic, got %q", claimed[0].EventID)
	}
}

func TestProcessorFailureCarriesProductsForCompensation(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, domain.PaymentResult{
		Status:    domain.PaymentStatusFailed,
		Reason:    "payment failed: PAYMENT_DECLINED",
		ErrorCode: domain.PaymentErrDeclined,
		Attempts:  1,
	})

	if err := f.proc.HandleOrderConfirmed(ctx, confirmedEvent()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	claimed := f.claimAll(t)
	if len(claimed) != 1 || claimed[0].EventType != events.TypePaymentFailed {
		t.Fatalf("expected payment.failed, got %+v", claimed)
	}

	var payload events.PaymentOutcome
	if err := json.Unmarshal(claimed[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(payload.Products) != 1 || payload.Products[0].ProductID != "p-1" {
		t.Errorf("failed event must carry the order lines: %+v", payload.Products)
	}
	if !payload.Compensation {
		t.Error("failed event must be flagged as compensation")
	}
	if payload.ErrorCode != string(domain.PaymentErrDeclined) {
		t.Errorf("unexpected error code %q", payload.ErrorCode)
	}
}

func TestProcessorExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, domain.PaymentResult{
		Status:        domain.PaymentStatusSucceeded,
		TransactionID: "txn-1",
		Attempts:      1,
		ProcessedAt:   time.Now(),
	})

	event := confirmedEvent()
	for i := 0; i < 3; i++ {
		if err := f.proc.HandleOrderConfirmed(ctx, event); err != nil {
			t.Fatalf("delivery #%d: %v", i, err)
		}
	}

	if f.gateway.callCount() != 1 {
		t.Errorf("gateway must be charged once, got %d calls", f.gateway.callCount())
	}
	if claimed := f.claimAll(t); len(claimed) != 1 {
		t.Errorf("exactly one terminal event expected, got %d", len(claimed))
	}
}
