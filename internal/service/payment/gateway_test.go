package payment

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

func TestGatewaySuccess(t *testing.T) {
	gateway := NewMockGateway(GatewayOptions{
		SuccessRate: 1,
		Rand:        rand.New(rand.NewSource(1)),
	})

	result := gateway.Process(context.Background(), ProcessRequest{
		OrderID:     "o-1",
		AmountMinor: 500,
		Currency:    "RUB",
	})
	if result.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.TransactionID == "" {
		t.Error("success must carry a transaction id")
	}
	if result.Attempts != 1 {
		t.Errorf("success on first roll must count 1 attempt, got %d", result.Attempts)
	}
	if result.AmountMinor != 500 || result.Currency != "RUB" {
		t.Errorf("result must echo the request: %+v", result)
	}
}

func TestGatewayTerminalDecline(t *testing.T) {
	// Нулевые доли: каждый бросок — терминальный отказ.
	gateway := NewMockGateway(GatewayOptions{
		SuccessRate:   0,
		TransientRate: 0,
		BaseDelay:     time.Millisecond,
		Rand:          rand.New(rand.NewSource(7)),
	})

	result := gateway.Process(context.Background(), ProcessRequest{OrderID: "o-1", AmountMinor: 100})
	if result.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected failure, got %+v", result)
	}
	if result.ErrorCode != domain.PaymentErrDeclined {
		t.Errorf("expected PAYMENT_DECLINED, got %s", result.ErrorCode)
	}
	if result.Retryable {
		t.Error("terminal decline must not be retryable")
	}
	if result.Attempts != 1 {
		t.Errorf("terminal decline must stop retries, got %d attempts", result.Attempts)
	}
}

func TestGatewayTransientExhaustsRetries(t *testing.T) {
	gateway := NewMockGateway(GatewayOptions{
		SuccessRate:   0,
		TransientRate: 1,
		MaxRetries:    3,
		BaseDelay:     time.Millisecond,
		Rand:          rand.New(rand.NewSource(42)),
	})

	result := gateway.Process(context.Background(), ProcessRequest{OrderID: "o-1", AmountMinor: 100})
	if result.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected failure, got %+v", result)
	}
	if !result.Retryable {
		t.Error("exhausted transient failure must stay retryable")
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
	if result.ErrorCode == domain.PaymentErrDeclined {
		t.Errorf("last error code must be transient, got %s", result.ErrorCode)
	}
}

func TestGatewayZeroSuccessRateNeverSucceeds(t *testing.T) {
	gateway := NewMockGateway(GatewayOptions{
		SuccessRate:   0,
		TransientRate: 0,
		MaxRetries:    1,
		BaseDelay:     time.Millisecond,
		Rand:          rand.New(rand.NewSource(3)),
	})

	for i := 0; i < 200; i++ {
		result := gateway.Process(context.Background(), ProcessRequest{OrderID: "o-1", AmountMinor: 100})
		if result.Status != domain.PaymentStatusFailed {
			t.Fatalf("success rate 0 must never succeed, call %d got %+v", i, result)
		}
	}
}

func TestGatewayOutOfRangeRatesFallBackToDefaults(t *testing.T) {
	gateway := NewMockGateway(GatewayOptions{
		SuccessRate:   -1,
		TransientRate: 2,
		BaseDelay:     time.Millisecond,
		Rand:          rand.New(rand.NewSource(1)),
	})

	succeeded := 0
	for i := 0; i < 50; i++ {
		result := gateway.Process(context.Background(), ProcessRequest{OrderID: "o-1", AmountMinor: 100})
		if result.Status == domain.PaymentStatusSucceeded {
			succeeded++
		}
	}
	if succeeded == 0 {
		t.Error("out-of-range rates must fall back to the 0.9 default")
	}
}

func TestGatewayContextCancellation(t *testing.T) {
	gateway := NewMockGateway(GatewayOptions{
		SuccessRate:   0,
		TransientRate: 1,
		MaxRetries:    3,
		BaseDelay:     time.Hour,
		Rand:          rand.New(rand.NewSource(42)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result := gateway.Process(ctx, ProcessRequest{OrderID: "o-1", AmountMinor: 100})
	if time.Since(start) > time.Second {
		t.Fatal("cancelled context must interrupt the backoff wait")
	}
	if result.Status != domain.PaymentStatusFailed {
		t.Errorf("interrupted payment must fail, got %+v", result)
	}
}
