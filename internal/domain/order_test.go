package domain

import (
	"errors"
	"testing"
)

func TestOrderStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{"pending to confirmed", OrderStatusPending, OrderStatusConfirmed, true},
		{"pending to cancelled", OrderStatusPending, OrderStatusCancelled, true},
		{"pending to paid", OrderStatusPending, OrderStatusPaid, false},
		{"confirmed to paid", OrderStatusConfirmed, OrderStatusPaid, true},
		{"confirmed to cancelled", OrderStatusConfirmed, OrderStatusCancelled, true},
		{"confirmed to pending", OrderStatusConfirmed, OrderStatusPending, false},
		{"paid is absorbing", OrderStatusPaid, OrderStatusCancelled, false},
		{"cancelled is absorbing", OrderStatusCancelled, OrderStatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	if OrderStatusPending.IsTerminal() || OrderStatusConfirmed.IsTerminal() {
		t.Error("pending and confirmed must not be terminal")
	}
	if !OrderStatusPaid.IsTerminal() || !OrderStatusCancelled.IsTerminal() {
		t.Error("paid and cancelled must be terminal")
	}
}

func TestOrderValidateInvariants(t *testing.T) {
	valid := Order{
		UserID:   "user-1",
		Currency: "RUB",
		Products: []OrderLine{
			{ProductID: "p1", Quantity: 2, UnitPriceMinor: 50},
			{ProductID: "p2", Quantity: 1, UnitPriceMinor: 100},
		},
		TotalPriceMinor: 200,
	}
	if errs := valid.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("valid order should have no violations, got %v", errs)
	}

	tests := []struct {
		name   string
		mutate func(*Order)
		want   error
	}{
		{"missing user", func(o *Order) { o.UserID = "" }, ErrUserRequired},
		{"missing currency", func(o *Order) { o.Currency = "" }, ErrCurrencyRequired},
		{"no products", func(o *Order) { o.Products = nil; o.TotalPriceMinor = 0 }, ErrProductsRequired},
		{"zero quantity", func(o *Order) { o.Products[0].Quantity = 0 }, ErrLineQuantityInvalid},
		{"negative price", func(o *Order) { o.Products[0].UnitPriceMinor = -1 }, ErrLinePriceInvalid},
		{"total mismatch", func(o *Order) { o.TotalPriceMinor = 1 }, ErrAmountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := valid
			order.Products = append([]OrderLine(nil), valid.Products...)
			tt.mutate(&order)

			errs := order.ValidateInvariants()
			found := false
			for _, err := range errs {
				if errors.Is(err, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected %v among violations, got %v", tt.want, errs)
			}
		})
	}
}

func TestTransientError(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) must be nil")
	}

	base := errors.New("connection reset")
	err := Transient(base)
	if !IsTransient(err) {
		t.Error("wrapped error must be transient")
	}
	if !errors.Is(err, base) {
		t.Error("transient wrapper must preserve the cause")
	}
	if IsTransient(base) {
		t.Error("unwrapped error must not be transient")
	}
}

func TestIsBusinessRejection(t *testing.T) {
	stock := &InsufficientStockError{ProductID: "p1", Available: 1, Requested: 5}
	if !IsBusinessRejection(stock) {
		t.Error("insufficient stock is a business rejection")
	}
	if !IsBusinessRejection(ErrPaymentDeclined) {
		t.Error("payment declined is a business rejection")
	}
	if IsBusinessRejection(errors.New("boom")) {
		t.Error("arbitrary error is not a business rejection")
	}
	if !IsInsufficientStock(stock) {
		t.Error("IsInsufficientStock must match the typed error")
	}
}

func TestPaymentErrorCodeRetryable(t *testing.T) {
	retryable := []PaymentErrorCode{
		PaymentErrGatewayTimeout, PaymentErrNetwork, PaymentErrServiceUnavailable, PaymentErrRateLimited,
	}
	for _, code := range retryable {
		if !code.Retryable() {
			t.Errorf("%s must be retryable", code)
		}
	}
	if PaymentErrDeclined.Retryable() {
		t.Error("PAYMENT_DECLINED must not be retryable")
	}
}
