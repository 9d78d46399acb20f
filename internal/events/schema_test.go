package events

import (
	"errors"
	"testing"
	"time"
)

func TestParseOrderCreated_Flat(t *testing.T) {
	payload := []byte(`{
		"orderId": "o-1",
		"userId": "u-1",
		"products": [{"productId": "p-1", "quantity": 2, "price": 50}],
		"totalPrice": 100,
		"currency": "RUB",
		"timestamp": "2026-08-20T10:00:00Z"
	}`)

	event, err := ParseOrderCreated(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.OrderID != "o-1" || event.UserID != "u-1" {
		t.Errorf("unexpected ids: %+v", event)
	}
	if len(event.Products) != 1 || event.Products[0].Quantity != 2 || event.Products[0].PriceMinor != 50 {
		t.Errorf("unexpected products: %+v", event.Products)
	}
	if event.TotalPriceMinor != 100 {
		t.Errorf("unexpected total: %d", event.TotalPriceMinor)
	}
	want := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	if !event.Timestamp.Equal(want) {
		t.Errorf("unexpected timestamp: %v", event.Timestamp)
	}
}

func TestParseOrderCreated_WrappedWithRawType(t *testing.T) {
	payload := []byte(`{
		"type": "ORDER_CREATED_V1",
		"data": {
			"orderId": {"$oid": "507f1f77bcf86cd799439011"},
			"userId": "u-1",
			"products": [{"product_id": "p-1", "quantity": "3", "unitPrice": 25}]
		}
	}`)

	event, err := ParseOrderCreated(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.OrderID != "507f1f77bcf86cd799439011" {
		t.Errorf("$oid must be unwrapped, got %q", event.OrderID)
	}
	if event.RawType != "ORDER_CREATED_V1" {
		t.Errorf("rawType must be preserved, got %q", event.RawType)
	}
	if event.Products[0].ProductID != "p-1" || event.Products[0].Quantity != 3 {
		t.Errorf("legacy field aliases must be accepted: %+v", event.Products[0])
	}
	if event.Products[0].PriceMinor != 25 {
		t.Errorf("unitPrice alias must be accepted, got %d", event.Products[0].PriceMinor)
	}
}

func TestParseOrderCreated_MissingFields(t *testing.T) {
	for name, payload := range map[string][]byte{
		"no order id": []byte(`{"products": [{"productId": "p", "quantity": 1}]}`),
		"no products": []byte(`{"orderId": "o-1"}`),
		"not json":    []byte(`{{{`),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseOrderCreated(payload); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseOrderCreated_ValidationError(t *testing.T) {
	_, err := ParseOrderCreated([]byte(`{"orderId": ""}`))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("missing field must wrap ErrValidation, got %v", err)
	}
}

func TestParseProductChanged_InitialStockAlias(t *testing.T) {
	event, err := ParseProductChanged([]byte(`{"productId": "p-1", "name": "widget", "price": 100, "initialStock": 7}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Available != 7 {
		t.Errorf("initialStock must map to available, got %d", event.Available)
	}
}

func TestParseProductChanged_ClampsNegative(t *testing.T) {
	event, err := ParseProductChanged([]byte(`{"productId": "p-1", "price": -50, "available": -3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.PriceMinor != 0 || event.Available != 0 {
		t.Errorf("negative values must clamp to 0: %+v", event)
	}
}

func TestParseProductChanged_MongoID(t *testing.T) {
	event, err := ParseProductChanged([]byte(`{"_id": {"$oid": "abc123"}, "available": 5}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ProductID != "abc123" {
		t.Errorf("_id fallback must work, got %q", event.ProductID)
	}
}

func TestParsePaymentOutcome(t *testing.T) {
	payload := []byte(`{
		"orderId": "o-1",
		"amount": 100,
		"errorCode": "PAYMENT_DECLINED",
		"compensation": true,
		"products": [{"productId": "p-1", "quantity": 2}]
	}`)
	event, err := ParsePaymentOutcome(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !event.Compensation {
		t.Error("compensation flag must survive")
	}
	if event.ErrorCode != "PAYMENT_DECLINED" {
		t.Errorf("unexpected error code %q", event.ErrorCode)
	}
	if len(event.Products) != 1 {
		t.Errorf("products must survive for stock release: %+v", event.Products)
	}
}

func TestParseSeckillWon(t *testing.T) {
	event, err := ParseSeckillWon([]byte(`{"productId": "p-1", "userId": "u-1", "price": 4999}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.PriceMinor != 4999 {
		t.Errorf("unexpected price %d", event.PriceMinor)
	}

	if _, err := ParseSeckillWon([]byte(`{"productId": "p-1"}`)); !errors.Is(err, ErrValidation) {
		t.Errorf("missing userId must fail validation, got %v", err)
	}
}

func TestCoerceIntStrings(t *testing.T) {
	event, err := ParseOrderConfirmed([]byte(`{"orderId": "o-1", "totalPrice": "150"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.TotalPriceMinor != 150 {
		t.Errorf("string numbers must coerce, got %d", event.TotalPriceMinor)
	}
}
