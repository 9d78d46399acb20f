package events

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Слой схем принимает два исторических wire-формата: обёрнутый
// {type?, data: {...}} и плоский {...}. Оба нормализуются к каноническим
// записям; исходный тип сохраняется в rawType.

// unwrap разбирает payload и возвращает тело события и rawType, если он был.
func unwrap(payload []byte) (map[string]any, string, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, "", fmt.Errorf("parse event payload: %w", err)
	}

	rawType, _ := raw["type"].(string)
	if rawType == "" {
		rawType, _ = raw["rawType"].(string)
	}

	if data, ok := raw["data"].(map[string]any); ok {
		return data, rawType, nil
	}
	return raw, rawType, nil
}

// coerceString приводит значение к строке. Идентификаторы вида ObjectID
// ({"$oid": "..."} либо stringer-подобные объекты) приводятся к строке.
func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == math.Trunc(val) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	case map[string]any:
		if oid, ok := val["$oid"].(string); ok {
			return oid
		}
		return ""
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// coerceInt приводит числовое значение к int64. Строковые числа допускаются.
func coerceInt(v any) int64 {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0
		}
		return int64(val)
	case string:
		var parsed float64
		if _, err := fmt.Sscanf(val, "%g", &parsed); err != nil {
			return 0
		}
		return coerceInt(parsed)
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// clampNonNegative обрезает отрицательные и не-конечные значения до 0.
func clampNonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func coerceTime(v any) time.Time {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func coerceProducts(v any) []ProductLine {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	lines := make([]ProductLine, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		line := ProductLine{
			ProductID: coerceString(entry["productId"]),
			Quantity:  coerceInt(entry["quantity"]),
		}
		if line.ProductID == "" {
			line.ProductID = coerceString(entry["product_id"])
		}
		if price, ok := entry["price"]; ok {
			line.PriceMinor = coerceInt(price)
		} else if price, ok := entry["unitPrice"]; ok {
			line.PriceMinor = coerceInt(price)
		}
		lines = append(lines, line)
	}
	return lines
}

// ParseOrderCreated нормализует payload order.created.
func ParseOrderCreated(payload []byte) (OrderCreated, error) {
	data, rawType, err := unwrap(payload)
	if err != nil {
		return OrderCreated{}, err
	}

	event := OrderCreated{
		OrderID:         coerceString(data["orderId"]),
		UserID:          coerceString(data["userId"]),
		Products:        coerceProducts(data["products"]),
		TotalPriceMinor: coerceInt(data["totalPrice"]),
		Currency:        coerceString(data["currency"]),
		CorrelationID:   coerceString(data["correlationId"]),
		RawType:         rawType,
		Timestamp:       coerceTime(data["timestamp"]),
	}
	if event.OrderID == "" {
		return OrderCreated{}, fmt.Errorf("order.created: %w", errMissingField("orderId"))
	}
	if len(event.Products) == 0 {
		return OrderCreated{}, fmt.Errorf("order.created: %w", errMissingField("products"))
	}
	return event, nil
}

// ParseOrderConfirmed нормализует payload order.confirmed.
func ParseOrderConfirmed(payload []byte) (OrderConfirmed, error) {
	data, rawType, err := unwrap(payload)
	if err != nil {
		return OrderConfirmed{}, err
	}

	event := OrderConfirmed{
		OrderID:         coerceString(data["orderId"]),
		TotalPriceMinor: coerceInt(data["totalPrice"]),
		Currency:        coerceString(data["currency"]),
		Products:        coerceProducts(data["products"]),
		CorrelationID:   coerceString(data["correlationId"]),
		RawType:         rawType,
		Timestamp:       coerceTime(data["timestamp"]),
	}
	if event.OrderID == "" {
		return OrderConfirmed{}, fmt.Errorf("order.confirmed: %w", errMissingField("orderId"))
	}
	return event, nil
}

// ParseOrderCancelled нормализует payload order.cancelled.
func ParseOrderCancelled(payload []byte) (OrderCancelled, error) {
	data, rawType, err := unwrap(payload)
	if err != nil {
		return OrderCancelled{}, err
	}

	event := OrderCancelled{
		OrderID:       coerceString(data["orderId"]),
		Products:      coerceProducts(data["products"]),
		Reason:        coerceString(data["reason"]),
		CorrelationID: coerceString(data["correlationId"]),
		RawType:       rawType,
		Timestamp:     coerceTime(data["timestamp"]),
	}
	if event.OrderID == "" {
		return OrderCancelled{}, fmt.Errorf("order.cancelled: %w", errMissingField("orderId"))
	}
	return event, nil
}

// ParseInventoryResult нормализует inventory.reserved.success|failed.
func ParseInventoryResult(payload []byte) (InventoryResult, error) {
	data, rawType, err := unwrap(payload)
	if err != nil {
		return InventoryResult{}, err
	}

	event := InventoryResult{
		OrderID:       coerceString(data["orderId"]),
		Products:      coerceProducts(data["products"]),
		Reason:        coerceString(data["reason"]),
		CorrelationID: coerceString(data["correlationId"]),
		RawType:       rawType,
		Timestamp:     coerceTime(data["timestamp"]),
	}
	if event.OrderID == "" {
		return InventoryResult{}, fmt.Errorf("inventory result: %w", errMissingField("orderId"))
	}
	return event, nil
}

// ParsePaymentOutcome нормализует payment.succeeded|failed.
func ParsePaymentOutcome(payload []byte) (PaymentOutcome, error) {
	data, rawType, err := unwrap(payload)
	if err != nil {
		return PaymentOutcome{}, err
	}

	event := PaymentOutcome{
		OrderID:       coerceString(data["orderId"]),
		AmountMinor:   coerceInt(data["amount"]),
		Currency:      coerceString(data["currency"]),
		TransactionID: coerceString(data["transactionId"]),
		Reason:        coerceString(data["reason"]),
		ErrorCode:     coerceString(data["errorCode"]),
		Products:      coerceProducts(data["products"]),
		CorrelationID: coerceString(data["correlationId"]),
		RawType:       rawType,
		Timestamp:     coerceTime(data["timestamp"]),
	}
	if compensation, ok := data["compensation"].(bool); ok {
		event.Compensation = compensation
	}
	if event.OrderID == "" {
		return PaymentOutcome{}, fmt.Errorf("payment outcome: %w", errMissingField("orderId"))
	}
	return event, nil
}

// ParseProductChanged нормализует product.product.created|deleted.
// Легаси-поле initialStock принимается как алиас available; отрицательные
// и не-конечные значения обрезаются до 0.
func ParseProductChanged(payload []byte) (ProductChanged, error) {
	data, rawType, err := unwrap(payload)
	if err != nil {
		return ProductChanged{}, err
	}

	event := ProductChanged{
		ProductID:  coerceString(data["productId"]),
		Name:       coerceString(data["name"]),
		PriceMinor: clampNonNegative(coerceInt(data["price"])),
		RawType:    rawType,
		Timestamp:  coerceTime(data["timestamp"]),
	}
	if event.ProductID == "" {
		event.ProductID = coerceString(data["_id"])
	}

	if available, ok := data["available"]; ok {
		event.Available = clampNonNegative(coerceInt(available))
	} else if legacy, ok := data["initialStock"]; ok {
		event.Available = clampNonNegative(coerceInt(legacy))
	}

	if event.ProductID == "" {
		return ProductChanged{}, fmt.Errorf("product event: %w", errMissingField("productId"))
	}
	return event, nil
}

// ParseSeckillWon нормализует seckill.order.won.
func ParseSeckillWon(payload []byte) (SeckillWon, error) {
	data, rawType, err := unwrap(payload)
	if err != nil {
		return SeckillWon{}, err
	}

	event := SeckillWon{
		ProductID:     coerceString(data["productId"]),
		UserID:        coerceString(data["userId"]),
		PriceMinor:    coerceInt(data["price"]),
		Currency:      coerceString(data["currency"]),
		CorrelationID: coerceString(data["correlationId"]),
		RawType:       rawType,
		Timestamp:     coerceTime(data["timestamp"]),
	}
	if event.ProductID == "" || event.UserID == "" {
		return SeckillWon{}, fmt.Errorf("seckill.order.won: %w", errMissingField("productId/userId"))
	}
	return event, nil
}

// ParseSeckillRelease нормализует seckill.released и order.seckill.release.
func ParseSeckillRelease(payload []byte) (SeckillRelease, error) {
	data, rawType, err := unwrap(payload)
	if err != nil {
		return SeckillRelease{}, err
	}

	event := SeckillRelease{
		ProductID:     coerceString(data["productId"]),
		UserID:        coerceString(data["userId"]),
		Reason:        coerceString(data["reason"]),
		CorrelationID: coerceString(data["correlationId"]),
		RawType:       rawType,
		Timestamp:     coerceTime(data["timestamp"]),
	}
	if event.ProductID == "" || event.UserID == "" {
		return SeckillRelease{}, fmt.Errorf("seckill release: %w", errMissingField("productId/userId"))
	}
	return event, nil
}

func errMissingField(name string) error {
	return fmt.Errorf("%w: missing required field %s", ErrValidation, name)
}
