package events

import "time"

// Канонические routing keys событий пайплайна.
const (
	TypeOrderCreated        = "order.created"
	TypeOrderConfirmed      = "order.confirmed"
	TypeOrderCancelled      = "order.cancelled"
	TypeInventoryReserved   = "inventory.reserved.success"
	TypeInventoryFailed     = "inventory.reserved.failed"
	TypePaymentSucceeded    = "payment.succeeded"
	TypePaymentFailed       = "payment.failed"
	TypeProductCreated      = "product.product.created"
	TypeProductDeleted      = "product.product.deleted"
	TypeSeckillOrderWon     = "seckill.order.won"
	TypeSeckillReleased     = "seckill.released"
	TypeOrderSeckillRelease = "order.seckill.release"
)

// ProductLine — позиция товара в каноническом событии.
type ProductLine struct {
	ProductID  string `json:"productId"`
	Quantity   int64  `json:"quantity"`
	PriceMinor int64  `json:"price,omitempty"`
}

// OrderCreated — канонический вид события order.created.
type OrderCreated struct {
	OrderID         string        `json:"orderId"`
	UserID          string        `json:"userId"`
	Products        []ProductLine `json:"products"`
	TotalPriceMinor int64         `json:"totalPrice"`
	Currency        string        `json:"currency"`
	CorrelationID   string        `json:"correlationId,omitempty"`
	RawType         string        `json:"rawType,omitempty"`
	Timestamp       time.Time     `json:"timestamp,omitempty"`
}

// OrderConfirmed — контракт передачи заказа платёжному сервису.
type OrderConfirmed struct {
	OrderID         string        `json:"orderId"`
	TotalPriceMinor int64         `json:"totalPrice"`
	Currency        string        `json:"currency"`
	Products        []ProductLine `json:"products"`
	CorrelationID   string        `json:"correlationId,omitempty"`
	RawType         string        `json:"rawType,omitempty"`
	Timestamp       time.Time     `json:"timestamp,omitempty"`
}

// OrderCancelled — событие отмены заказа; склад снимает резерв по нему.
type OrderCancelled struct {
	OrderID       string        `json:"orderId"`
	Products      []ProductLine `json:"products"`
	Reason        string        `json:"reason,omitempty"`
	CorrelationID string        `json:"correlationId,omitempty"`
	RawType       string        `json:"rawType,omitempty"`
	Timestamp     time.Time     `json:"timestamp,omitempty"`
}

// InventoryResult — исход резервирования: success либо failed с причиной.
type InventoryResult struct {
	OrderID       string        `json:"orderId"`
	Products      []ProductLine `json:"products"`
	Reason        string        `json:"reason,omitempty"`
	CorrelationID string        `json:"correlationId,omitempty"`
	RawType       string        `json:"rawType,omitempty"`
	Timestamp     time.Time     `json:"timestamp,omitempty"`
}

// PaymentOutcome — терминальный исход платежа.
// Compensation всегда true и носит информационный характер.
type PaymentOutcome struct {
	OrderID       string        `json:"orderId"`
	AmountMinor   int64         `json:"amount"`
	Currency      string        `json:"currency,omitempty"`
	TransactionID string        `json:"transactionId,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	ErrorCode     string        `json:"errorCode,omitempty"`
	Products      []ProductLine `json:"products,omitempty"`
	Compensation  bool          `json:"compensation,omitempty"`
	CorrelationID string        `json:"correlationId,omitempty"`
	RawType       string        `json:"rawType,omitempty"`
	Timestamp     time.Time     `json:"timestamp,omitempty"`
}

// ProductChanged — создание или удаление товара в каталоге.
type ProductChanged struct {
	ProductID  string    `json:"productId"`
	Name       string    `json:"name,omitempty"`
	PriceMinor int64     `json:"price,omitempty"`
	Available  int64     `json:"available,omitempty"`
	RawType    string    `json:"rawType,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// SeckillWon — победа в flash-sale; входит в сагу на стадии CONFIRMED.
type SeckillWon struct {
	ProductID     string    `json:"productId"`
	UserID        string    `json:"userId"`
	PriceMinor    int64     `json:"price,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	RawType       string    `json:"rawType,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// SeckillRelease — компенсация flash-sale слота.
type SeckillRelease struct {
	ProductID     string    `json:"productId"`
	UserID        string    `json:"userId"`
	Reason        string    `json:"reason,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	RawType       string    `json:"rawType,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}
