package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в саге.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, резервирование ещё не подтверждено.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — товары зарезервированы, ожидаем исход оплаты.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPaid — оплата подтверждена, терминальный статус.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusCancelled — заказ отменён компенсацией, терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions задаёт допустимые переходы конечного автомата саги.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPaid, OrderStatusCancelled},
}

// IsTerminal сообщает, является ли статус поглощающим: события,
// пришедшие в терминальном статусе, подтверждаются без изменений.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// CanTransition проверяет допустимость перехода до выполнения побочных эффектов.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderLine представляет одну позицию заказа.
type OrderLine struct {
	// ProductID — идентификатор товара в каталоге.
	ProductID string
	// Quantity — количество единиц товара, всегда > 0.
	Quantity int64
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
}

// SaleChannel различает обычные заказы и заказы flash-sale.
// Для seckill-заказов компенсация при отмене возвращает слот кампании.
type SaleChannel string

const (
	SaleChannelStandard SaleChannel = "standard"
	SaleChannelSeckill  SaleChannel = "seckill"
)

// Order агрегирует состояние заказа. Мутируется только оркестратором саги.
type Order struct {
	ID                 string
	UserID             string
	Products           []OrderLine
	TotalPriceMinor    int64
	Currency           string
	Status             OrderStatus
	SaleChannel        SaleChannel
	CancellationReason string
	CorrelationID      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Products) == 0 {
		errs = append(errs, ErrProductsRequired)
	}
	if o.TotalPriceMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем итог с суммой позиций: qty * unit price.
	var calc int64
	for _, line := range o.Products {
		if line.Quantity <= 0 {
			errs = append(errs, ErrLineQuantityInvalid)
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
		calc += line.Quantity * line.UnitPriceMinor
	}
	if calc != o.TotalPriceMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
