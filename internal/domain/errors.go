package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибки валидации заказа.
	ErrUserRequired        = errors.New("user_id is required")
	ErrCurrencyRequired    = errors.New("currency is required")
	ErrProductsRequired    = errors.New("order must contain at least one product")
	ErrAmountNegative      = errors.New("total price must be non-negative")
	ErrAmountMismatch      = errors.New("total price does not match sum of lines")
	ErrLineQuantityInvalid = errors.New("line quantity must be positive")
	ErrLinePriceInvalid    = errors.New("line price must be non-negative")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается при отсутствии товара в каталоге или на складе.
	ErrProductNotFound = errors.New("product not found")
	// ErrPaymentNotFound возвращается при отсутствии платежа по заказу.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrCampaignNotFound возвращается при запросе статуса несуществующей кампании.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrInvalidTransition сигнализирует о недопустимом переходе конечного автомата.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrDuplicateEventID — запись с таким event_id уже существует в outbox.
	// Для детерминированных идентификаторов это признак того, что другой
	// инстанс уже завершил работу.
	ErrDuplicateEventID = errors.New("outbox event_id already exists")
	// ErrConcurrentModification — батчевое обновление затронуло меньше строк,
	// чем ожидалось: кто-то изменил остатки между pre-check и UPDATE.
	ErrConcurrentModification = errors.New("concurrent inventory modification")
	// ErrLockNotAcquired — не удалось захватить распределённую блокировку за TTL.
	ErrLockNotAcquired = errors.New("distributed lock not acquired")

	// Бизнес-отказы: валидный вход с негативным исходом. Это не ошибки
	// инфраструктуры — сообщение подтверждается, наружу уходит *.failed.
	ErrPaymentDeclined = errors.New("payment declined by provider")
)

// InsufficientStockError — структурированный бизнес-отказ резервирования
// с указанием первой позиции, по которой не хватило остатка.
type InsufficientStockError struct {
	ProductID string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// IsInsufficientStock проверяет, является ли ошибка отказом по остаткам.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

// TransientError помечает временную инфраструктурную ошибку, после которой
// сообщение должно быть redelivered.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient оборачивает err как транзиентную. nil остаётся nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient сообщает, нужно ли повторить обработку после ошибки.
func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

// IsBusinessRejection отличает негативный бизнес-исход от ошибки обработки.
func IsBusinessRejection(err error) bool {
	return IsInsufficientStock(err) || errors.Is(err, ErrPaymentDeclined)
}
