// Package inventory содержит движок резервирования склада: батчевое
// резервирование под упорядоченными блокировками, компенсационный release
// и ведение каталога по product.* событиям.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/events"
	"github.com/vladislavdragonenkov/ecom/internal/metrics"
)

const (
	serviceName    = "inventory-engine"
	defaultLockTTL = 5 * time.Second
	lockResource   = "product"
	reasonReserve  = "ORDER_RESERVE"
	reasonRelease  = "ORDER_RELEASE"
	reasonCreated  = "PRODUCT_CREATED"
	reasonDeleted  = "PRODUCT_DELETED"
)

// Engine обрабатывает события склада. Все мутации строк inventory проходят
// только через него и только под блокировкой товара.
type Engine struct {
	store     domain.TxBeginner
	inventory domain.InventoryRepository
	outbox    domain.OutboxRepository
	catalogue domain.CatalogueRepository
	// locks может быть nil: single-instance режим работает без блокировок.
	// Это единственная безопасная конфигурация без lock-сервиса.
	locks   domain.LockManager
	lockTTL time.Duration
	logger  *log.Entry
	metrics *metrics.PipelineMetrics
}

// NewEngine создаёт движок резервирования.
func NewEngine(
	store domain.TxBeginner,
	inventoryRepo domain.InventoryRepository,
	outbox domain.OutboxRepository,
	catalogue domain.CatalogueRepository,
	locks domain.LockManager,
	m *metrics.PipelineMetrics,
	logger *log.Entry,
) *Engine {
	if logger == nil {
		logger = log.WithField("component", serviceName)
	}
	return &Engine{
		store:     store,
		inventory: inventoryRepo,
		outbox:    outbox,
		catalogue: catalogue,
		locks:     locks,
		lockTTL:   defaultLockTTL,
		logger:    logger,
		metrics:   m,
	}
}

// HandleOrderCreated резервирует все позиции заказа или ни одной.
// Недостаток остатков — бизнес-отказ: сообщение подтверждается, наружу
// уходит inventory.reserved.failed.
func (e *Engine) HandleOrderCreated(ctx context.Context, event events.OrderCreated) error {
	lines := mergeLines(event.Products)
	if len(lines) == 0 {
		return fmt.Errorf("order %s has no product lines", event.OrderID)
	}

	err := e.withProductLocks(ctx, lines, func() error {
		return e.reserve(ctx, event, lines)
	})

	switch {
	case err == nil:
		return nil
	case domain.IsInsufficientStock(err) || errors.Is(err, domain.ErrProductNotFound):
		return e.emitReserveFailed(ctx, event, err.Error())
	case errors.Is(err, domain.ErrDuplicateEventID):
		// Другой инстанс уже завершил резервирование этого заказа.
		return nil
	default:
		return domain.Transient(err)
	}
}

func (e *Engine) reserve(ctx context.Context, event events.OrderCreated, lines []domain.ReserveLine) error {
	return domain.WithinTx(ctx, e.store, func(tx domain.Tx) error {
		ids := make([]string, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.ProductID)
		}

		rows, err := e.inventory.GetBatch(ctx, tx, ids)
		if err != nil {
			return err
		}
		byID := make(map[string]domain.InventoryRow, len(rows))
		for _, row := range rows {
			byID[row.ProductID] = row
		}

		// Pre-check до мутаций: первый товар с нехваткой идентифицирует отказ.
		for _, line := range lines {
			row, ok := byID[line.ProductID]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrProductNotFound, line.ProductID)
			}
			if row.Available < line.Quantity {
				return &domain.InsufficientStockError{
					ProductID: line.ProductID,
					Available: row.Available,
					Requested: line.Quantity,
				}
			}
		}

		affected, err := e.inventory.ApplyReserve(ctx, tx, lines)
		if err != nil {
			return err
		}
		if affected != len(lines) {
			return domain.ErrConcurrentModification
		}

		for _, line := range lines {
			prev := byID[line.ProductID]
			if err := e.inventory.AppendAudit(ctx, tx, domain.AuditEntry{
				ProductID:     line.ProductID,
				Action:        domain.AuditActionReserve,
				PreviousValue: prev.Available,
				NewValue:      prev.Available - line.Quantity,
				Delta:         -line.Quantity,
				Reason:        reasonReserve,
				OrderID:       event.OrderID,
				CorrelationID: event.CorrelationID,
			}); err != nil {
				return err
			}
		}

		payload := events.InventoryResult{
			OrderID:       event.OrderID,
			Products:      event.Products,
			CorrelationID: event.CorrelationID,
			Timestamp:     time.Now().UTC(),
		}
		return e.enqueue(ctx, tx, events.TypeInventoryReserved, event.OrderID,
			"inventory-reserved:"+event.OrderID, event.CorrelationID, payload)
	})
}

// emitReserveFailed пишет inventory.reserved.failed отдельной транзакцией.
func (e *Engine) emitReserveFailed(ctx context.Context, event events.OrderCreated, reason string) error {
	e.logger.WithFields(log.Fields{
		"order_id": event.OrderID,
		"reason":   reason,
	}).Warn("reservation rejected")

	payload := events.InventoryResult{
		OrderID:       event.OrderID,
		Products:      event.Products,
		Reason:        reason,
		CorrelationID: event.CorrelationID,
		Timestamp:     time.Now().UTC(),
	}

	err := domain.WithinTx(ctx, e.store, func(tx domain.Tx) error {
		return e.enqueue(ctx, tx, events.TypeInventoryFailed, event.OrderID,
			"inventory-failed:"+event.OrderID, event.CorrelationID, payload)
	})
	if errors.Is(err, domain.ErrDuplicateEventID) {
		return nil
	}
	if err != nil {
		return domain.Transient(err)
	}
	return nil
}

// HandleOrderCancelled снимает резерв по всем позициям отменённого заказа.
func (e *Engine) HandleOrderCancelled(ctx context.Context, event events.OrderCancelled) error {
	return e.releaseLines(ctx, event.OrderID, event.Products, event.CorrelationID)
}

// HandlePaymentFailed — компенсация по провалу оплаты. Платёжный сервис
// переносит в событие состав заказа, поэтому release не требует чтения Order.
func (e *Engine) HandlePaymentFailed(ctx context.Context, event events.PaymentOutcome) error {
	if len(event.Products) == 0 {
		e.logger.WithField("order_id", event.OrderID).Warn("payment.failed without products, nothing to release")
		return nil
	}
	return e.releaseLines(ctx, event.OrderID, event.Products, event.CorrelationID)
}

// releaseLines построчно снимает резерв и терпит частично выполненные
// предыдущие компенсации: повторный release уже снятого резерва — успех.
func (e *Engine) releaseLines(ctx context.Context, orderID string, products []events.ProductLine, correlationID string) error {
	lines := mergeLines(products)

	err := e.withProductLocks(ctx, lines, func() error {
		for _, line := range lines {
			if err := e.releaseOne(ctx, orderID, line, correlationID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Transient(err)
	}
	return nil
}

func (e *Engine) releaseOne(ctx context.Context, orderID string, line domain.ReserveLine, correlationID string) error {
	return domain.WithinTx(ctx, e.store, func(tx domain.Tx) error {
		rows, err := e.inventory.GetBatch(ctx, tx, []string{line.ProductID})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			e.logger.WithField("product_id", line.ProductID).Warn("release for unknown product ignored")
			return nil
		}
		prev := rows[0]

		applied, err := e.inventory.ApplyRelease(ctx, tx, line.ProductID, line.Quantity)
		if err != nil {
			return err
		}
		if !applied {
			e.logger.WithFields(log.Fields{
				"product_id": line.ProductID,
				"order_id":   orderID,
				"quantity":   line.Quantity,
				"reserved":   prev.Reserved,
			}).Warn("release exceeds reserved, treating as already released")
			return nil
		}

		return e.inventory.AppendAudit(ctx, tx, domain.AuditEntry{
			ProductID:     line.ProductID,
			Action:        domain.AuditActionRelease,
			PreviousValue: prev.Available,
			NewValue:      prev.Available + line.Quantity,
			Delta:         line.Quantity,
			Reason:        reasonRelease,
			OrderID:       orderID,
			CorrelationID: correlationID,
		})
	})
}

// HandleProductCreated создаёт строку склада и запись каталога.
func (e *Engine) HandleProductCreated(ctx context.Context, event events.ProductChanged) error {
	err := domain.WithinTx(ctx, e.store, func(tx domain.Tx) error {
		if err := e.catalogue.Upsert(ctx, tx, domain.Product{
			ProductID:  event.ProductID,
			Name:       event.Name,
			PriceMinor: event.PriceMinor,
		}); err != nil {
			return err
		}
		if err := e.inventory.CreateRow(ctx, tx, domain.InventoryRow{
			ProductID: event.ProductID,
			Available: event.Available,
		}); err != nil {
			return err
		}
		return e.inventory.AppendAudit(ctx, tx, domain.AuditEntry{
			ProductID: event.ProductID,
			Action:    domain.AuditActionCreate,
			NewValue:  event.Available,
			Delta:     event.Available,
			Reason:    reasonCreated,
		})
	})
	if err != nil {
		return domain.Transient(err)
	}
	return nil
}

// HandleProductDeleted удаляет строку склада и запись каталога.
func (e *Engine) HandleProductDeleted(ctx context.Context, event events.ProductChanged) error {
	err := domain.WithinTx(ctx, e.store, func(tx domain.Tx) error {
		rows, err := e.inventory.GetBatch(ctx, tx, []string{event.ProductID})
		if err != nil {
			return err
		}
		var prev int64
		if len(rows) > 0 {
			prev = rows[0].Available
		}

		if err := e.catalogue.Delete(ctx, tx, event.ProductID); err != nil {
			return err
		}
		if err := e.inventory.DeleteRow(ctx, tx, event.ProductID); err != nil {
			return err
		}
		return e.inventory.AppendAudit(ctx, tx, domain.AuditEntry{
			ProductID:     event.ProductID,
			Action:        domain.AuditActionDelete,
			PreviousValue: prev,
			Delta:         -prev,
			Reason:        reasonDeleted,
		})
	})
	if err != nil {
		return domain.Transient(err)
	}
	return nil
}

// withProductLocks захватывает блокировки товаров в лексикографическом
// порядке и гарантирует release на всех путях выхода, включая panic.
func (e *Engine) withProductLocks(ctx context.Context, lines []domain.ReserveLine, fn func() error) error {
	if e.locks == nil {
		return fn()
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	sort.Strings(ids)

	type held struct {
		id    string
		token string
	}
	acquired := make([]held, 0, len(ids))
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			if err := e.locks.Release(ctx, lockResource, acquired[i].id, acquired[i].token); err != nil {
				e.logger.WithError(err).WithField("product_id", acquired[i].id).Warn("failed to release product lock")
			}
		}
	}()

	for _, id := range ids {
		token, ok, err := e.locks.Acquire(ctx, lockResource, id, e.lockTTL)
		if err != nil {
			return err
		}
		if !ok {
			e.metrics.RecordLockFailure()
			return fmt.Errorf("%w: product %s", domain.ErrLockNotAcquired, id)
		}
		acquired = append(acquired, held{id: id, token: token})
	}

	return fn()
}

func (e *Engine) enqueue(ctx context.Context, tx domain.Tx, routingKey, aggregateID, eventID, correlationID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}

	_, err = e.outbox.Enqueue(ctx, tx, domain.OutboxMessage{
		EventID:       eventID,
		AggregateType: "inventory",
		AggregateID:   aggregateID,
		EventType:     routingKey,
		RoutingKey:    routingKey,
		Payload:       body,
		Metadata: domain.EventMetadata{
			CorrelationID: correlationID,
			Service:       serviceName,
			Timestamp:     time.Now().UTC(),
		},
	})
	return err
}

// mergeLines суммирует дубликаты товаров и отбрасывает пустые позиции.
func mergeLines(products []events.ProductLine) []domain.ReserveLine {
	byID := make(map[string]int64)
	order := make([]string, 0, len(products))
	for _, p := range products {
		if p.ProductID == "" || p.Quantity <= 0 {
			continue
		}
		if _, ok := byID[p.ProductID]; !ok {
			order = append(order, p.ProductID)
		}
		byID[p.ProductID] += p.Quantity
	}

	lines := make([]domain.ReserveLine, 0, len(order))
	for _, id := range order {
		lines = append(lines, domain.ReserveLine{ProductID: id, Quantity: byID[id]})
	}
	return lines
}
