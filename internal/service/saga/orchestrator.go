// Package saga содержит оркестратор саги заказа: единственного владельца
// конечного автомата Order и всех его переходов.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/events"
	"github.com/vladislavdragonenkov/ecom/internal/metrics"
)

const (
	serviceName = "saga-orchestrator"

	// defaultCurrency подставляется в seckill-заказ, когда кампания не
	// несёт валюту.
	defaultCurrency = "RUB"
)

// Orchestrator описывает операции саги заказа.
type Orchestrator interface {
	// CreateOrder создаёт заказ в статусе pending и outbox order.created
	// в одной транзакции. Цены позиций резолвятся из каталога.
	CreateOrder(ctx context.Context, userID, currency string, lines []domain.OrderLine) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)

	HandleInventoryReserved(ctx context.Context, event events.InventoryResult) error
	HandleInventoryFailed(ctx context.Context, event events.InventoryResult) error
	HandlePaymentSucceeded(ctx context.Context, event events.PaymentOutcome) error
	HandlePaymentFailed(ctx context.Context, event events.PaymentOutcome) error
	// HandleSeckillWon вводит победу flash-sale в сагу сразу на стадии
	// confirmed: заказ создаётся подтверждённым и уходит в оплату.
	HandleSeckillWon(ctx context.Context, event events.SeckillWon) error
}

type orchestrator struct {
	store     domain.TxBeginner
	orders    domain.OrderRepository
	outbox    domain.OutboxRepository
	catalogue domain.CatalogueRepository
	timeline  domain.TimelineRepository
	logger    *log.Entry
	metrics   *metrics.PipelineMetrics
}

// NewOrchestrator создаёт оркестратор саги.
func NewOrchestrator(
	store domain.TxBeginner,
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	catalogue domain.CatalogueRepository,
	timeline domain.TimelineRepository,
	m *metrics.PipelineMetrics,
	logger *log.Entry,
) Orchestrator {
	if logger == nil {
		logger = log.WithField("component", serviceName)
	}
	return &orchestrator{
		store:     store,
		orders:    orders,
		outbox:    outbox,
		catalogue: catalogue,
		timeline:  timeline,
		logger:    logger,
		metrics:   m,
	}
}

func (o *orchestrator) CreateOrder(ctx context.Context, userID, currency string, lines []domain.OrderLine) (domain.Order, error) {
	resolved := make([]domain.OrderLine, 0, len(lines))
	var total int64
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.Order{}, domain.ErrLineQuantityInvalid
		}
		if line.UnitPriceMinor == 0 {
			product, err := o.catalogue.Get(ctx, line.ProductID)
			if err != nil {
				return domain.Order{}, fmt.Errorf("resolve price for %s: %w", line.ProductID, err)
			}
			line.UnitPriceMinor = product.PriceMinor
		}
		total += line.Quantity * line.UnitPriceMinor
		resolved = append(resolved, line)
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Products:        resolved,
		TotalPriceMinor: total,
		Currency:        currency,
		Status:          domain.OrderStatusPending,
		SaleChannel:     domain.SaleChannelStandard,
		CorrelationID:   uuid.NewString(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	payload := events.OrderCreated{
		OrderID:         order.ID,
		UserID:          order.UserID,
		Products:        toProductLines(order.Products),
		TotalPriceMinor: order.TotalPriceMinor,
		Currency:        order.Currency,
		CorrelationID:   order.CorrelationID,
		Timestamp:       now,
	}

	err := domain.WithinTx(ctx, o.store, func(tx domain.Tx) error {
		if err := o.orders.Create(ctx, tx, order); err != nil {
			return err
		}
		return o.enqueue(ctx, tx, events.TypeOrderCreated, order.ID, "", order.CorrelationID, payload)
	})
	if err != nil {
		return domain.Order{}, err
	}

	o.metrics.RecordSagaStarted()
	o.appendTimeline(ctx, order.ID, events.TypeOrderCreated, "")
	o.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"user_id":        userID,
		"total_price":    total,
		"correlation_id": order.CorrelationID,
	}).Info("order created")

	return order, nil
}

func (o *orchestrator) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return o.orders.Get(ctx, orderID)
}

func (o *orchestrator) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	return o.timeline.List(ctx, orderID)
}

func (o *orchestrator) HandleInventoryReserved(ctx context.Context, event events.InventoryResult) error {
	return o.transition(ctx, event.OrderID, event.CorrelationID, transitionRule{
		from:      []domain.OrderStatus{domain.OrderStatusPending},
		to:        domain.OrderStatusConfirmed,
		eventName: "inventory.reserved.success",
		emit: func(order domain.Order) (string, string, any) {
			// Контракт передачи платёжному сервису: полный состав заказа.
			return events.TypeOrderConfirmed, "", events.OrderConfirmed{
				OrderID:         order.ID,
				TotalPriceMinor: order.TotalPriceMinor,
				Currency:        order.Currency,
				Products:        toProductLines(order.Products),
				CorrelationID:   order.CorrelationID,
				Timestamp:       time.Now().UTC(),
			}
		},
	})
}

func (o *orchestrator) HandleInventoryFailed(ctx context.Context, event events.InventoryResult) error {
	reason := event.Reason
	if reason == "" {
		reason = "inventory reservation failed"
	}
	return o.transition(ctx, event.OrderID, event.CorrelationID, transitionRule{
		from:      []domain.OrderStatus{domain.OrderStatusPending},
		to:        domain.OrderStatusCancelled,
		reason:    reason,
		eventName: "inventory.reserved.failed",
		emit:      o.cancelledEmitter(reason),
	})
}

func (o *orchestrator) HandlePaymentSucceeded(ctx context.Context, event events.PaymentOutcome) error {
	return o.transition(ctx, event.OrderID, event.CorrelationID, transitionRule{
		from:      []domain.OrderStatus{domain.OrderStatusConfirmed},
		to:        domain.OrderStatusPaid,
		eventName: "payment.succeeded",
	})
}

func (o *orchestrator) HandlePaymentFailed(ctx context.Context, event events.PaymentOutcome) error {
	reason := event.Reason
	if reason == "" {
		reason = "payment failed"
	}
	return o.transition(ctx, event.OrderID, event.CorrelationID, transitionRule{
		from:      []domain.OrderStatus{domain.OrderStatusConfirmed},
		to:        domain.OrderStatusCancelled,
		reason:    reason,
		eventName: "payment.failed",
		emit:      o.cancelledEmitter(reason),
	})
}

func (o *orchestrator) HandleSeckillWon(ctx context.Context, event events.SeckillWon) error {
	now := time.Now().UTC()
	correlationID := event.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	currency := event.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	order := domain.Order{
		ID:     uuid.NewString(),
		UserID: event.UserID,
		Products: []domain.OrderLine{{
			ProductID:      event.ProductID,
			Quantity:       1,
			UnitPriceMinor: event.PriceMinor,
		}},
		TotalPriceMinor: event.PriceMinor,
		Currency:        currency,
		Status:          domain.OrderStatusConfirmed,
		SaleChannel:     domain.SaleChannelSeckill,
		CorrelationID:   correlationID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	payload := events.OrderConfirmed{
		OrderID:         order.ID,
		TotalPriceMinor: order.TotalPriceMinor,
		Currency:        order.Currency,
		Products:        toProductLines(order.Products),
		CorrelationID:   correlationID,
		Timestamp:       now,
	}
	// Детерминированный event_id: повторная доставка победы не создаёт
	// второй заказ с оплатой.
	eventID := fmt.Sprintf("seckill-confirmed:%s:%s", event.ProductID, event.UserID)

	err := domain.WithinTx(ctx, o.store, func(tx domain.Tx) error {
		if err := o.orders.Create(ctx, tx, order); err != nil {
			return err
		}
		return o.enqueue(ctx, tx, events.TypeOrderConfirmed, order.ID, eventID, correlationID, payload)
	})
	if errors.Is(err, domain.ErrDuplicateEventID) {
		o.logger.WithFields(log.Fields{
			"product_id": event.ProductID,
			"user_id":    event.UserID,
		}).Info("seckill win already converted to order")
		return nil
	}
	if err != nil {
		return domain.Transient(err)
	}

	o.metrics.RecordSagaStarted()
	o.metrics.RecordTransition(string(domain.OrderStatusConfirmed))
	o.appendTimeline(ctx, order.ID, events.TypeSeckillOrderWon, "")
	return nil
}

// transitionRule описывает один охраняемый переход конечного автомата.
type transitionRule struct {
	from      []domain.OrderStatus
	to        domain.OrderStatus
	reason    string
	eventName string
	// emit возвращает routing key, event_id и payload события, публикуемого
	// в той же транзакции, что и переход. nil — переход без события.
	emit func(order domain.Order) (string, string, any)
}

func (o *orchestrator) transition(ctx context.Context, orderID, correlationID string, rule transitionRule) error {
	start := time.Now()
	defer func() {
		o.metrics.RecordSagaDuration(time.Since(start))
	}()

	order, err := o.orders.Get(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		// Возможно, событие обогнало commit создания заказа: transient,
		// после исчерпания redelivery сообщение уйдёт в DLQ.
		return domain.Transient(fmt.Errorf("saga event %s: %w", rule.eventName, err))
	}
	if err != nil {
		return domain.Transient(err)
	}

	if order.Status.IsTerminal() {
		o.logger.WithFields(log.Fields{
			"order_id": orderID,
			"status":   order.Status,
			"event":    rule.eventName,
		}).Info("event ignored in terminal status")
		return nil
	}

	var transitioned bool
	err = domain.WithinTx(ctx, o.store, func(tx domain.Tx) error {
		ok, err := o.orders.Transition(ctx, tx, orderID, rule.from, rule.to, rule.reason)
		if err != nil {
			return err
		}
		transitioned = ok
		if !ok || rule.emit == nil {
			return nil
		}

		order.Status = rule.to
		order.CancellationReason = rule.reason
		routingKey, eventID, payload := rule.emit(order)
		if err := o.enqueue(ctx, tx, routingKey, orderID, eventID, order.CorrelationID, payload); err != nil {
			return err
		}

		// Отмена seckill-заказа возвращает слот кампании.
		if rule.to == domain.OrderStatusCancelled && order.SaleChannel == domain.SaleChannelSeckill {
			release := events.SeckillRelease{
				ProductID:     order.Products[0].ProductID,
				UserID:        order.UserID,
				Reason:        rule.reason,
				CorrelationID: order.CorrelationID,
				Timestamp:     time.Now().UTC(),
			}
			releaseID := fmt.Sprintf("seckill-release:%s", orderID)
			if err := o.enqueue(ctx, tx, events.TypeOrderSeckillRelease, orderID, releaseID, order.CorrelationID, release); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateEventID) {
		// Другой инстанс уже выполнил переход и записал событие.
		return nil
	}
	if err != nil {
		return domain.Transient(err)
	}

	if !transitioned {
		o.logger.WithFields(log.Fields{
			"order_id": orderID,
			"event":    rule.eventName,
		}).Info("transition guard rejected event")
		return nil
	}

	o.metrics.RecordTransition(string(rule.to))
	o.appendTimeline(ctx, orderID, rule.eventName, rule.reason)
	o.logger.WithFields(log.Fields{
		"order_id":       orderID,
		"to":             rule.to,
		"event":          rule.eventName,
		"correlation_id": correlationID,
	}).Info("order transitioned")
	return nil
}

func (o *orchestrator) cancelledEmitter(reason string) func(domain.Order) (string, string, any) {
	return func(order domain.Order) (string, string, any) {
		return events.TypeOrderCancelled, "", events.OrderCancelled{
			OrderID:       order.ID,
			Products:      toProductLines(order.Products),
			Reason:        reason,
			CorrelationID: order.CorrelationID,
			Timestamp:     time.Now().UTC(),
		}
	}
}

func (o *orchestrator) enqueue(ctx context.Context, tx domain.Tx, routingKey, aggregateID, eventID, correlationID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}

	_, err = o.outbox.Enqueue(ctx, tx, domain.OutboxMessage{
		EventID:       eventID,
		AggregateType: "order",
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

// appendTimeline пишет событие журнала жизненного цикла. Журнал
// информационный, его ошибка не откатывает переход.
func (o *orchestrator) appendTimeline(ctx context.Context, orderID, eventType, reason string) {
	if o.timeline == nil {
		return
	}
	if err := o.timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}); err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Warn("failed to append timeline event")
	}
}

func toProductLines(lines []domain.OrderLine) []events.ProductLine {
	result := make([]events.ProductLine, 0, len(lines))
	for _, line := range lines {
		result = append(result, events.ProductLine{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceMinor: line.UnitPriceMinor,
		})
	}
	return result
}

var _ Orchestrator = (*orchestrator)(nil)
