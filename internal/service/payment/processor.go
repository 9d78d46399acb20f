package payment

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

const serviceName = "payment-processor"

// Processor обрабатывает order.confirmed: создаёт платёж, вызывает шлюз
// и эмитит ровно один терминальный payment.{succeeded,failed} на заказ,
// даже при конкурентной доставке нескольким инстансам.
type Processor struct {
	store    domain.TxBeginner
	payments domain.PaymentRepository
	outbox   domain.OutboxRepository
	gateway  Gateway
	logger   *log.Entry
	metrics  *metrics.PipelineMetrics
}

// NewProcessor создаёт платёжный процессор.
func NewProcessor(
	store domain.TxBeginner,
	payments domain.PaymentRepository,
	outbox domain.OutboxRepository,
	gateway Gateway,
	m *metrics.PipelineMetrics,
	logger *log.Entry,
) *Processor {
	if logger == nil {
		logger = log.WithField("component", serviceName)
	}
	return &Processor{
		store:    store,
		payments: payments,
		outbox:   outbox,
		gateway:  gateway,
		logger:   logger,
		metrics:  m,
	}
}

// HandleOrderConfirmed выполняет полный цикл платежа по заказу.
func (p *Processor) HandleOrderConfirmed(ctx context.Context, event events.OrderConfirmed) error {
	logger := p.logger.WithFields(log.Fields{
		"order_id":       event.OrderID,
		"correlation_id": event.CorrelationID,
	})

	payment, created, err := p.payments.CreateIfAbsent(ctx, domain.Payment{
		ID:            uuid.NewString(),
		OrderID:       event.OrderID,
		Status:        domain.PaymentStatusPending,
		AmountMinor:   event.TotalPriceMinor,
		Currency:      event.Currency,
		CorrelationID: event.CorrelationID,
	})
	if err != nil {
		return domain.Transient(err)
	}
	if !created && payment.Status.IsTerminal() {
		logger.WithField("status", payment.Status).Info("payment already finalized, acknowledging duplicate")
		return nil
	}

	claimed, err := p.payments.ClaimProcessing(ctx, event.OrderID)
	if err != nil {
		return domain.Transient(err)
	}
	if !claimed {
		logger.Info("payment claimed by another instance")
		return nil
	}

	result := p.gateway.Process(ctx, ProcessRequest{
		OrderID:     event.OrderID,
		AmountMinor: event.TotalPriceMinor,
		Currency:    event.Currency,
	})

	if result.Status == domain.PaymentStatusSucceeded {
		p.metrics.RecordPaymentAttempt("succeeded")
		return p.finalize(ctx, event, result, domain.PaymentStatusSucceeded)
	}

	p.metrics.RecordPaymentAttempt("failed")
	return p.finalize(ctx, event, result, domain.PaymentStatusFailed)
}

// finalize атомарно переводит платёж в терминальный статус и пишет
// терминальное событие с детерминированным event_id в одной транзакции.
// Дубликат event_id означает, что другой инстанс уже завершил работу.
func (p *Processor) finalize(ctx context.Context, event events.OrderConfirmed, result domain.PaymentResult, status domain.PaymentStatus) error {
	var (
		routingKey string
		eventID    string
	)
	if status == domain.PaymentStatusSucceeded {
		routingKey = events.TypePaymentSucceeded
		eventID = fmt.Sprintf("payment-succeeded:%s", event.OrderID)
	} else {
		routingKey = events.TypePaymentFailed
		eventID = fmt.Sprintf("payment-failed:%s", event.OrderID)
	}

	payload := events.PaymentOutcome{
		OrderID:       event.OrderID,
		AmountMinor:   result.AmountMinor,
		Currency:      result.Currency,
		TransactionID: result.TransactionID,
		Reason:        result.Reason,
		ErrorCode:     string(result.ErrorCode),
		// Состав заказа переносится в payment.failed, чтобы склад мог
		// снять резерв, не читая Order.
		Products:      event.Products,
		Compensation:  status == domain.PaymentStatusFailed,
		CorrelationID: event.CorrelationID,
		Timestamp:     time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}

	err = domain.WithinTx(ctx, p.store, func(tx domain.Tx) error {
		finalized, err := p.payments.Finalize(ctx, tx, event.OrderID, status, result)
		if err != nil {
			return err
		}
		if !finalized {
			return domain.ErrDuplicateEventID
		}

		_, err = p.outbox.Enqueue(ctx, tx, domain.OutboxMessage{
			EventID:       eventID,
			AggregateType: "payment",
			AggregateID:   event.OrderID,
			EventType:     routingKey,
			RoutingKey:    routingKey,
			Payload:       body,
			Metadata: domain.EventMetadata{
				CorrelationID: event.CorrelationID,
				Service:       serviceName,
				Timestamp:     time.Now().UTC(),
			},
		})
		return err
	})
	if errors.Is(err, domain.ErrDuplicateEventID) {
		p.logger.WithField("order_id", event.OrderID).Info("payment already finalized by another instance")
		return nil
	}
	if err != nil {
		return domain.Transient(err)
	}

	p.logger.WithFields(log.Fields{
		"order_id":       event.OrderID,
		"status":         status,
		"transaction_id": result.TransactionID,
		"attempts":       result.Attempts,
	}).Info("payment finalized")
	return nil
}
