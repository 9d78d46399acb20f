package app

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/events"
	"github.com/vladislavdragonenkov/ecom/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ecom/internal/metrics"
	"github.com/vladislavdragonenkov/ecom/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ecom/internal/service/inventory"
	"github.com/vladislavdragonenkov/ecom/internal/service/payment"
	"github.com/vladislavdragonenkov/ecom/internal/service/saga"
	"github.com/vladislavdragonenkov/ecom/internal/service/seckill"
)

// pipelineServices — обработчики событий пайплайна, привязываемые к роутеру.
type pipelineServices struct {
	Saga      saga.Orchestrator
	Inventory *inventory.Engine
	Payment   *payment.Processor
	Seckill   *seckill.Engine
}

// eventTopics — все топики, которые слушает процесс.
func eventTopics() []string {
	return []string{
		kafka.TopicOrderEvents,
		kafka.TopicInventoryEvents,
		kafka.TopicPaymentEvents,
		kafka.TopicProductEvents,
		kafka.TopicSeckillEvents,
	}
}

// newEventRouter связывает типы событий с обработчиками сервисов.
// Каждый обработчик обёрнут в idempotency guard: дубликат по event id
// подтверждается без побочных эффектов.
func newEventRouter(
	svcs pipelineServices,
	guard *idempotency.Guard,
	m *metrics.PipelineMetrics,
	logger *log.Entry,
) *events.Router {
	router := events.NewRouter(logger)
	register := func(eventType string, handler events.Handler) {
		router.Register(eventType, guarded(guard, m, eventType, handler))
	}

	register(events.TypeOrderCreated, func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParseOrderCreated(env.Payload)
		if err != nil {
			return err
		}
		if event.CorrelationID == "" {
			event.CorrelationID = env.CorrelationID
		}
		return svcs.Inventory.HandleOrderCreated(ctx, event)
	})

	register(events.TypeOrderConfirmed, func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParseOrderConfirmed(env.Payload)
		if err != nil {
			return err
		}
		if event.CorrelationID == "" {
			event.CorrelationID = env.CorrelationID
		}
		return svcs.Payment.HandleOrderConfirmed(ctx, event)
	})

	register(events.TypeOrderCancelled, func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParseOrderCancelled(env.Payload)
		if err != nil {
			return err
		}
		return svcs.Inventory.HandleOrderCancelled(ctx, event)
	})

	register(events.TypeInventoryReserved, func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParseInventoryResult(env.Payload)
		if err != nil {
			return err
		}
		return svcs.Saga.HandleInventoryReserved(ctx, event)
	})

	register(events.TypeInventoryFailed, func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParseInventoryResult(env.Payload)
		if err != nil {
			return err
		}
		return svcs.Saga.HandleInventoryFailed(ctx, event)
	})

	register(events.TypePaymentSucceeded, func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParsePaymentOutcome(env.Payload)
		if err != nil {
			return err
		}
		return svcs.Saga.HandlePaymentSucceeded(ctx, event)
	})

	// payment.failed запускает обе компенсации: отмену заказа сагой и
	// возврат резерва складом. Обе идемпотентны, повтор безопасен.
	register(events.TypePaymentFailed, func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParsePaymentOutcome(env.Payload)
		if err != nil {
			return err
		}
		if err := svcs.Saga.HandlePaymentFailed(ctx, event); err != nil {
			return err
		}
		return svcs.Inventory.HandlePaymentFailed(ctx, event)
	})

	register(events.TypeProductCreated, func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParseProductChanged(env.Payload)
		if err != nil {
			return err
		}
		return svcs.Inventory.HandleProductCreated(ctx, event)
	})

	register(events.TypeProductDeleted, func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParseProductChanged(env.Payload)
		if err != nil {
			return err
		}
		return svcs.Inventory.HandleProductDeleted(ctx, event)
	})

	register(events.TypeSeckillOrderWon, func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParseSeckillWon(env.Payload)
		if err != nil {
			return err
		}
		return svcs.Saga.HandleSeckillWon(ctx, event)
	})

	seckillRelease := func(ctx context.Context, env events.Envelope) error {
		event, err := events.ParseSeckillRelease(env.Payload)
		if err != nil {
			return err
		}
		return svcs.Seckill.HandleOrderRelease(ctx, event)
	}
	register(events.TypeOrderSeckillRelease, seckillRelease)
	// Исторический ключ той же компенсации.
	register(events.TypeSeckillReleased, seckillRelease)

	return router
}

// guarded оборачивает обработчик в подавление дубликатов по event id.
func guarded(guard *idempotency.Guard, m *metrics.PipelineMetrics, eventType string, handler events.Handler) events.Handler {
	return func(ctx context.Context, env events.Envelope) error {
		if guard.Checked(ctx, eventType, env.EventID) {
			m.RecordEventConsumed(eventType, "duplicate")
			return nil
		}
		if err := handler(ctx, env); err != nil {
			m.RecordEventConsumed(eventType, "error")
			return err
		}
		guard.Mark(ctx, eventType, env.EventID)
		m.RecordEventConsumed(eventType, "ok")
		return nil
	}
}

// messageBridge транслирует сообщение Kafka в envelope роутера.
func messageBridge(router *events.Router) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		env := events.Envelope{
			Type:          kafka.HeaderValue(message, kafka.HeaderEventType),
			RoutingKey:    kafka.HeaderValue(message, kafka.HeaderRoutingKey),
			MessageID:     kafka.HeaderValue(message, kafka.HeaderMessageID),
			EventID:       kafka.HeaderValue(message, kafka.HeaderEventID),
			CorrelationID: kafka.HeaderValue(message, kafka.HeaderCorrelationID),
			Payload:       message.Value,
		}
		return router.Dispatch(ctx, env)
	}
}
