package kafka

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// messageSender — минимальный интерфейс producer-а, нужный паблишеру.
type messageSender interface {
	PublishMessage(topic, key string, value []byte, headers map[string]string) error
}

// OutboxTopicPublisher публикует outbox-сообщения в Kafka. Topic выбирается
// по routing key, payload уходит как есть, служебные поля переносятся в headers.
type OutboxTopicPublisher struct {
	producer messageSender
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer) domain.EventPublisher {
	return &OutboxTopicPublisher{producer: producer}
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Partition key по агрегату: события одного заказа сохраняют порядок.
	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}

	headers := map[string]string{
		HeaderMessageID:  msg.ID,
		HeaderEventID:    msg.EventID,
		HeaderEventType:  msg.EventType,
		HeaderRoutingKey: msg.RoutingKey,
	}
	if msg.Metadata.CorrelationID != "" {
		headers[HeaderCorrelationID] = msg.Metadata.CorrelationID
	}

	return p.producer.PublishMessage(TopicForRoutingKey(msg.RoutingKey), key, msg.Payload, headers)
}

var _ domain.EventPublisher = (*OutboxTopicPublisher)(nil)
