package kafka

import "strings"

// Topics для Kafka. События группируются по семейству routing key.
const (
	TopicOrderEvents     = "ecom.order.events"
	TopicInventoryEvents = "ecom.inventory.events"
	TopicPaymentEvents   = "ecom.payment.events"
	TopicProductEvents   = "ecom.product.events"
	TopicSeckillEvents   = "ecom.seckill.events"
	TopicDeadLetterQueue = "ecom.dlq"
)

// Kafka headers.
const (
	HeaderMessageID     = "message_id"
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderRoutingKey    = "routing_key"
	HeaderCorrelationID = "correlation_id"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// TopicForRoutingKey выбирает topic по первому сегменту routing key.
// Ключи seckill-подсемейства заказов уходят в seckill topic.
func TopicForRoutingKey(routingKey string) string {
	if strings.HasPrefix(routingKey, "order.seckill.") {
		return TopicSeckillEvents
	}

	segment, _, _ := strings.Cut(routingKey, ".")
	switch segment {
	case "order":
		return TopicOrderEvents
	case "inventory":
		return TopicInventoryEvents
	case "payment":
		return TopicPaymentEvents
	case "product":
		return TopicProductEvents
	case "seckill":
		return TopicSeckillEvents
	default:
		return TopicOrderEvents
	}
}
