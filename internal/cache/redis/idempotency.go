package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// idempotencyChecker — быстрый слой подавления дубликатов по бизнес-ключу.
// При недоступности Redis слой fail open: событие считается необработанным,
// дедупликацию страхуют условные предикаты хранилища.
type idempotencyChecker struct {
	client  *redis.Client
	service string
	logger  *log.Entry
}

// NewIdempotencyChecker создаёт checker с пространством ключей service.
func NewIdempotencyChecker(client *redis.Client, service string, logger *log.Entry) domain.IdempotencyChecker {
	return &idempotencyChecker{
		client:  client,
		service: service,
		logger:  logger.WithField("component", "idempotency"),
	}
}

func (c *idempotencyChecker) key(eventType, id string) string {
	return c.service + ":event:processed:" + eventType + ":" + id
}

func (c *idempotencyChecker) IsProcessed(ctx context.Context, eventType, id string) bool {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	exists, err := c.client.Exists(opCtx, c.key(eventType, id)).Result()
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"event_id":   id,
		}).Warn("idempotency check failed, treating event as unprocessed")
		return false
	}
	return exists == 1
}

func (c *idempotencyChecker) MarkProcessed(ctx context.Context, eventType, id string, ttl time.Duration) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := c.client.Set(opCtx, c.key(eventType, id), 1, ttl).Err(); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"event_id":   id,
		}).Warn("failed to mark event processed")
	}
}

var _ domain.IdempotencyChecker = (*idempotencyChecker)(nil)
