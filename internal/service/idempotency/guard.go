// Package idempotency содержит двухслойное подавление дубликатов:
// быстрый слой в key-value сторе и durable таблицу processed_events.
package idempotency

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

const defaultTTL = 24 * time.Hour

// Guard комбинирует быстрый слой (fail open) и durable таблицу.
// Checked возвращает true, если событие уже обработано любым из слоёв;
// Mark пишет write-through в оба слоя после успешной обработки.
type Guard struct {
	fast    domain.IdempotencyChecker
	durable domain.ProcessedEventRepository
	ttl     time.Duration
	logger  *log.Entry
}

// NewGuard создаёт guard. Любой из слоёв может быть nil.
func NewGuard(fast domain.IdempotencyChecker, durable domain.ProcessedEventRepository, logger *log.Entry) *Guard {
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		fast:    fast,
		durable: durable,
		ttl:     defaultTTL,
		logger:  logger,
	}
}

// Checked сообщает, было ли событие уже обработано. Ошибка durable-слоя
// трактуется fail open: ложный повтор дешевле потерянного события,
// условные предикаты хранилища страхуют от двойных эффектов.
func (g *Guard) Checked(ctx context.Context, eventType, id string) bool {
	if id == "" {
		return false
	}
	if g.fast != nil && g.fast.IsProcessed(ctx, eventType, id) {
		return true
	}
	if g.durable != nil {
		processed, err := g.durable.IsProcessed(ctx, eventType+":"+id)
		if err != nil {
			g.logger.WithError(err).WithFields(log.Fields{
				"event_type": eventType,
				"event_id":   id,
			}).Warn("durable idempotency check failed, treating as unprocessed")
			return false
		}
		return processed
	}
	return false
}

// Mark помечает событие обработанным в обоих слоях.
func (g *Guard) Mark(ctx context.Context, eventType, id string) {
	if id == "" {
		return
	}
	if g.fast != nil {
		g.fast.MarkProcessed(ctx, eventType, id, g.ttl)
	}
	if g.durable != nil {
		ttlAt := time.Now().UTC().Add(g.ttl)
		if err := g.durable.MarkProcessed(ctx, eventType+":"+id, eventType, ttlAt); err != nil {
			g.logger.WithError(err).WithFields(log.Fields{
				"event_type": eventType,
				"event_id":   id,
			}).Warn("failed to mark event processed in durable layer")
		}
	}
}
