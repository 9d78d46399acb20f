// Package seckill содержит движок flash-sale: приём попыток покупки со
// строго ограниченной задержкой и нулевым overselling.
package seckill

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/events"
	"github.com/vladislavdragonenkov/ecom/internal/metrics"
)

const serviceName = "seckill-engine"

// Engine принимает попытки покупки. Критическая секция целиком лежит в
// атомарном скрипте стора; движок лишь транслирует исход и публикует
// событие победы.
type Engine struct {
	store     domain.SeckillStore
	publisher domain.EventPublisher
	journal   *GhostJournal
	logger    *log.Entry
	metrics   *metrics.PipelineMetrics
}

// NewEngine создаёт движок flash-sale.
func NewEngine(
	store domain.SeckillStore,
	publisher domain.EventPublisher,
	journal *GhostJournal,
	m *metrics.PipelineMetrics,
	logger *log.Entry,
) *Engine {
	if logger == nil {
		logger = log.WithField("component", serviceName)
	}
	return &Engine{
		store:     store,
		publisher: publisher,
		journal:   journal,
		logger:    logger,
		metrics:   m,
	}
}

// Buy выполняет попытку покупки и возвращает исход и correlation id
// победы. На успех публикуется seckill.order.won; провал публикации не
// откатывает резервирование: слот уже "reserved", событие дописывается
// в ghost-журнал для replay оператором.
func (e *Engine) Buy(ctx context.Context, productID, userID string) (domain.SeckillOutcome, string, error) {
	outcome, err := e.store.Reserve(ctx, productID, userID)
	if err != nil {
		return 0, "", err
	}
	e.metrics.RecordSeckillOutcome(outcome.String())

	if outcome != domain.SeckillReserved {
		return outcome, "", nil
	}

	correlationID := uuid.NewString()
	if err := e.publishWon(ctx, productID, userID, correlationID); err != nil {
		e.metrics.RecordPublishAttempt("seckill_ghost")
		e.logger.WithError(err).WithFields(log.Fields{
			"product_id": productID,
			"user_id":    userID,
		}).Error("failed to publish seckill win, appending to ghost journal")

		if e.journal != nil {
			if jErr := e.journal.Append(domain.GhostOrder{
				ProductID:     productID,
				UserID:        userID,
				CorrelationID: correlationID,
				ReservedAt:    time.Now().UTC(),
				PublishError:  err.Error(),
			}); jErr != nil {
				e.logger.WithError(jErr).Error("failed to append ghost journal")
			}
		}
	}

	return domain.SeckillReserved, correlationID, nil
}

// PublishWon публикует победу. Используется и в основном потоке, и при
// replay ghost-журнала.
func (e *Engine) PublishWon(ctx context.Context, ghost domain.GhostOrder) error {
	return e.publishWon(ctx, ghost.ProductID, ghost.UserID, ghost.CorrelationID)
}

func (e *Engine) publishWon(ctx context.Context, productID, userID, correlationID string) error {
	campaign, err := e.store.CampaignStatus(ctx, productID)
	if err != nil {
		campaign = domain.Campaign{ProductID: productID}
	}

	payload, err := json.Marshal(events.SeckillWon{
		ProductID:     productID,
		UserID:        userID,
		PriceMinor:    campaign.PriceMinor,
		Currency:      campaign.Currency,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal seckill won payload: %w", err)
	}

	msg := domain.OutboxMessage{
		ID:            uuid.NewString(),
		EventID:       fmt.Sprintf("seckill-won:%s:%s", productID, userID),
		AggregateType: "seckill",
		AggregateID:   productID,
		EventType:     events.TypeSeckillOrderWon,
		RoutingKey:    events.TypeSeckillOrderWon,
		Payload:       payload,
		Metadata: domain.EventMetadata{
			CorrelationID: correlationID,
			Service:       serviceName,
			Timestamp:     time.Now().UTC(),
		},
	}
	return e.publisher.Publish(ctx, msg)
}

// Release снимает победу пользователя и возвращает слот в сток.
// Снятие несуществующей победы — идемпотентный успех.
func (e *Engine) Release(ctx context.Context, productID, userID string) (bool, error) {
	released, err := e.store.Release(ctx, productID, userID)
	if err != nil {
		return false, err
	}
	if !released {
		e.logger.WithFields(log.Fields{
			"product_id": productID,
			"user_id":    userID,
		}).Warn("seckill release for non-winner ignored")
	}
	return released, nil
}

// HandleOrderRelease — консьюмер order.seckill.release: компенсация
// отменённого seckill-заказа.
func (e *Engine) HandleOrderRelease(ctx context.Context, event events.SeckillRelease) error {
	if _, err := e.Release(ctx, event.ProductID, event.UserID); err != nil {
		return domain.Transient(err)
	}
	return nil
}

// InitCampaign записывает ключи кампании. Повторная инициализация
// намеренно сбрасывает winners.
func (e *Engine) InitCampaign(ctx context.Context, campaign domain.Campaign) error {
	if campaign.ProductID == "" || campaign.TotalStock < 0 {
		return fmt.Errorf("invalid campaign parameters")
	}
	if campaign.StartTime.IsZero() {
		campaign.StartTime = time.Now().UTC()
	}

	if err := e.store.InitCampaign(ctx, campaign); err != nil {
		return err
	}
	e.logger.WithFields(log.Fields{
		"product_id": campaign.ProductID,
		"stock":      campaign.TotalStock,
		"start_time": campaign.StartTime,
	}).Info("seckill campaign initialized")
	return nil
}

// CampaignStatus возвращает текущее состояние кампании.
func (e *Engine) CampaignStatus(ctx context.Context, productID string) (domain.Campaign, error) {
	return e.store.CampaignStatus(ctx, productID)
}
