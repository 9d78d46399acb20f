package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
)

func enqueue(t *testing.T, store *memory.Store, repo domain.OutboxRepository, eventType string) domain.OutboxMessage {
	t.Helper()
	ctx := context.Background()
	var stored domain.OutboxMessage
	err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		var err error
		stored, err = repo.Enqueue(ctx, tx, domain.OutboxMessage{
			EventType:  eventType,
			RoutingKey: eventType,
			Payload:    []byte(`{}`),
		})
		return err
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return stored
}

func TestWorkerProcessOncePublishes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := memory.NewOutboxRepository(store)
	publisher := memory.NewPublisher()

	enqueue(t, store, repo, "order.created")
	enqueue(t, store, repo, "order.confirmed")

	worker := NewWorker(repo, publisher)
	worker.ProcessOnce(ctx)

	published := publisher.Published()
	if len(published) != 2 {
		t.Fatalf("expected 2 published, got %d", len(published))
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 0 || stats.FailedCount != 0 {
		t.Errorf("backlog must drain, got %+v", stats)
	}
}

func TestWorkerProcessOnceMarksFailed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := memory.NewOutboxRepository(store)
	publisher := memory.NewPublisher()
	publisher.FailWith(errors.New("broker down"))

	msg := enqueue(t, store, repo, "payment.succeeded")

	worker := NewWorker(repo, publisher)
	worker.ProcessOnce(ctx)

	if len(publisher.Published()) != 0 {
		t.Error("nothing must be recorded as published")
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.FailedCount != 1 {
		t.Errorf("failed publish must mark the message failed, got %+v", stats)
	}

	// Повторный цикл до nextRetryAt не трогает запись.
	publisher.FailWith(nil)
	worker.ProcessOnce(ctx)
	if len(publisher.Published()) != 0 {
		t.Error("retry must wait for the backoff window")
	}

	// Продвигаем расписание вручную и убеждаемся, что запись добирается.
	if err := repo.MarkFailed(ctx, msg.ID, "broker down", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	worker.ProcessOnce(ctx)
	if len(publisher.Published()) != 1 {
		t.Errorf("due retry must publish, got %d", len(publisher.Published()))
	}
}

func TestWorkerCollectGarbage(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := memory.NewOutboxRepository(store)
	publisher := memory.NewPublisher()

	enqueue(t, store, repo, "order.created")

	worker := NewWorker(repo, publisher, WithRetention(-time.Second))
	worker.ProcessOnce(ctx)
	worker.CollectGarbage(ctx)

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 0 || stats.FailedCount != 0 {
		t.Errorf("published record must be collected, got %+v", stats)
	}

	claimed, err := repo.ClaimPending(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("store must be empty after gc, got %d", len(claimed))
	}
}

func TestRetryBackoffGrowsWithJitter(t *testing.T) {
	worker := NewWorker(nil, nil, WithRetryBaseDelay(time.Second))

	for retry, base := range map[int]time.Duration{
		0: time.Second,
		1: 2 * time.Second,
		3: 8 * time.Second,
	} {
		delay := worker.retryBackoff(retry)
		min := base - base/4
		max := base + base/4
		if delay < min || delay > max {
			t.Errorf("retry %d: delay %v outside [%v, %v]", retry, delay, min, max)
		}
	}
}
