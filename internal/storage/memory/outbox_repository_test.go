package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

func enqueue(t *testing.T, store *Store, repo domain.OutboxRepository, msg domain.OutboxMessage) domain.OutboxMessage {
	t.Helper()
	ctx := context.Background()
	var stored domain.OutboxMessage
	err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		var err error
		stored, err = repo.Enqueue(ctx, tx, msg)
		return err
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return stored
}

func TestOutboxEnqueueRejectsDuplicateEventID(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOutboxRepository(store)

	enqueue(t, store, repo, domain.OutboxMessage{EventID: "inventory-reserved:o-1", EventType: "inventory.reserved.success"})

	err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		_, err := repo.Enqueue(ctx, tx, domain.OutboxMessage{EventID: "inventory-reserved:o-1", EventType: "inventory.reserved.success"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateEventID) {
		t.Errorf("expected ErrDuplicateEventID, got %v", err)
	}
}

func TestOutboxClaimPendingFIFO(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOutboxRepository(store)

	first := enqueue(t, store, repo, domain.OutboxMessage{EventType: "order.created"})
	time.Sleep(2 * time.Millisecond)
	second := enqueue(t, store, repo, domain.OutboxMessage{EventType: "order.confirmed"})

	claimed, err := repo.ClaimPending(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}
	if claimed[0].ID != first.ID || claimed[1].ID != second.ID {
		t.Errorf("claim order must follow creation order: %s, %s", claimed[0].ID, claimed[1].ID)
	}
	for _, msg := range claimed {
		if msg.Status != domain.OutboxStatusPublishing {
			t.Errorf("claimed message must be publishing, got %s", msg.Status)
		}
	}

	again, err := repo.ClaimPending(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("leased messages must not be reclaimed, got %d", len(again))
	}
}

func TestOutboxClaimReclaimsExpiredLease(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOutboxRepository(store)

	msg := enqueue(t, store, repo, domain.OutboxMessage{EventType: "order.created"})

	if _, err := repo.ClaimPending(ctx, 10, -time.Second); err != nil {
		t.Fatalf("claim with expired lease: %v", err)
	}

	reclaimed, err := repo.ClaimPending(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != msg.ID {
		t.Fatalf("expired lease must be reclaimable, got %v", reclaimed)
	}
}

func TestOutboxMarkFailedRetrySchedule(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOutboxRepository(store)

	msg := enqueue(t, store, repo, domain.OutboxMessage{EventType: "payment.succeeded"})

	if err := repo.MarkFailed(ctx, msg.ID, "broker down", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	claimed, err := repo.ClaimPending(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("message with future nextRetryAt must not be claimed, got %d", len(claimed))
	}

	if err := repo.MarkFailed(ctx, msg.ID, "broker down", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	claimed, err = repo.ClaimPending(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("due retry must be claimed, got %d", len(claimed))
	}
	if claimed[0].RetryCount != 2 {
		t.Errorf("retry count must accumulate, got %d", claimed[0].RetryCount)
	}
}

func TestOutboxMarkFailedCapMovesToRetryables(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOutboxRepository(store)

	msg := enqueue(t, store, repo, domain.OutboxMessage{EventType: "payment.failed"})

	for i := 0; i < 5; i++ {
		if err := repo.MarkFailed(ctx, msg.ID, "broker down", time.Now().Add(-time.Second)); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}

	claimed, err := repo.ClaimPending(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("exhausted message must not be claimed, got %d", len(claimed))
	}

	dead, err := repo.Retryables(ctx, 10)
	if err != nil {
		t.Fatalf("retryables: %v", err)
	}
	if len(dead) != 1 || dead[0].RetryCount != dead[0].MaxRetries {
		t.Errorf("exhausted message must appear in retryables, got %+v", dead)
	}
}

func TestOutboxMarkPublishedIsFinal(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOutboxRepository(store)

	msg := enqueue(t, store, repo, domain.OutboxMessage{EventType: "order.created"})

	if err := repo.MarkPublished(ctx, msg.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := repo.MarkFailed(ctx, msg.ID, "late failure", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	claimed, err := repo.ClaimPending(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("published message must stay published, got %d claimed", len(claimed))
	}
}

func TestOutboxGC(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOutboxRepository(store)

	old := enqueue(t, store, repo, domain.OutboxMessage{EventType: "order.created"})
	fresh := enqueue(t, store, repo, domain.OutboxMessage{EventType: "order.confirmed"})

	if err := repo.MarkPublished(ctx, old.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Errorf("pending message must survive gc, got %+v", stats)
	}
	_ = fresh
}
