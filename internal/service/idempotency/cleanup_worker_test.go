package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
)

func TestCleanupWorkerDeletesInBatches(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProcessedEventRepository(memory.NewStore())

	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("stale-%d", i)
		if err := repo.MarkProcessed(ctx, id, "order.created", time.Now().Add(-time.Minute)); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}
	if err := repo.MarkProcessed(ctx, "fresh", "order.created", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("mark: %v", err)
	}

	worker := NewCleanupWorker(repo, WithBatchSize(3))
	deleted, err := worker.DeleteExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 7 {
		t.Errorf("expected 7 deleted across batches, got %d", deleted)
	}

	seen, err := repo.IsProcessed(ctx, "fresh")
	if err != nil || !seen {
		t.Errorf("fresh marker must survive, got (%v, %v)", seen, err)
	}
}

func TestCleanupWorkerStopsOnCancel(t *testing.T) {
	repo := memory.NewProcessedEventRepository(memory.NewStore())
	worker := NewCleanupWorker(repo, WithBatchSize(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := worker.DeleteExpired(ctx, time.Now()); err == nil {
		t.Error("cancelled context must abort the sweep")
	}
}
