package seckill

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

func TestGhostJournalRoundTrip(t *testing.T) {
	journal := NewGhostJournal(filepath.Join(t.TempDir(), "ghosts.jsonl"))

	ghosts, err := journal.ReadAll()
	if err != nil {
		t.Fatalf("read empty journal: %v", err)
	}
	if len(ghosts) != 0 {
		t.Errorf("missing file must read as empty, got %d", len(ghosts))
	}

	first := domain.GhostOrder{
		ProductID:     "p-1",
		UserID:        "u-1",
		CorrelationID: "corr-1",
		ReservedAt:    time.Now().UTC().Truncate(time.Second),
		PublishError:  "broker down",
	}
	second := domain.GhostOrder{ProductID: "p-2", UserID: "u-2", CorrelationID: "corr-2"}

	if err := journal.Append(first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := journal.Append(second); err != nil {
		t.Fatalf("append: %v", err)
	}

	ghosts, err = journal.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ghosts) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ghosts))
	}
	if ghosts[0].ProductID != "p-1" || ghosts[0].PublishError != "broker down" {
		t.Errorf("first entry wrong: %+v", ghosts[0])
	}
	if !ghosts[0].ReservedAt.Equal(first.ReservedAt) {
		t.Errorf("timestamp must survive the round trip: %v", ghosts[0].ReservedAt)
	}
}

func TestGhostJournalTruncate(t *testing.T) {
	journal := NewGhostJournal(filepath.Join(t.TempDir(), "ghosts.jsonl"))

	if err := journal.Append(domain.GhostOrder{ProductID: "p-1", UserID: "u-1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := journal.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	ghosts, err := journal.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ghosts) != 0 {
		t.Errorf("journal must be empty after truncate, got %d", len(ghosts))
	}

	// Truncate несуществующего файла — успех.
	missing := NewGhostJournal(filepath.Join(t.TempDir(), "missing.jsonl"))
	if err := missing.Truncate(); err != nil {
		t.Errorf("truncate of a missing journal must succeed: %v", err)
	}
}
