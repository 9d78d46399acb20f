package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

func seedInventory(t *testing.T, store *Store, repo domain.InventoryRepository, rows ...domain.InventoryRow) {
	t.Helper()
	ctx := context.Background()
	err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		for _, row := range rows {
			if err := repo.CreateRow(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
}

func TestInventoryApplyReserveCountsAffected(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewInventoryRepository(store)
	seedInventory(t, store, repo,
		domain.InventoryRow{ProductID: "p-1", Available: 10},
		domain.InventoryRow{ProductID: "p-2", Available: 1},
	)

	var affected int
	err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		var err error
		affected, err = repo.ApplyReserve(ctx, tx, []domain.ReserveLine{
			{ProductID: "p-1", Quantity: 3},
			{ProductID: "p-2", Quantity: 5},
			{ProductID: "missing", Quantity: 1},
		})
		return err
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if affected != 1 {
		t.Errorf("only lines with enough stock count as affected, got %d", affected)
	}

	row, err := repo.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Available != 7 || row.Reserved != 3 {
		t.Errorf("p-1 counters wrong: %+v", row)
	}

	row, err = repo.Get(ctx, "p-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Available != 1 || row.Reserved != 0 {
		t.Errorf("insufficient line must stay untouched: %+v", row)
	}
}

func TestInventoryApplyReleaseGuard(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewInventoryRepository(store)
	seedInventory(t, store, repo, domain.InventoryRow{ProductID: "p-1", Available: 5})

	err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		if _, err := repo.ApplyReserve(ctx, tx, []domain.ReserveLine{{ProductID: "p-1", Quantity: 2}}); err != nil {
			return err
		}

		released, err := repo.ApplyRelease(ctx, tx, "p-1", 2)
		if err != nil {
			return err
		}
		if !released {
			t.Error("release of a held reservation must apply")
		}

		released, err = repo.ApplyRelease(ctx, tx, "p-1", 2)
		if err != nil {
			return err
		}
		if released {
			t.Error("over-release must be rejected")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	row, err := repo.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Available != 5 || row.Reserved != 0 {
		t.Errorf("counters must return to the initial state: %+v", row)
	}
}

func TestInventoryCreateRowIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewInventoryRepository(store)
	seedInventory(t, store, repo, domain.InventoryRow{ProductID: "p-1", Available: 5})
	seedInventory(t, store, repo, domain.InventoryRow{ProductID: "p-1", Available: 99})

	row, err := repo.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Available != 5 {
		t.Errorf("repeated create must not overwrite the row, got %+v", row)
	}
}

func TestInventoryDeleteRow(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewInventoryRepository(store)
	seedInventory(t, store, repo, domain.InventoryRow{ProductID: "p-1", Available: 5})

	if err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		return repo.DeleteRow(ctx, tx, "p-1")
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := repo.Get(ctx, "p-1"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestInventoryAuditTrail(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewInventoryRepository(store)

	err := domain.WithinTx(ctx, store, func(tx domain.Tx) error {
		return repo.AppendAudit(ctx, tx, domain.AuditEntry{
			ProductID: "p-1",
			Action:    domain.AuditActionReserve,
			Delta:     -2,
			OrderID:   "o-1",
		})
	})
	if err != nil {
		t.Fatalf("append audit: %v", err)
	}

	entries := AuditEntries(store)
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Errorf("audit entry must get id and timestamp: %+v", entries[0])
	}
}
