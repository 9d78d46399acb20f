package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type inventoryRepository struct {
	store *Store
}

// NewInventoryRepository создаёт in-memory реализацию InventoryRepository.
func NewInventoryRepository(store *Store) domain.InventoryRepository {
	return &inventoryRepository{store: store}
}

func (r *inventoryRepository) Get(ctx context.Context, productID string) (domain.InventoryRow, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return domain.InventoryRow{}, err
	}
	defer release()

	row, ok := r.store.st.inventory[productID]
	if !ok {
		return domain.InventoryRow{}, domain.ErrProductNotFound
	}
	return row, nil
}

func (r *inventoryRepository) GetBatch(ctx context.Context, tx domain.Tx, productIDs []string) ([]domain.InventoryRow, error) {
	release, err := r.store.enter(tx)
	if err != nil {
		return nil, err
	}
	defer release()

	result := make([]domain.InventoryRow, 0, len(productIDs))
	for _, id := range productIDs {
		if row, ok := r.store.st.inventory[id]; ok {
			result = append(result, row)
		}
	}
	return result, nil
}

func (r *inventoryRepository) ApplyReserve(ctx context.Context, tx domain.Tx, lines []domain.ReserveLine) (int, error) {
	release, err := r.store.enter(tx)
	if err != nil {
		return 0, err
	}
	defer release()

	affected := 0
	now := time.Now().UTC()
	for _, line := range lines {
		row, ok := r.store.st.inventory[line.ProductID]
		if !ok || row.Available < line.Quantity {
			continue
		}
		row.Available -= line.Quantity
		row.Reserved += line.Quantity
		row.UpdatedAt = now
		r.store.st.inventory[line.ProductID] = row
		affected++
	}
	return affected, nil
}

func (r *inventoryRepository) ApplyRelease(ctx context.Context, tx domain.Tx, productID string, qty int64) (bool, error) {
	release, err := r.store.enter(tx)
	if err != nil {
		return false, err
	}
	defer release()

	row, ok := r.store.st.inventory[productID]
	if !ok || row.Reserved < qty {
		return false, nil
	}
	row.Available += qty
	row.Reserved -= qty
	row.UpdatedAt = time.Now().UTC()
	r.store.st.inventory[productID] = row
	return true, nil
}

func (r *inventoryRepository) CreateRow(ctx context.Context, tx domain.Tx, row domain.InventoryRow) error {
	release, err := r.store.enter(tx)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := r.store.st.inventory[row.ProductID]; ok {
		return nil
	}
	now := time.Now().UTC()
	row.LastRestockedAt = now
	row.UpdatedAt = now
	r.store.st.inventory[row.ProductID] = row
	return nil
}

func (r *inventoryRepository) DeleteRow(ctx context.Context, tx domain.Tx, productID string) error {
	release, err := r.store.enter(tx)
	if err != nil {
		return err
	}
	defer release()

	delete(r.store.st.inventory, productID)
	return nil
}

func (r *inventoryRepository) AppendAudit(ctx context.Context, tx domain.Tx, entry domain.AuditEntry) error {
	release, err := r.store.enter(tx)
	if err != nil {
		return err
	}
	defer release()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.store.st.audit = append(r.store.st.audit, entry)
	return nil
}

// AuditEntries возвращает копию журнала аудита. Только для тестов.
func AuditEntries(store *Store) []domain.AuditEntry {
	store.mu.Lock()
	defer store.mu.Unlock()
	return append([]domain.AuditEntry(nil), store.st.audit...)
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
