package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type processedRecord struct {
	eventType   string
	ttlAt       time.Time
	processedAt time.Time
}

type processedEventRepository struct {
	store *Store
}

// NewProcessedEventRepository создаёт in-memory durable слой
// подавления дубликатов.
func NewProcessedEventRepository(store *Store) domain.ProcessedEventRepository {
	return &processedEventRepository{store: store}
}

func (r *processedEventRepository) MarkProcessed(ctx context.Context, messageID, eventType string, ttlAt time.Time) error {
	release, err := r.store.enter(nil)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := r.store.st.processed[messageID]; ok {
		return nil
	}
	if ttlAt.IsZero() {
		ttlAt = time.Now().UTC().Add(24 * time.Hour)
	}
	r.store.st.processed[messageID] = processedRecord{
		eventType:   eventType,
		ttlAt:       ttlAt,
		processedAt: time.Now().UTC(),
	}
	return nil
}

func (r *processedEventRepository) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return false, err
	}
	defer release()

	record, ok := r.store.st.processed[messageID]
	if !ok {
		return false, nil
	}
	return record.ttlAt.After(time.Now().UTC()), nil
}

func (r *processedEventRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return 0, err
	}
	defer release()

	if before.IsZero() {
		before = time.Now().UTC()
	}
	deleted := 0
	for id, record := range r.store.st.processed {
		if limit > 0 && deleted >= limit {
			break
		}
		if !record.ttlAt.After(before) {
			delete(r.store.st.processed, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ domain.ProcessedEventRepository = (*processedEventRepository)(nil)
