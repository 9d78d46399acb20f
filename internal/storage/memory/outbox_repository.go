package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type outboxRepository struct {
	store *Store
}

// NewOutboxRepository создаёт in-memory реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{store: store}
}

func (r *outboxRepository) Enqueue(ctx context.Context, tx domain.Tx, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	release, err := r.store.enter(tx)
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	defer release()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.EventID == "" {
		msg.EventID = msg.ID
	}
	for _, existing := range r.store.st.outbox {
		if existing.EventID == msg.EventID {
			return domain.OutboxMessage{}, domain.ErrDuplicateEventID
		}
	}

	now := time.Now().UTC()
	msg.Status = domain.OutboxStatusPending
	if msg.MaxRetries == 0 {
		msg.MaxRetries = 3
	}
	msg.CreatedAt = now
	msg.UpdatedAt = now
	msg.Payload = append([]byte(nil), msg.Payload...)
	r.store.st.outbox[msg.ID] = msg
	return msg, nil
}

func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxMessage, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return nil, err
	}
	defer release()

	now := time.Now().UTC()
	var candidates []domain.OutboxMessage
	for _, msg := range r.store.st.outbox {
		switch msg.Status {
		case domain.OutboxStatusPending:
			candidates = append(candidates, msg)
		case domain.OutboxStatusFailed:
			if msg.RetryCount < msg.MaxRetries && !msg.NextRetryAt.After(now) {
				candidates = append(candidates, msg)
			}
		case domain.OutboxStatusPublishing:
			// Просроченный lease означает упавший relay-инстанс.
			if !msg.LeaseUntil.After(now) {
				candidates = append(candidates, msg)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]domain.OutboxMessage, 0, len(candidates))
	for _, msg := range candidates {
		msg.Status = domain.OutboxStatusPublishing
		msg.LeaseUntil = now.Add(lease)
		msg.UpdatedAt = now
		r.store.st.outbox[msg.ID] = msg
		claimed = append(claimed, msg)
	}
	return claimed, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id string) error {
	release, err := r.store.enter(nil)
	if err != nil {
		return err
	}
	defer release()

	msg, ok := r.store.st.outbox[id]
	if !ok || msg.Status == domain.OutboxStatusPublished {
		return nil
	}
	now := time.Now().UTC()
	msg.Status = domain.OutboxStatusPublished
	msg.PublishedAt = now
	msg.UpdatedAt = now
	r.store.st.outbox[id] = msg
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error {
	release, err := r.store.enter(nil)
	if err != nil {
		return err
	}
	defer release()

	msg, ok := r.store.st.outbox[id]
	if !ok || msg.Status == domain.OutboxStatusPublished {
		return nil
	}
	msg.Status = domain.OutboxStatusFailed
	if msg.RetryCount < msg.MaxRetries {
		msg.RetryCount++
	}
	msg.LastError = lastError
	msg.NextRetryAt = nextRetryAt
	msg.UpdatedAt = time.Now().UTC()
	r.store.st.outbox[id] = msg
	return nil
}

func (r *outboxRepository) Retryables(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return nil, err
	}
	defer release()

	var result []domain.OutboxMessage
	for _, msg := range r.store.st.outbox {
		if msg.Status == domain.OutboxStatusFailed && msg.RetryCount >= msg.MaxRetries {
			result = append(result, msg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *outboxRepository) DeletePublishedBefore(ctx context.Context, before time.Time) (int, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return 0, err
	}
	defer release()

	deleted := 0
	for id, msg := range r.store.st.outbox {
		if msg.Status == domain.OutboxStatusPublished && msg.PublishedAt.Before(before) {
			delete(r.store.st.outbox, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return domain.OutboxStats{}, err
	}
	defer release()

	var stats domain.OutboxStats
	for _, msg := range r.store.st.outbox {
		switch msg.Status {
		case domain.OutboxStatusPending:
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || msg.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = msg.CreatedAt
			}
		case domain.OutboxStatusFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
