package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type processedEventRepository struct {
	db *sql.DB
}

// NewProcessedEventRepository создаёт durable слой подавления дубликатов.
// Запись делается write-through после успешной обработки сообщения.
func NewProcessedEventRepository(store *Store) domain.ProcessedEventRepository {
	return &processedEventRepository{db: store.DB()}
}

func (r *processedEventRepository) MarkProcessed(ctx context.Context, messageID, eventType string, ttlAt time.Time) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if ttlAt.IsZero() {
		ttlAt = time.Now().UTC().Add(24 * time.Hour)
	}

	_, err := r.db.ExecContext(queryCtx, `
		INSERT INTO processed_events (message_id, event_type, ttl_at, processed_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (message_id) DO NOTHING
	`, messageID, eventType, ttlAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}

	return nil
}

func (r *processedEventRepository) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(queryCtx, `
		SELECT TRUE FROM processed_events
		WHERE message_id = $1 AND ttl_at > $2
	`, messageID, time.Now().UTC()).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check processed event: %w", err)
	}

	return exists, nil
}

func (r *processedEventRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if before.IsZero() {
		before = time.Now().UTC()
	}

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.db.ExecContext(queryCtx, `
			DELETE FROM processed_events
			WHERE message_id IN (
				SELECT message_id
				FROM processed_events
				WHERE ttl_at <= $1
				ORDER BY ttl_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(queryCtx, `
			DELETE FROM processed_events WHERE ttl_at <= $1
		`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired processed events: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("processed events rows affected: %w", err)
	}

	return int(affected), nil
}

var _ domain.ProcessedEventRepository = (*processedEventRepository)(nil)
