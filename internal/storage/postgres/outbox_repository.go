package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

const defaultOutboxMaxRetries = 3

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) Enqueue(ctx context.Context, tx domain.Tx, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return domain.OutboxMessage{}, err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.EventID == "" {
		msg.EventID = msg.ID
	}
	if msg.MaxRetries <= 0 {
		msg.MaxRetries = defaultOutboxMaxRetries
	}
	now := time.Now().UTC()
	msg.Status = domain.OutboxStatusPending
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if msg.Metadata.Timestamp.IsZero() {
		msg.Metadata.Timestamp = now
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, correlation_id, causation_id, service,
			status, retry_count, max_retries, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'pending',0,$11,$12,$13)
	`,
		msg.ID, msg.EventID, msg.AggregateType, msg.AggregateID, msg.EventType,
		msg.RoutingKey, msg.Payload, msg.Metadata.CorrelationID,
		msg.Metadata.CausationID, msg.Metadata.Service,
		msg.MaxRetries, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.OutboxMessage{}, domain.ErrDuplicateEventID
		}
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message: %w", err)
	}

	return msg, nil
}

// ClaimPending захватывает батч записей CAS-переходом pending → publishing
// с lease. SKIP LOCKED защищает от двойного захвата конкурентными relay.
func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxMessage, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	now := time.Now().UTC()

	rows, err := r.db.QueryContext(queryCtx, `
		UPDATE outbox_messages
		SET status = 'publishing',
		    lease_until = $2,
		    updated_at = $3
		WHERE id IN (
			SELECT id
			FROM outbox_messages
			WHERE status = 'pending'
			   OR (status = 'failed' AND retry_count < max_retries AND next_retry_at <= $3)
			   OR (status = 'publishing' AND lease_until <= $3)
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
		          payload, correlation_id, causation_id, service,
		          retry_count, max_retries, last_error, created_at
	`, limit, now.Add(lease), now)
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox messages: %w", err)
	}
	defer rows.Close()

	result := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		msg := domain.OutboxMessage{Status: domain.OutboxStatusPublishing}
		if err := rows.Scan(
			&msg.ID, &msg.EventID, &msg.AggregateType, &msg.AggregateID,
			&msg.EventType, &msg.RoutingKey, &msg.Payload,
			&msg.Metadata.CorrelationID, &msg.Metadata.CausationID, &msg.Metadata.Service,
			&msg.RetryCount, &msg.MaxRetries, &msg.LastError, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan claimed outbox message: %w", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed outbox rows: %w", err)
	}

	return result, nil
}

// MarkPublished финализирует запись. Охрана по статусу не даёт повторно
// мутировать уже published-запись.
func (r *outboxRepository) MarkPublished(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	res, err := r.db.ExecContext(queryCtx, `
		UPDATE outbox_messages
		SET status = 'published',
		    published_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status <> 'published'
	`, id, now)
	if err != nil {
		return fmt.Errorf("mark outbox message published: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox published rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("outbox message %s not found or already published", id)
	}

	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		UPDATE outbox_messages
		SET status = 'failed',
		    retry_count = LEAST(retry_count + 1, max_retries),
		    last_error = $2,
		    next_retry_at = $3,
		    updated_at = $4
		WHERE id = $1 AND status <> 'published'
	`, id, lastError, nextRetryAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox message failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox failed rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("outbox message %s not found or already published", id)
	}

	return nil
}

// Retryables возвращает записи, исчерпавшие retry. Они никогда не
// удаляются автоматически — только вмешательство оператора.
func (r *outboxRepository) Retryables(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(queryCtx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
		       payload, correlation_id, causation_id, service,
		       retry_count, max_retries, last_error, created_at
		FROM outbox_messages
		WHERE status = 'failed' AND retry_count >= max_retries
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query retryable outbox messages: %w", err)
	}
	defer rows.Close()

	result := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		msg := domain.OutboxMessage{Status: domain.OutboxStatusFailed}
		if err := rows.Scan(
			&msg.ID, &msg.EventID, &msg.AggregateType, &msg.AggregateID,
			&msg.EventType, &msg.RoutingKey, &msg.Payload,
			&msg.Metadata.CorrelationID, &msg.Metadata.CausationID, &msg.Metadata.Service,
			&msg.RetryCount, &msg.MaxRetries, &msg.LastError, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan retryable outbox message: %w", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retryable outbox rows: %w", err)
	}

	return result, nil
}

// DeletePublishedBefore удаляет published-записи старше границы retention.
// Failed-записи не удаляются никогда.
func (r *outboxRepository) DeletePublishedBefore(ctx context.Context, before time.Time) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		DELETE FROM outbox_messages
		WHERE status = 'published' AND published_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete published outbox messages: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox gc rows affected: %w", err)
	}

	return int(affected), nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(queryCtx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('pending', 'publishing')),
			COUNT(*) FILTER (WHERE status = 'failed'),
			MIN(created_at) FILTER (WHERE status IN ('pending', 'publishing'))
		FROM outbox_messages
	`).Scan(&stats.PendingCount, &stats.FailedCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats query failed: %w", err)
	}

	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}

	return stats, nil
}

// isUniqueViolation распознаёт нарушение уникального ограничения PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
