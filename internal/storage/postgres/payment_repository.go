package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

// CreateIfAbsent создаёт платёж, полагаясь на уникальный индекс по order_id.
// При конфликте возвращается существующая запись.
func (r *paymentRepository) CreateIfAbsent(ctx context.Context, payment domain.Payment) (domain.Payment, bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	if payment.Status == "" {
		payment.Status = domain.PaymentStatusPending
	}

	history, err := json.Marshal(payment.ErrorHistory)
	if err != nil {
		return domain.Payment{}, false, fmt.Errorf("marshal payment error history: %w", err)
	}
	if payment.ErrorHistory == nil {
		history = []byte("[]")
	}

	res, err := r.db.ExecContext(queryCtx, `
		INSERT INTO payments (
			id, order_id, status, amount_minor, currency, transaction_id,
			gateway_response, reason, attempts, error_history, correlation_id,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (order_id) DO NOTHING
	`,
		payment.ID, payment.OrderID, string(payment.Status), payment.AmountMinor,
		payment.Currency, payment.TransactionID, payment.GatewayResponse,
		payment.Reason, payment.Attempts, history, payment.CorrelationID,
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		return domain.Payment{}, false, fmt.Errorf("create payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Payment{}, false, fmt.Errorf("payment insert rows affected: %w", err)
	}
	if affected == 1 {
		return payment, true, nil
	}

	existing, err := r.Get(ctx, payment.OrderID)
	if err != nil {
		return domain.Payment{}, false, err
	}
	return existing, false, nil
}

func (r *paymentRepository) Get(ctx context.Context, orderID string) (domain.Payment, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		payment     domain.Payment
		status      string
		history     []byte
		processedAt sql.NullTime
	)
	err := r.db.QueryRowContext(queryCtx, `
		SELECT id, order_id, status, amount_minor, currency, transaction_id,
		       gateway_response, reason, attempts, error_history, processed_at,
		       correlation_id, created_at, updated_at
		FROM payments
		WHERE order_id = $1
	`, orderID).Scan(
		&payment.ID, &payment.OrderID, &status, &payment.AmountMinor,
		&payment.Currency, &payment.TransactionID, &payment.GatewayResponse,
		&payment.Reason, &payment.Attempts, &history, &processedAt,
		&payment.CorrelationID, &payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("get payment: %w", err)
	}

	payment.Status = domain.PaymentStatus(status)
	if processedAt.Valid {
		payment.ProcessedAt = processedAt.Time.UTC()
	}
	if err := json.Unmarshal(history, &payment.ErrorHistory); err != nil {
		return domain.Payment{}, fmt.Errorf("unmarshal payment error history: %w", err)
	}

	return payment, nil
}

// ClaimProcessing атомарно переводит платёж в processing. Охрана по статусу
// гарантирует, что терминальный платёж не захватывается повторно.
func (r *paymentRepository) ClaimProcessing(ctx context.Context, orderID string) (bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		UPDATE payments
		SET status = 'processing', updated_at = $2
		WHERE order_id = $1 AND status IN ('pending', 'processing')
	`, orderID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim payment processing: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment claim rows affected: %w", err)
	}

	return affected == 1, nil
}

// Finalize выполняет условный терминальный переход в транзакции вызывающего.
// false — другой инстанс уже финализировал платёж.
func (r *paymentRepository) Finalize(ctx context.Context, tx domain.Tx, orderID string, status domain.PaymentStatus, result domain.PaymentResult) (bool, error) {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return false, err
	}

	history, err := json.Marshal(resultErrorHistory(result))
	if err != nil {
		return false, fmt.Errorf("marshal payment error history: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE payments
		SET status = $2,
		    transaction_id = $3,
		    gateway_response = $4,
		    reason = $5,
		    attempts = $6,
		    error_history = error_history || $7::jsonb,
		    processed_at = $8,
		    updated_at = $9
		WHERE order_id = $1 AND status IN ('pending', 'processing')
	`,
		orderID, string(status), result.TransactionID, string(result.ErrorCode),
		result.Reason, result.Attempts, history, result.ProcessedAt, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("finalize payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment finalize rows affected: %w", err)
	}

	return affected == 1, nil
}

func resultErrorHistory(result domain.PaymentResult) []string {
	if result.Reason == "" {
		return []string{}
	}
	return []string{result.Reason}
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
