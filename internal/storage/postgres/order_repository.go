package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, tx domain.Tx, order domain.Order) error {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return err
	}

	products, err := json.Marshal(order.Products)
	if err != nil {
		return fmt.Errorf("marshal order products: %w", err)
	}

	if order.SaleChannel == "" {
		order.SaleChannel = domain.SaleChannelStandard
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, products, total_price_minor, currency, status,
			sale_channel, cancellation_reason, correlation_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		order.ID, order.UserID, products, order.TotalPriceMinor, order.Currency,
		string(order.Status), string(order.SaleChannel), order.CancellationReason,
		order.CorrelationID, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		order    domain.Order
		products []byte
		status   string
		channel  string
	)
	err := r.db.QueryRowContext(queryCtx, `
		SELECT id, user_id, products, total_price_minor, currency, status,
		       sale_channel, cancellation_reason, correlation_id, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, orderID).Scan(
		&order.ID, &order.UserID, &products, &order.TotalPriceMinor, &order.Currency,
		&status, &channel, &order.CancellationReason, &order.CorrelationID,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}

	order.Status = domain.OrderStatus(status)
	order.SaleChannel = domain.SaleChannel(channel)
	if err := json.Unmarshal(products, &order.Products); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal order products: %w", err)
	}

	return order, nil
}

// Transition выполняет условный переход статуса: UPDATE охраняется текущим
// значением, поэтому два конкурирующих события не могут выиграть одновременно.
func (r *orderRepository) Transition(ctx context.Context, tx domain.Tx, orderID string, from []domain.OrderStatus, to domain.OrderStatus, reason string) (bool, error) {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return false, err
	}

	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}

	res, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    cancellation_reason = CASE WHEN $3 <> '' THEN $3 ELSE cancellation_reason END,
		    updated_at = $4
		WHERE id = $1 AND status = ANY($5)
	`, orderID, string(to), reason, time.Now().UTC(), statuses)
	if err != nil {
		return false, fmt.Errorf("transition order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("order transition rows affected: %w", err)
	}

	return affected == 1, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
