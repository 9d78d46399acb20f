package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository создаёт PostgreSQL-реализацию InventoryRepository.
func NewInventoryRepository(store *Store) domain.InventoryRepository {
	return &inventoryRepository{db: store.DB()}
}

func (r *inventoryRepository) Get(ctx context.Context, productID string) (domain.InventoryRow, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		row       domain.InventoryRow
		restocked sql.NullTime
	)
	err := r.db.QueryRowContext(queryCtx, `
		SELECT product_id, available, reserved, last_restocked_at, updated_at
		FROM inventory
		WHERE product_id = $1
	`, productID).Scan(&row.ProductID, &row.Available, &row.Reserved, &restocked, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryRow{}, domain.ErrProductNotFound
		}
		return domain.InventoryRow{}, fmt.Errorf("get inventory row: %w", err)
	}

	if restocked.Valid {
		row.LastRestockedAt = restocked.Time.UTC()
	}
	return row, nil
}

func (r *inventoryRepository) GetBatch(ctx context.Context, tx domain.Tx, productIDs []string) ([]domain.InventoryRow, error) {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, available, reserved, last_restocked_at, updated_at
		FROM inventory
		WHERE product_id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("get inventory batch: %w", err)
	}
	defer rows.Close()

	result := make([]domain.InventoryRow, 0, len(productIDs))
	for rows.Next() {
		var (
			row       domain.InventoryRow
			restocked sql.NullTime
		)
		if err := rows.Scan(&row.ProductID, &row.Available, &row.Reserved, &restocked, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		if restocked.Valid {
			row.LastRestockedAt = restocked.Time.UTC()
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory rows: %w", err)
	}

	return result, nil
}

// ApplyReserve выполняет один батчевый условный UPDATE по всем позициям.
// Предикат available >= qty в каждой строке охраняет инвариант
// неотрицательности; число затронутых строк сверяет вызывающий.
func (r *inventoryRepository) ApplyReserve(ctx context.Context, tx domain.Tx, lines []domain.ReserveLine) (int, error) {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(lines))
	qtys := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
		qtys = append(qtys, line.Quantity)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE inventory i
		SET available = i.available - u.qty,
		    reserved = i.reserved + u.qty,
		    updated_at = $3
		FROM (SELECT UNNEST($1::text[]) AS product_id, UNNEST($2::bigint[]) AS qty) u
		WHERE i.product_id = u.product_id AND i.available >= u.qty
	`, ids, qtys, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("apply batch reserve: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reserve rows affected: %w", err)
	}

	return int(affected), nil
}

// ApplyRelease снимает резерв с предикатом reserved >= qty.
// false означает, что резерв уже снят ранее — идемпотентный успех.
func (r *inventoryRepository) ApplyRelease(ctx context.Context, tx domain.Tx, productID string, qty int64) (bool, error) {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return false, err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE inventory
		SET available = available + $2,
		    reserved = reserved - $2,
		    updated_at = $3
		WHERE product_id = $1 AND reserved >= $2
	`, productID, qty, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("apply release: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *inventoryRepository) CreateRow(ctx context.Context, tx domain.Tx, row domain.InventoryRow) error {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = q.ExecContext(ctx, `
		INSERT INTO inventory (product_id, available, reserved, last_restocked_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (product_id) DO NOTHING
	`, row.ProductID, row.Available, row.Reserved, now, now)
	if err != nil {
		return fmt.Errorf("create inventory row: %w", err)
	}

	return nil
}

func (r *inventoryRepository) DeleteRow(ctx context.Context, tx domain.Tx, productID string) error {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `
		DELETE FROM inventory WHERE product_id = $1
	`, productID); err != nil {
		return fmt.Errorf("delete inventory row: %w", err)
	}

	return nil
}

func (r *inventoryRepository) AppendAudit(ctx context.Context, tx domain.Tx, entry domain.AuditEntry) error {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO inventory_audit (
			id, product_id, action, previous_value, new_value, delta,
			reason, order_id, correlation_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		entry.ID, entry.ProductID, string(entry.Action), entry.PreviousValue,
		entry.NewValue, entry.Delta, entry.Reason, entry.OrderID,
		entry.CorrelationID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append inventory audit: %w", err)
	}

	return nil
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
