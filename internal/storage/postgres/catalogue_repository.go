package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type catalogueRepository struct {
	db *sql.DB
}

// NewCatalogueRepository создаёт PostgreSQL-реализацию CatalogueRepository.
func NewCatalogueRepository(store *Store) domain.CatalogueRepository {
	return &catalogueRepository{db: store.DB()}
}

func (r *catalogueRepository) Upsert(ctx context.Context, tx domain.Tx, product domain.Product) error {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = q.ExecContext(ctx, `
		INSERT INTO products (product_id, name, price_minor, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (product_id) DO UPDATE
		SET name = EXCLUDED.name,
		    price_minor = EXCLUDED.price_minor,
		    updated_at = EXCLUDED.updated_at
	`, product.ProductID, product.Name, product.PriceMinor, now, now)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	return nil
}

func (r *catalogueRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(queryCtx, `
		SELECT product_id, name, price_minor, created_at, updated_at
		FROM products
		WHERE product_id = $1
	`, productID).Scan(
		&product.ProductID, &product.Name, &product.PriceMinor,
		&product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func (r *catalogueRepository) Delete(ctx context.Context, tx domain.Tx, productID string) error {
	q, err := querierOf(r.db, tx)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `
		DELETE FROM products WHERE product_id = $1
	`, productID); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	return nil
}

var _ domain.CatalogueRepository = (*catalogueRepository)(nil)
