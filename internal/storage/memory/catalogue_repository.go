package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type catalogueRepository struct {
	store *Store
}

// NewCatalogueRepository создаёт in-memory read model каталога.
func NewCatalogueRepository(store *Store) domain.CatalogueRepository {
	return &catalogueRepository{store: store}
}

func (r *catalogueRepository) Upsert(ctx context.Context, tx domain.Tx, product domain.Product) error {
	release, err := r.store.enter(tx)
	if err != nil {
		return err
	}
	defer release()

	now := time.Now().UTC()
	if existing, ok := r.store.st.products[product.ProductID]; ok {
		product.CreatedAt = existing.CreatedAt
	} else {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	r.store.st.products[product.ProductID] = product
	return nil
}

func (r *catalogueRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return domain.Product{}, err
	}
	defer release()

	product, ok := r.store.st.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *catalogueRepository) Delete(ctx context.Context, tx domain.Tx, productID string) error {
	release, err := r.store.enter(tx)
	if err != nil {
		return err
	}
	defer release()

	delete(r.store.st.products, productID)
	return nil
}

var _ domain.CatalogueRepository = (*catalogueRepository)(nil)
