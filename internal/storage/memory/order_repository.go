package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт in-memory реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(ctx context.Context, tx domain.Tx, order domain.Order) error {
	release, err := r.store.enter(tx)
	if err != nil {
		return err
	}
	defer release()

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.SaleChannel == "" {
		order.SaleChannel = domain.SaleChannelStandard
	}
	order.Products = append([]domain.OrderLine(nil), order.Products...)
	r.store.st.orders[order.ID] = order
	return nil
}

func (r *orderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer release()

	order, ok := r.store.st.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Products = append([]domain.OrderLine(nil), order.Products...)
	return order, nil
}

func (r *orderRepository) Transition(ctx context.Context, tx domain.Tx, orderID string, from []domain.OrderStatus, to domain.OrderStatus, reason string) (bool, error) {
	release, err := r.store.enter(tx)
	if err != nil {
		return false, err
	}
	defer release()

	order, ok := r.store.st.orders[orderID]
	if !ok {
		return false, nil
	}

	matched := false
	for _, status := range from {
		if order.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}

	order.Status = to
	if reason != "" {
		order.CancellationReason = reason
	}
	order.UpdatedAt = time.Now().UTC()
	r.store.st.orders[orderID] = order
	return true, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
