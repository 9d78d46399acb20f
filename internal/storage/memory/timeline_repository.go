package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type timelineRepository struct {
	store *Store
}

// NewTimelineRepository создаёт in-memory журнал жизненного цикла заказов.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{store: store}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	release, err := r.store.enter(nil)
	if err != nil {
		return err
	}
	defer release()

	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	r.store.st.timeline[event.OrderID] = append(r.store.st.timeline[event.OrderID], event)
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return nil, err
	}
	defer release()

	return append([]domain.TimelineEvent(nil), r.store.st.timeline[orderID]...), nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
