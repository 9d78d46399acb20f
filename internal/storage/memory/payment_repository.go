package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type paymentRepository struct {
	store *Store
}

// NewPaymentRepository создаёт in-memory реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{store: store}
}

func (r *paymentRepository) CreateIfAbsent(ctx context.Context, payment domain.Payment) (domain.Payment, bool, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return domain.Payment{}, false, err
	}
	defer release()

	if existing, ok := r.store.st.payments[payment.OrderID]; ok {
		return existing, false, nil
	}

	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.Status == "" {
		payment.Status = domain.PaymentStatusPending
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	payment.ErrorHistory = append([]string(nil), payment.ErrorHistory...)
	r.store.st.payments[payment.OrderID] = payment
	return payment, true, nil
}

func (r *paymentRepository) Get(ctx context.Context, orderID string) (domain.Payment, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return domain.Payment{}, err
	}
	defer release()

	payment, ok := r.store.st.payments[orderID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	payment.ErrorHistory = append([]string(nil), payment.ErrorHistory...)
	return payment, nil
}

func (r *paymentRepository) ClaimProcessing(ctx context.Context, orderID string) (bool, error) {
	release, err := r.store.enter(nil)
	if err != nil {
		return false, err
	}
	defer release()

	payment, ok := r.store.st.payments[orderID]
	if !ok || payment.Status.IsTerminal() {
		return false, nil
	}
	payment.Status = domain.PaymentStatusProcessing
	payment.UpdatedAt = time.Now().UTC()
	r.store.st.payments[orderID] = payment
	return true, nil
}

func (r *paymentRepository) Finalize(ctx context.Context, tx domain.Tx, orderID string, status domain.PaymentStatus, result domain.PaymentResult) (bool, error) {
	release, err := r.store.enter(tx)
	if err != nil {
		return false, err
	}
	defer release()

	payment, ok := r.store.st.payments[orderID]
	if !ok || payment.Status.IsTerminal() {
		return false, nil
	}

	payment.Status = status
	payment.TransactionID = result.TransactionID
	payment.GatewayResponse = string(result.ErrorCode)
	payment.Reason = result.Reason
	payment.Attempts = result.Attempts
	if result.Reason != "" {
		payment.ErrorHistory = append(payment.ErrorHistory, result.Reason)
	}
	payment.ProcessedAt = result.ProcessedAt
	payment.UpdatedAt = time.Now().UTC()
	r.store.st.payments[orderID] = payment
	return true, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
