package domain

import "time"

// PaymentStatus описывает состояние платежа.
// Переходы образуют DAG: pending → processing → (succeeded | failed);
// succeeded и failed терминальны.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// IsTerminal сообщает, завершён ли платёж окончательно.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

// PaymentErrorCode классифицирует отказ платёжного шлюза.
type PaymentErrorCode string

const (
	// Транзиентные коды: повторная попытка имеет смысл.
	PaymentErrGatewayTimeout     PaymentErrorCode = "GATEWAY_TIMEOUT"
	PaymentErrNetwork            PaymentErrorCode = "NETWORK_ERROR"
	PaymentErrServiceUnavailable PaymentErrorCode = "SERVICE_UNAVAILABLE"
	PaymentErrRateLimited        PaymentErrorCode = "RATE_LIMITED"
	// Терминальный код: провайдер отклонил платёж, повтор бесполезен.
	PaymentErrDeclined PaymentErrorCode = "PAYMENT_DECLINED"
)

// Retryable сообщает, относится ли код к транзиентным отказам.
func (c PaymentErrorCode) Retryable() bool {
	switch c {
	case PaymentErrGatewayTimeout, PaymentErrNetwork, PaymentErrServiceUnavailable, PaymentErrRateLimited:
		return true
	default:
		return false
	}
}

// Payment описывает платёж по заказу. Инвариант: не более одного платежа
// на orderID, уникальность обеспечивает хранилище.
type Payment struct {
	ID              string
	OrderID         string
	Status          PaymentStatus
	AmountMinor     int64
	Currency        string
	TransactionID   string
	GatewayResponse string
	Reason          string
	Attempts        int
	ErrorHistory    []string
	ProcessedAt     time.Time
	CorrelationID   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentResult — результат вызова платёжного шлюза.
type PaymentResult struct {
	Status        PaymentStatus
	TransactionID string
	ProcessedAt   time.Time
	AmountMinor   int64
	Currency      string
	Attempts      int
	Reason        string
	ErrorCode     PaymentErrorCode
	Retryable     bool
}
