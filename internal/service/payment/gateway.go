// Package payment содержит платёжный сервис: mock-шлюз с настраиваемой
// вероятностью успеха и консьюмер order.confirmed, гарантирующий ровно
// один терминальный исход платежа на заказ.
package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

const (
	defaultSuccessRate   = 0.9
	defaultTransientRate = 0.3
	defaultMaxRetries    = 3
	defaultBaseDelay     = 100 * time.Millisecond
)

var transientCodes = []domain.PaymentErrorCode{
	domain.PaymentErrGatewayTimeout,
	domain.PaymentErrNetwork,
	domain.PaymentErrServiceUnavailable,
	domain.PaymentErrRateLimited,
}

// ProcessRequest — входные данные обращения к шлюзу.
type ProcessRequest struct {
	OrderID     string
	AmountMinor int64
	Currency    string
}

// Gateway — интерфейс платёжного шлюза.
type Gateway interface {
	Process(ctx context.Context, req ProcessRequest) domain.PaymentResult
}

// GatewayOptions задаёт параметры mock-шлюза.
type GatewayOptions struct {
	SuccessRate   float64
	TransientRate float64
	MaxRetries    int
	BaseDelay     time.Duration
	Rand          *rand.Rand
	Logger        *log.Entry
}

// mockGateway моделирует платёжного провайдера. Каждая попытка
// "успешна" с вероятностью SuccessRate; отказ классифицируется вторым
// броском как транзиентный либо терминальный.
type mockGateway struct {
	mu            sync.Mutex
	rng           *rand.Rand
	successRate   float64
	transientRate float64
	maxRetries    int
	baseDelay     time.Duration
	logger        *log.Entry
}

// DefaultGatewayOptions возвращает параметры шлюза по умолчанию:
// успех 0.9, транзиентность отказа 0.3, до 3 retry.
func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		SuccessRate:   defaultSuccessRate,
		TransientRate: defaultTransientRate,
		MaxRetries:    defaultMaxRetries,
		BaseDelay:     defaultBaseDelay,
	}
}

// NewMockGateway создаёт mock-шлюз. Доли принимаются в диапазоне [0; 1],
// значение вне диапазона заменяется умолчанием. Ноль валиден: шлюз с
// SuccessRate 0 отклоняет каждую попытку.
func NewMockGateway(opts GatewayOptions) Gateway {
	if opts.SuccessRate < 0 || opts.SuccessRate > 1 {
		opts.SuccessRate = defaultSuccessRate
	}
	if opts.TransientRate < 0 || opts.TransientRate > 1 {
		opts.TransientRate = defaultTransientRate
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "payment-gateway")
	}

	return &mockGateway{
		rng:           opts.Rand,
		successRate:   opts.SuccessRate,
		transientRate: opts.TransientRate,
		maxRetries:    opts.MaxRetries,
		baseDelay:     opts.BaseDelay,
		logger:        opts.Logger,
	}
}

// Process выполняет платёж с retry транзиентных отказов: exponential
// backoff base·2^attempt с джиттером ±25%. Терминальный отказ
// возвращается сразу.
func (g *mockGateway) Process(ctx context.Context, req ProcessRequest) domain.PaymentResult {
	var lastCode domain.PaymentErrorCode

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		success, code := g.roll()
		if success {
			return domain.PaymentResult{
				Status:        domain.PaymentStatusSucceeded,
				TransactionID: "txn-" + uuid.NewString(),
				ProcessedAt:   time.Now().UTC(),
				AmountMinor:   req.AmountMinor,
				Currency:      req.Currency,
				Attempts:      attempt,
			}
		}

		lastCode = code
		if !code.Retryable() {
			return g.failure(req, code, attempt)
		}

		g.logger.WithFields(log.Fields{
			"order_id":   req.OrderID,
			"attempt":    attempt,
			"error_code": code,
		}).Warn("transient payment failure")

		if attempt >= g.maxRetries {
			break
		}
		select {
		case <-time.After(g.backoff(attempt)):
		case <-ctx.Done():
			return g.failure(req, code, attempt)
		}
	}

	return g.failure(req, lastCode, g.maxRetries)
}

func (g *mockGateway) failure(req ProcessRequest, code domain.PaymentErrorCode, attempts int) domain.PaymentResult {
	return domain.PaymentResult{
		Status:      domain.PaymentStatusFailed,
		ProcessedAt: time.Now().UTC(),
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Attempts:    attempts,
		Reason:      fmt.Sprintf("payment failed: %s", code),
		ErrorCode:   code,
		Retryable:   code.Retryable(),
	}
}

func (g *mockGateway) roll() (bool, domain.PaymentErrorCode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rng.Float64() < g.successRate {
		return true, ""
	}
	if g.rng.Float64() < g.transientRate {
		return false, transientCodes[g.rng.Intn(len(transientCodes))]
	}
	return false, domain.PaymentErrDeclined
}

func (g *mockGateway) backoff(attempt int) time.Duration {
	delay := g.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	g.mu.Lock()
	jitter := time.Duration(g.rng.Int63n(int64(delay)/2+1)) - delay/4
	g.mu.Unlock()
	return delay + jitter
}
