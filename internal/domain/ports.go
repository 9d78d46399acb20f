package domain

import (
	"context"
	"time"
)

// Tx — открытая транзакция хранилища. Конкретный тип определяет реализация;
// репозитории принимают handle явно, внутри транзакции допустим только I/O
// самого хранилища.
type Tx interface {
	Commit() error
	Rollback() error
}

// TxBeginner открывает транзакции хранилища.
type TxBeginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// WithinTx выполняет fn в транзакции и гарантирует rollback на всех путях
// выхода, включая panic.
func WithinTx(ctx context.Context, store TxBeginner, fn func(tx Tx) error) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// OrderRepository хранит заказы. Мутации выполняет только оркестратор саги.
type OrderRepository interface {
	// Create сохраняет новый заказ в транзакции вызывающего.
	Create(ctx context.Context, tx Tx, order Order) error
	Get(ctx context.Context, orderID string) (Order, error)
	// Transition выполняет условный переход статуса, охраняемый текущим
	// значением. Возвращает false без ошибки, если охрана не сработала.
	Transition(ctx context.Context, tx Tx, orderID string, from []OrderStatus, to OrderStatus, reason string) (bool, error)
}

// OutboxRepository хранит исходящие события transactional outbox.
type OutboxRepository interface {
	// Enqueue пишет pending-запись в транзакции вызывающего. Дубликат
	// event_id возвращает ErrDuplicateEventID.
	Enqueue(ctx context.Context, tx Tx, msg OutboxMessage) (OutboxMessage, error)
	// ClaimPending атомарно захватывает до limit записей (CAS в publishing
	// с lease) в FIFO-порядке по created_at, id.
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]OutboxMessage, error)
	MarkPublished(ctx context.Context, id string) error
	// MarkFailed инкрементирует retry_count и планирует следующую попытку.
	MarkFailed(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error
	// Retryables возвращает записи, исчерпавшие retry, для вмешательства оператора.
	Retryables(ctx context.Context, limit int) ([]OutboxMessage, error)
	// DeletePublishedBefore удаляет published-записи старше границы retention.
	DeletePublishedBefore(ctx context.Context, before time.Time) (int, error)
	Stats(ctx context.Context) (OutboxStats, error)
}

// InventoryRepository хранит остатки и журнал аудита. Мутации выполняет
// только inventory-движок, всегда под блокировкой товара.
type InventoryRepository interface {
	Get(ctx context.Context, productID string) (InventoryRow, error)
	// GetBatch читает строки для набора товаров внутри транзакции.
	GetBatch(ctx context.Context, tx Tx, productIDs []string) ([]InventoryRow, error)
	// ApplyReserve выполняет батчевое условное обновление available -= q,
	// reserved += q с предикатом available >= q и возвращает число
	// затронутых строк.
	ApplyReserve(ctx context.Context, tx Tx, lines []ReserveLine) (int, error)
	// ApplyRelease выполняет available += q, reserved -= q с предикатом
	// reserved >= q. false означает, что резерв уже снят.
	ApplyRelease(ctx context.Context, tx Tx, productID string, qty int64) (bool, error)
	CreateRow(ctx context.Context, tx Tx, row InventoryRow) error
	DeleteRow(ctx context.Context, tx Tx, productID string) error
	AppendAudit(ctx context.Context, tx Tx, entry AuditEntry) error
}

// PaymentRepository хранит платежи с уникальностью по order_id.
type PaymentRepository interface {
	// CreateIfAbsent создаёт платёж, если его ещё нет. Возвращает актуальную
	// запись и признак, была ли она создана этим вызовом.
	CreateIfAbsent(ctx context.Context, payment Payment) (Payment, bool, error)
	Get(ctx context.Context, orderID string) (Payment, error)
	// ClaimProcessing атомарно переводит pending|processing → processing.
	// false означает, что платёж уже в терминальном статусе.
	ClaimProcessing(ctx context.Context, orderID string) (bool, error)
	// Finalize выполняет условный переход pending|processing → status в
	// транзакции вызывающего. false — платёж уже финализирован.
	Finalize(ctx context.Context, tx Tx, orderID string, status PaymentStatus, result PaymentResult) (bool, error)
}

// ProcessedEventRepository — durable слой подавления дубликатов по message_id.
type ProcessedEventRepository interface {
	MarkProcessed(ctx context.Context, messageID, eventType string, ttlAt time.Time) error
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// CatalogueRepository — read model каталога товаров.
type CatalogueRepository interface {
	Upsert(ctx context.Context, tx Tx, product Product) error
	Get(ctx context.Context, productID string) (Product, error)
	Delete(ctx context.Context, tx Tx, productID string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// EventPublisher публикует событие в брокер. Должен быть идемпотентным
// по message_id: доставка at-least-once, дедупликация на консьюмерах.
type EventPublisher interface {
	Publish(ctx context.Context, msg OutboxMessage) error
}

// LockManager — распределённая блокировка с fence-токеном.
// Release безопасен: сравнение токена и удаление атомарны.
type LockManager interface {
	Acquire(ctx context.Context, resourceType, resourceID string, ttl time.Duration) (token string, acquired bool, err error)
	Release(ctx context.Context, resourceType, resourceID, token string) error
}

// IdempotencyChecker — быстрый слой подавления дубликатов по бизнес-ключу.
// При ошибках хранилища реализация обязана fail open (считать необработанным).
type IdempotencyChecker interface {
	IsProcessed(ctx context.Context, eventType, id string) bool
	MarkProcessed(ctx context.Context, eventType, id string, ttl time.Duration)
}

// SeckillStore — in-memory store кампаний с атомарными серверными скриптами.
// Никакой процесс не читает-и-пишет ключи кампании вне скрипта.
type SeckillStore interface {
	Reserve(ctx context.Context, productID, userID string) (SeckillOutcome, error)
	// Release убирает userID из winners и возвращает слот в сток.
	// false означает, что пользователь и так не был победителем.
	Release(ctx context.Context, productID, userID string) (bool, error)
	// InitCampaign записывает ключи кампании и очищает winners.
	// Повторная инициализация допустима и намеренно сбрасывает победителей.
	InitCampaign(ctx context.Context, campaign Campaign) error
	CampaignStatus(ctx context.Context, productID string) (Campaign, error)
}
