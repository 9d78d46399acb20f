package domain

import "time"

// OutboxStatus описывает состояние записи transactional outbox.
type OutboxStatus string

const (
	// OutboxStatusPending — запись создана в бизнес-транзакции и ждёт публикации.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusPublishing — запись захвачена relay-воркером на время lease.
	OutboxStatusPublishing OutboxStatus = "publishing"
	// OutboxStatusPublished — брокер подтвердил доставку; запись больше не мутируется.
	OutboxStatusPublished OutboxStatus = "published"
	// OutboxStatusFailed — публикация не удалась; запись ждёт retry либо оператора.
	OutboxStatusFailed OutboxStatus = "failed"
)

// EventMetadata сопровождает каждое исходящее событие.
type EventMetadata struct {
	CorrelationID string
	CausationID   string
	Service       string
	Timestamp     time.Time
}

// OutboxMessage хранит исходящее доменное событие.
// Инварианты: ровно один из статусов pending/publishing/published/failed;
// published-запись не мутируется повторно; retry_count <= max_retries.
type OutboxMessage struct {
	ID            string
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	RoutingKey    string
	Payload       []byte
	Metadata      EventMetadata
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	LeaseUntil    time.Time
	NextRetryAt   time.Time
	PublishedAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	FailedCount     int
	OldestPendingAt time.Time
}
