package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// Publisher — in-memory EventPublisher. Записывает публикации и
// позволяет подменять исход вызова, что нужно тестам relay-воркера.
type Publisher struct {
	mu        sync.Mutex
	published []domain.OutboxMessage
	failWith  error
}

// NewPublisher создаёт Publisher, принимающий все публикации.
func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failWith != nil {
		return p.failWith
	}
	p.published = append(p.published, msg)
	return nil
}

// FailWith заставляет следующие Publish возвращать err. nil снимает отказ.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Published возвращает копию списка опубликованных сообщений.
func (p *Publisher) Published() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.published...)
}

var _ domain.EventPublisher = (*Publisher)(nil)
