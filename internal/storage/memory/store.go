// Package memory содержит in-memory реализации репозиториев.
// Используется в тестах сервисного слоя и как драйвер хранилища
// для локального запуска без PostgreSQL.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

var errForeignTx = errors.New("memory: transaction belongs to another store")

// state — всё изменяемое состояние стора. Снимок состояния целиком
// подменяется при rollback.
type state struct {
	orders    map[string]domain.Order
	outbox    map[string]domain.OutboxMessage
	inventory map[string]domain.InventoryRow
	audit     []domain.AuditEntry
	payments  map[string]domain.Payment
	processed map[string]processedRecord
	products  map[string]domain.Product
	timeline  map[string][]domain.TimelineEvent
}

func newState() *state {
	return &state{
		orders:    make(map[string]domain.Order),
		outbox:    make(map[string]domain.OutboxMessage),
		inventory: make(map[string]domain.InventoryRow),
		payments:  make(map[string]domain.Payment),
		processed: make(map[string]processedRecord),
		products:  make(map[string]domain.Product),
		timeline:  make(map[string][]domain.TimelineEvent),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for k, v := range s.orders {
		cp.orders[k] = v
	}
	for k, v := range s.outbox {
		cp.outbox[k] = v
	}
	for k, v := range s.inventory {
		cp.inventory[k] = v
	}
	cp.audit = append(cp.audit, s.audit...)
	for k, v := range s.payments {
		cp.payments[k] = v
	}
	for k, v := range s.processed {
		cp.processed[k] = v
	}
	for k, v := range s.products {
		cp.products[k] = v
	}
	for k, v := range s.timeline {
		cp.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	return cp
}

// Store — in-memory хранилище с сериализуемыми транзакциями.
// Begin держит глобальный мьютекс до Commit/Rollback, поэтому
// транзакции выполняются строго по одной.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

type memTx struct {
	store    *Store
	snapshot *state
	done     bool
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.st = t.snapshot
	t.store.mu.Unlock()
	return nil
}

// Begin открывает транзакцию: захватывает мьютекс и снимает снимок
// состояния для отката.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &memTx{store: s, snapshot: s.st.clone()}, nil
}

// enter разрешает доступ к состоянию: вне транзакции берёт мьютекс,
// внутри — полагается на блокировку, которую держит Begin.
func (s *Store) enter(tx domain.Tx) (func(), error) {
	if tx == nil {
		s.mu.Lock()
		return s.mu.Unlock, nil
	}
	mt, ok := tx.(*memTx)
	if !ok || mt.store != s {
		return nil, errForeignTx
	}
	return func() {}, nil
}

var _ domain.TxBeginner = (*Store)(nil)
