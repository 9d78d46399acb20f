package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type lockEntry struct {
	token   string
	expires time.Time
}

// LockManager — in-memory распределённая блокировка с fence-токенами.
// Семантика повторяет redis-реализацию: захват с TTL, освобождение
// только при совпадении токена.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]lockEntry
}

// NewLockManager создаёт пустой in-memory LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]lockEntry)}
}

func lockKey(resourceType, resourceID string) string {
	return resourceType + ":" + resourceID
}

func (m *LockManager) Acquire(ctx context.Context, resourceType, resourceID string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := lockKey(resourceType, resourceID)
	now := time.Now()
	if entry, ok := m.locks[key]; ok && entry.expires.After(now) {
		return "", false, nil
	}

	token := uuid.NewString()
	m.locks[key] = lockEntry{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (m *LockManager) Release(ctx context.Context, resourceType, resourceID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := lockKey(resourceType, resourceID)
	if entry, ok := m.locks[key]; ok && entry.token == token {
		delete(m.locks, key)
	}
	return nil
}

var _ domain.LockManager = (*LockManager)(nil)

// IdempotencyChecker — in-memory слой подавления дубликатов.
type IdempotencyChecker struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewIdempotencyChecker создаёт пустой in-memory checker.
func NewIdempotencyChecker() *IdempotencyChecker {
	return &IdempotencyChecker{seen: make(map[string]time.Time)}
}

func (c *IdempotencyChecker) IsProcessed(ctx context.Context, eventType, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires, ok := c.seen[eventType+":"+id]
	return ok && expires.After(time.Now())
}

func (c *IdempotencyChecker) MarkProcessed(ctx context.Context, eventType, id string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen[eventType+":"+id] = time.Now().Add(ttl)
}

var _ domain.IdempotencyChecker = (*IdempotencyChecker)(nil)
