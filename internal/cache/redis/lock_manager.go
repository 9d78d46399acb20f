package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// releaseLockScript атомарно сравнивает fence-токен и удаляет ключ.
// Без сравнения инстанс, чья блокировка истекла, мог бы снять чужую.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

type lockManager struct {
	client *redis.Client
}

// NewLockManager создаёт распределённую блокировку поверх Redis.
// Захват выполняется через SET NX PX, освобождение скриптом
// compare-and-delete.
func NewLockManager(client *redis.Client) domain.LockManager {
	return &lockManager{client: client}
}

func (m *lockManager) key(resourceType, resourceID string) string {
	return "lock:" + resourceType + ":" + resourceID
}

func (m *lockManager) Acquire(ctx context.Context, resourceType, resourceID string, ttl time.Duration) (string, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	token := uuid.NewString()
	ok, err := m.client.SetNX(opCtx, m.key(resourceType, resourceID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s:%s: %w", resourceType, resourceID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (m *lockManager) Release(ctx context.Context, resourceType, resourceID, token string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := releaseLockScript.Run(opCtx, m.client, []string{m.key(resourceType, resourceID)}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s:%s: %w", resourceType, resourceID, err)
	}
	return nil
}

var _ domain.LockManager = (*lockManager)(nil)
