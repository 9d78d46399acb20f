package memory

import (
	"context"
	"testing"
	"time"
)

func TestLockManagerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	locks := NewLockManager()

	token, ok, err := locks.Acquire(ctx, "inventory", "p-1", time.Minute)
	if err != nil || !ok || token == "" {
		t.Fatalf("first acquire: (%q, %v, %v)", token, ok, err)
	}

	_, ok, err = locks.Acquire(ctx, "inventory", "p-1", time.Minute)
	if err != nil || ok {
		t.Errorf("held lock must not be acquired again, got (%v, %v)", ok, err)
	}

	// Другой ресурс блокируется независимо.
	_, ok, err = locks.Acquire(ctx, "inventory", "p-2", time.Minute)
	if err != nil || !ok {
		t.Errorf("different resource must be independent, got (%v, %v)", ok, err)
	}

	if err := locks.Release(ctx, "inventory", "p-1", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	_, ok, err = locks.Acquire(ctx, "inventory", "p-1", time.Minute)
	if err != nil || !ok {
		t.Errorf("released lock must be acquirable, got (%v, %v)", ok, err)
	}
}

func TestLockManagerTokenGuard(t *testing.T) {
	ctx := context.Background()
	locks := NewLockManager()

	token, ok, err := locks.Acquire(ctx, "inventory", "p-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire: (%v, %v)", ok, err)
	}

	if err := locks.Release(ctx, "inventory", "p-1", "wrong-token"); err != nil {
		t.Fatalf("release: %v", err)
	}
	_, ok, err = locks.Acquire(ctx, "inventory", "p-1", time.Minute)
	if err != nil || ok {
		t.Errorf("release with a foreign token must not free the lock, got (%v, %v)", ok, err)
	}

	_ = token
}

func TestLockManagerTTLExpiry(t *testing.T) {
	ctx := context.Background()
	locks := NewLockManager()

	if _, ok, err := locks.Acquire(ctx, "inventory", "p-1", -time.Second); err != nil || !ok {
		t.Fatalf("acquire: (%v, %v)", ok, err)
	}

	_, ok, err := locks.Acquire(ctx, "inventory", "p-1", time.Minute)
	if err != nil || !ok {
		t.Errorf("expired lock must be reacquirable, got (%v, %v)", ok, err)
	}
}

func TestIdempotencyCheckerTTL(t *testing.T) {
	ctx := context.Background()
	checker := NewIdempotencyChecker()

	if checker.IsProcessed(ctx, "order.created", "e-1") {
		t.Error("unseen event must not be processed")
	}

	checker.MarkProcessed(ctx, "order.created", "e-1", time.Minute)
	if !checker.IsProcessed(ctx, "order.created", "e-1") {
		t.Error("marked event must be processed")
	}
	if checker.IsProcessed(ctx, "order.confirmed", "e-1") {
		t.Error("key must include event type")
	}

	checker.MarkProcessed(ctx, "order.created", "e-2", -time.Second)
	if checker.IsProcessed(ctx, "order.created", "e-2") {
		t.Error("expired mark must not count as processed")
	}
}
