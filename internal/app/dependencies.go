package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	rediscache "github.com/vladislavdragonenkov/ecom/internal/cache/redis"
	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
	"github.com/vladislavdragonenkov/ecom/internal/storage/postgres"
)

// Dependencies содержит все инфраструктурные зависимости приложения.
// Драйверы выбираются конфигурацией: PostgreSQL и Redis в production,
// in-memory в локальном режиме.
type Dependencies struct {
	Store     domain.TxBeginner
	Orders    domain.OrderRepository
	Outbox    domain.OutboxRepository
	Inventory domain.InventoryRepository
	Payments  domain.PaymentRepository
	Processed domain.ProcessedEventRepository
	Catalogue domain.CatalogueRepository
	Timeline  domain.TimelineRepository

	Locks       domain.LockManager
	FastChecker domain.IdempotencyChecker
	Seckill     domain.SeckillStore

	Logger *log.Entry

	pg    *postgres.Store
	cache *goredis.Client
}

// NewDependencies собирает зависимости согласно конфигурации.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	deps := &Dependencies{Logger: logger}

	if cfg.DatastoreURL != "" {
		store, err := postgres.Open(ctx, cfg.DatastoreURL)
		if err != nil {
			return nil, fmt.Errorf("open datastore: %w", err)
		}
		deps.pg = store
		deps.Store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Inventory = postgres.NewInventoryRepository(store)
		deps.Payments = postgres.NewPaymentRepository(store)
		deps.Processed = postgres.NewProcessedEventRepository(store)
		deps.Catalogue = postgres.NewCatalogueRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		logger.Info("using postgres datastore")
	} else {
		store := memory.NewStore()
		deps.Store = store
		deps.Orders = memory.NewOrderRepository(store)
		deps.Outbox = memory.NewOutboxRepository(store)
		deps.Inventory = memory.NewInventoryRepository(store)
		deps.Payments = memory.NewPaymentRepository(store)
		deps.Processed = memory.NewProcessedEventRepository(store)
		deps.Catalogue = memory.NewCatalogueRepository(store)
		deps.Timeline = memory.NewTimelineRepository(store)
		logger.Warn("datastore URL is empty, using in-memory storage")
	}

	if cfg.CacheURL != "" {
		client, err := rediscache.Open(ctx, rediscache.Options{Addr: cfg.CacheURL})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("open cache: %w", err)
		}
		deps.cache = client
		deps.Locks = rediscache.NewLockManager(client)
		deps.FastChecker = rediscache.NewIdempotencyChecker(client, "ecom", logger)
		deps.Seckill = rediscache.NewSeckillStore(client, cfg.SeckillRateLimit, cfg.SeckillRateWindow)
		logger.Info("using redis cache")
	} else {
		deps.Locks = memory.NewLockManager()
		deps.FastChecker = memory.NewIdempotencyChecker()
		deps.Seckill = memory.NewSeckillStore(cfg.SeckillRateLimit, cfg.SeckillRateWindow)
		logger.Warn("cache URL is empty, using in-memory seckill store and locks")
	}

	return deps, nil
}

// PingDatastore проверяет доступность хранилища. In-memory режим всегда здоров.
func (d *Dependencies) PingDatastore(ctx context.Context) error {
	if d.pg == nil {
		return nil
	}
	return d.pg.Ping(ctx)
}

// PingCache проверяет доступность Redis. In-memory режим всегда здоров.
func (d *Dependencies) PingCache(ctx context.Context) error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Ping(ctx).Err()
}

// Close освобождает подключения. Ошибки логируются, но не прерывают остановку.
func (d *Dependencies) Close() {
	if d.cache != nil {
		if err := d.cache.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close cache client")
		}
	}
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close datastore")
		}
	}
}
