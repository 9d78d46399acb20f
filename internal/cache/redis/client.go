// Package redis содержит реализации портов поверх Redis: стор flash-sale
// кампаний с атомарными Lua-скриптами, распределённые блокировки и
// быстрый слой подавления дубликатов.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 3 * time.Second

// Options задаёт параметры подключения к Redis.
type Options struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// Open создаёт клиент и проверяет соединение ping-ом.
func Open(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.PoolSize == 0 {
		opts.PoolSize = 100
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
