// Package app — composition root сервиса: конфигурация, сборка
// зависимостей и жизненный цикл процесса.
package app

import "time"

// Config описывает настройки запуска приложения. Пустой DatastoreURL,
// BrokerURL или CacheURL переводит соответствующий слой в embedded-режим
// для локальной разработки и тестов.
type Config struct {
	HTTPAddr string

	// DatastoreURL — DSN PostgreSQL. Пусто — in-memory хранилище.
	DatastoreURL string
	// BrokerURL — адреса Kafka через запятую. Пусто — без брокера:
	// relay и консьюмеры не запускаются.
	BrokerURL string
	// CacheURL — адрес Redis. Пусто — in-memory seckill store и локи.
	CacheURL string

	ConsumerGroup string

	PaymentSuccessRate float64

	SeckillRateLimit  int64
	SeckillRateWindow time.Duration
	SeckillAdminKey   string
	GhostJournalPath  string

	OutboxRetention time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		ConsumerGroup:      "ecom-pipeline",
		PaymentSuccessRate: 0.9,
		SeckillRateLimit:   5,
		SeckillRateWindow:  time.Second,
		GhostJournalPath:   "seckill-ghosts.jsonl",
		OutboxRetention:    7 * 24 * time.Hour,
	}
}
