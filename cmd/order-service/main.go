package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/app"
	"github.com/vladislavdragonenkov/ecom/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if v := os.Getenv("ECOM_LOG_LEVEL"); v != "" {
		if level, err := log.ParseLevel(v); err == nil {
			log.SetLevel(level)
		}
	}
}

// readConfig формирует конфигурацию приложения из переменных окружения.
func readConfig() app.Config {
	cfg := app.DefaultConfig()

	if v := os.Getenv("ECOM_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.DatastoreURL = os.Getenv("ECOM_DATASTORE_URL")
	cfg.BrokerURL = os.Getenv("ECOM_BROKER_URL")
	cfg.CacheURL = os.Getenv("ECOM_CACHE_URL")
	if v := os.Getenv("ECOM_CONSUMER_GROUP"); v != "" {
		cfg.ConsumerGroup = v
	}
	if v := os.Getenv("PAYMENT_SUCCESS_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate >= 0 && rate <= 1 {
			cfg.PaymentSuccessRate = rate
		}
	}
	if v := os.Getenv("SECKILL_RATE_LIMIT"); v != "" {
		if limit, err := strconv.ParseInt(v, 10, 64); err == nil && limit > 0 {
			cfg.SeckillRateLimit = limit
		}
	}
	if v := os.Getenv("SECKILL_RATE_WINDOW"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			cfg.SeckillRateWindow = time.Duration(seconds) * time.Second
		}
	}
	cfg.SeckillAdminKey = os.Getenv("SECKILL_ADMIN_KEY")
	if v := os.Getenv("ECOM_GHOST_JOURNAL"); v != "" {
		cfg.GhostJournalPath = v
	}
	if v := os.Getenv("ECOM_OUTBOX_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.OutboxRetention = time.Duration(days) * 24 * time.Hour
		}
	}

	return cfg
}

func main() {
	setupLogger()
	cfg := readConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr": cfg.HTTPAddr,
		"version":   version.String(),
	}).Info("запускаем order pipeline")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order pipeline остановлен")
}
