// Команда seckill-replay дочитывает ghost-журнал flash-sale: победы,
// событие о которых не удалось опубликовать, переотправляются в брокер.
// По умолчанию dry-run; -execute публикует и очищает журнал.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	rediscache "github.com/vladislavdragonenkov/ecom/internal/cache/redis"
	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ecom/internal/service/seckill"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
)

const defaultTimeout = 30 * time.Second

type config struct {
	brokers     []string
	cacheURL    string
	journalPath string
	execute     bool
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fail("seckill replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: ECOM_BROKER_URL)")
	flag.StringVar(&cfg.cacheURL, "cache", "", "Redis address for campaign metadata (fallback: ECOM_CACHE_URL)")
	flag.StringVar(&cfg.journalPath, "journal", "", "ghost journal path (fallback: ECOM_GHOST_JOURNAL)")
	flag.BoolVar(&cfg.execute, "execute", false, "publish and truncate the journal; default is dry-run")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("ECOM_BROKER_URL")
	}
	for _, chunk := range strings.Split(brokersRaw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}
	if cfg.cacheURL == "" {
		cfg.cacheURL = os.Getenv("ECOM_CACHE_URL")
	}
	if cfg.journalPath == "" {
		cfg.journalPath = os.Getenv("ECOM_GHOST_JOURNAL")
	}
	if cfg.journalPath == "" {
		cfg.journalPath = "seckill-ghosts.jsonl"
	}
	if cfg.execute && len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required in execute mode (-brokers or ECOM_BROKER_URL)")
	}

	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	journal := seckill.NewGhostJournal(cfg.journalPath)
	ghosts, err := journal.ReadAll()
	if err != nil {
		return err
	}
	if len(ghosts) == 0 {
		log.WithField("journal", cfg.journalPath).Info("ghost journal is empty, nothing to replay")
		return nil
	}

	if !cfg.execute {
		for _, ghost := range ghosts {
			log.WithFields(log.Fields{
				"product_id":     ghost.ProductID,
				"user_id":        ghost.UserID,
				"correlation_id": ghost.CorrelationID,
				"reserved_at":    ghost.ReservedAt,
				"publish_error":  ghost.PublishError,
			}).Info("ghost order replay candidate")
		}
		log.WithField("count", len(ghosts)).Info("dry-run finished, rerun with -execute to publish")
		return nil
	}

	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	defer producer.Close()
	publisher := kafka.NewOutboxPublisher(producer)

	// Стор нужен только для метаданных кампании в payload события; без
	// Redis replay публикует победу с нулевой ценой.
	var store domain.SeckillStore
	if cfg.cacheURL != "" {
		client, err := rediscache.Open(ctx, rediscache.Options{Addr: cfg.cacheURL})
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer client.Close()
		store = rediscache.NewSeckillStore(client, 1, time.Second)
	} else {
		store = memory.NewSeckillStore(1, time.Second)
		log.Warn("cache is not configured, replaying without campaign metadata")
	}

	engine := seckill.NewEngine(store, publisher, nil, nil, log.WithField("component", "seckill-replay"))

	var failed []domain.GhostOrder
	for _, ghost := range ghosts {
		if err := engine.PublishWon(ctx, ghost); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"product_id": ghost.ProductID,
				"user_id":    ghost.UserID,
			}).Error("failed to replay ghost order")
			failed = append(failed, ghost)
			continue
		}
		log.WithFields(log.Fields{
			"product_id":     ghost.ProductID,
			"user_id":        ghost.UserID,
			"correlation_id": ghost.CorrelationID,
		}).Info("ghost order replayed")
	}

	// Журнал переписывается остатком: успешные записи исчезают,
	// неопубликованные переживают следующий запуск.
	if err := journal.Truncate(); err != nil {
		return err
	}
	for _, ghost := range failed {
		if err := journal.Append(ghost); err != nil {
			return fmt.Errorf("rewrite ghost journal: %w", err)
		}
	}

	log.WithFields(log.Fields{
		"replayed": len(ghosts) - len(failed),
		"failed":   len(failed),
	}).Info("seckill replay finished")

	if len(failed) > 0 {
		return fmt.Errorf("%d ghost orders failed to replay", len(failed))
	}
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
