package app

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/health"
	"github.com/vladislavdragonenkov/ecom/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ecom/internal/metrics"
	"github.com/vladislavdragonenkov/ecom/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ecom/internal/service/inventory"
	"github.com/vladislavdragonenkov/ecom/internal/service/outbox"
	"github.com/vladislavdragonenkov/ecom/internal/service/payment"
	"github.com/vladislavdragonenkov/ecom/internal/service/saga"
	"github.com/vladislavdragonenkov/ecom/internal/service/seckill"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
	httptransport "github.com/vladislavdragonenkov/ecom/internal/transport/http"
	"github.com/vladislavdragonenkov/ecom/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает сервис и работает до отмены ctx либо фатальной ошибки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	m := metrics.NewPipelineMetrics()

	healthHandler := health.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("datastore", health.NewPingChecker("datastore", deps.PingDatastore))
	healthHandler.RegisterChecker("cache", health.NewPingChecker("cache", deps.PingCache))

	// Брокер опционален: без него relay публикует в in-process рекордер,
	// а консьюмеры не запускаются.
	var producer *kafka.Producer
	var publisher domain.EventPublisher
	var brokers []string
	if cfg.BrokerURL != "" {
		brokers = strings.Split(cfg.BrokerURL, ",")
		producer, err = kafka.NewProducer(brokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without broker")
			producer = nil
		} else {
			publisher = kafka.NewOutboxPublisher(producer)
			logger.WithField("brokers", brokers).Info("kafka producer initialized")
		}
	}
	if publisher == nil {
		publisher = memory.NewPublisher()
		logger.Warn("broker is not configured, events stay in-process")
	}

	sagaSvc := saga.NewOrchestrator(
		deps.Store, deps.Orders, deps.Outbox, deps.Catalogue, deps.Timeline,
		m, logger.WithField("component", "saga-orchestrator"),
	)
	inventoryEng := inventory.NewEngine(
		deps.Store, deps.Inventory, deps.Outbox, deps.Catalogue, deps.Locks,
		m, logger.WithField("component", "inventory-engine"),
	)
	gatewayOpts := payment.DefaultGatewayOptions()
	gatewayOpts.SuccessRate = cfg.PaymentSuccessRate
	gatewayOpts.Logger = logger.WithField("component", "payment-gateway")
	gateway := payment.NewMockGateway(gatewayOpts)
	paymentProc := payment.NewProcessor(
		deps.Store, deps.Payments, deps.Outbox, gateway,
		m, logger.WithField("component", "payment-processor"),
	)
	journal := seckill.NewGhostJournal(cfg.GhostJournalPath)
	seckillEng := seckill.NewEngine(
		deps.Seckill, publisher, journal,
		m, logger.WithField("component", "seckill-engine"),
	)
	guard := idempotency.NewGuard(deps.FastChecker, deps.Processed, logger.WithField("component", "idempotency-guard"))

	relay := outbox.NewWorker(deps.Outbox, publisher,
		outbox.WithMetrics(m),
		outbox.WithRetention(cfg.OutboxRetention),
		outbox.WithLogger(logger.WithField("component", "outbox-relay")),
	)
	go relay.Run(ctx)

	cleanup := idempotency.NewCleanupWorker(deps.Processed,
		idempotency.WithLogger(logger.WithField("component", "processed-events-cleanup")),
	)
	go cleanup.Run(ctx)

	var consumer *kafka.Consumer
	if producer != nil {
		router := newEventRouter(pipelineServices{
			Saga:      sagaSvc,
			Inventory: inventoryEng,
			Payment:   paymentProc,
			Seckill:   seckillEng,
		}, guard, m, logger.WithField("component", "event-router"))

		consumer, err = kafka.NewConsumerWithDLQ(
			brokers, cfg.ConsumerGroup, eventTopics(), messageBridge(router), producer, 3,
		)
		if err != nil {
			return err
		}
		if err := consumer.Start(ctx); err != nil {
			return err
		}
	}

	srv := httptransport.NewServer(httptransport.ServerOptions{
		Addr:         cfg.HTTPAddr,
		Orchestrator: sagaSvc,
		Seckill:      seckillEng,
		Outbox:       deps.Outbox,
		Health:       healthHandler,
		AdminKey:     cfg.SeckillAdminKey,
		Logger:       logger.WithField("component", "http-server"),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("http server shutdown with error")
		}
		if consumer != nil {
			if err := consumer.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop kafka consumer")
			}
		}
		if producer != nil {
			if err := producer.Close(); err != nil {
				logger.WithError(err).Warn("failed to close kafka producer")
			}
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping")
		stop()
		return ctx.Err()
	case err := <-errCh:
		stop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}
