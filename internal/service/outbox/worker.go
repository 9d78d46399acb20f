// Package outbox содержит relay transactional outbox: публикацию
// pending-записей в брокер с retry и garbage collection.
package outbox

import (
	"context"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/metrics"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 50
	defaultClaimLease     = 30 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultGCInterval     = 1 * time.Hour
	defaultRetention      = 7 * 24 * time.Hour
)

// WorkerOptions задаёт параметры relay-воркера.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.PipelineMetrics
	PollInterval   time.Duration
	BatchSize      int
	ClaimLease     time.Duration
	RetryBaseDelay time.Duration
	GCInterval     time.Duration
	Retention      time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики воркера.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = m
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча захвата.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithClaimLease задаёт lease захвата записи. После его истечения запись
// может быть перезахвачена другим инстансом.
func WithClaimLease(lease time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.ClaimLease = lease
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// WithRetention задаёт окно хранения published-записей для GC.
func WithRetention(retention time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.Retention = retention
	}
}

// WithGCInterval задаёт частоту garbage collection.
func WithGCInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.GCInterval = interval
	}
}

// Worker публикует захваченные outbox-записи в брокер. Захват выполняется
// атомарным CAS pending → publishing с lease, поэтому несколько инстансов
// relay не публикуют одну запись одновременно.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.EventPublisher
	logger    *log.Entry
	metrics   *metrics.PipelineMetrics

	pollInterval   time.Duration
	batchSize      int
	claimLease     time.Duration
	retryBaseDelay time.Duration
	gcInterval     time.Duration
	retention      time.Duration
}

// NewWorker создаёт relay-воркер.
func NewWorker(repo domain.OutboxRepository, publisher domain.EventPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		ClaimLease:     defaultClaimLease,
		RetryBaseDelay: defaultRetryBaseDelay,
		GCInterval:     defaultGCInterval,
		Retention:      defaultRetention,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-relay")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = defaultClaimLease
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = defaultRetryBaseDelay
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}

	return &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         logger,
		metrics:        opts.Metrics,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		claimLease:     opts.ClaimLease,
		retryBaseDelay: opts.RetryBaseDelay,
		gcInterval:     opts.GCInterval,
		retention:      opts.Retention,
	}
}

// Run запускает периодический polling outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox relay is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	gcTicker := time.NewTicker(w.gcInterval)
	defer gcTicker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		case <-gcTicker.C:
			w.CollectGarbage(ctx)
		}
	}
}

// ProcessOnce выполняет один цикл: захват батча, публикация, учёт исходов.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.refreshBacklogMetrics(ctx)

	claimed, err := w.repo.ClaimPending(ctx, w.batchSize, w.claimLease)
	if err != nil {
		w.logger.WithError(err).Warn("failed to claim pending outbox messages")
		return
	}
	if len(claimed) == 0 {
		return
	}

	for _, msg := range claimed {
		if ctx.Err() != nil {
			return
		}

		if err := w.publisher.Publish(ctx, msg); err != nil {
			w.metrics.RecordPublishAttempt("error")
			nextRetry := time.Now().UTC().Add(w.retryBackoff(msg.RetryCount))
			w.logger.WithError(err).WithFields(log.Fields{
				"outbox_id":   msg.ID,
				"event_type":  msg.EventType,
				"retry_count": msg.RetryCount,
			}).Warn("outbox publish failed")

			if markErr := w.repo.MarkFailed(ctx, msg.ID, err.Error(), nextRetry); markErr != nil {
				w.logger.WithError(markErr).WithField("outbox_id", msg.ID).Warn("failed to mark outbox message failed")
			}
			continue
		}

		w.metrics.RecordPublishAttempt("published")
		if err := w.repo.MarkPublished(ctx, msg.ID); err != nil {
			// Брокер уже получил событие; при потере отметки запись будет
			// опубликована повторно после lease, консьюмеры дедуплицируют.
			w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to mark outbox message published")
		}
	}

	w.refreshBacklogMetrics(ctx)
}

// CollectGarbage удаляет published-записи старше окна retention.
// Failed-записи не удаляются никогда.
func (w *Worker) CollectGarbage(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	deleted, err := w.repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(-w.retention))
	if err != nil {
		w.logger.WithError(err).Warn("outbox garbage collection failed")
		return
	}
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("outbox garbage collected")
	}
}

// retryBackoff возвращает задержку base·2^retryCount с джиттером ±25%.
func (w *Worker) retryBackoff(retryCount int) time.Duration {
	delay := w.retryBaseDelay
	for i := 0; i < retryCount; i++ {
		if delay > time.Hour {
			delay = time.Hour
			break
		}
		delay *= 2
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
	return delay + jitter
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = time.Since(stats.OldestPendingAt)
	}
	w.metrics.SetOutboxBacklog(stats.PendingCount, age)
}
