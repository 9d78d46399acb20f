// Package metrics содержит Prometheus-метрики пайплайна обработки заказов.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics содержит метрики саги, outbox и seckill.
type PipelineMetrics struct {
	// Счётчики саги
	sagaStarted     prometheus.Counter
	sagaTransitions *prometheus.CounterVec
	sagaDuration    prometheus.Histogram

	// Консьюмеры событий
	eventsConsumed *prometheus.CounterVec

	// Outbox backlog
	outboxPublishAttempts *prometheus.CounterVec
	outboxPendingRecords  prometheus.Gauge
	outboxOldestAge       prometheus.Gauge

	// Seckill
	seckillOutcomes *prometheus.CounterVec

	// Платёжный шлюз
	paymentAttempts *prometheus.CounterVec

	// Блокировки склада
	lockFailures prometheus.Counter
}

// NewPipelineMetrics создаёт метрики в default registerer.
func NewPipelineMetrics() *PipelineMetrics {
	return newPipelineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newPipelineMetricsWithRegisterer(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PipelineMetrics{
		sagaStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_saga_started_total",
			Help: "Total number of order sagas started",
		}),
		sagaTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ecom_saga_transitions_total",
			Help: "Total number of order status transitions grouped by target status",
		}, []string{"to"}),
		sagaDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ecom_saga_duration_seconds",
			Help:    "Duration of saga event handling in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		eventsConsumed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ecom_events_consumed_total",
			Help: "Total number of consumed events grouped by type and result",
		}, []string{"event_type", "result"}),
		outboxPublishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ecom_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		outboxPendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ecom_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ecom_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
		seckillOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ecom_seckill_outcomes_total",
			Help: "Total number of seckill buy attempts grouped by outcome",
		}, []string{"outcome"}),
		paymentAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ecom_payment_attempts_total",
			Help: "Total number of payment gateway attempts grouped by result",
		}, []string{"result"}),
		lockFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_inventory_lock_failures_total",
			Help: "Total number of failed distributed lock acquisitions",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSagaStarted увеличивает счётчик запущенных саг.
func (m *PipelineMetrics) RecordSagaStarted() {
	if m == nil {
		return
	}
	m.sagaStarted.Inc()
}

// RecordTransition фиксирует переход заказа в статус to.
func (m *PipelineMetrics) RecordTransition(to string) {
	if m == nil {
		return
	}
	m.sagaTransitions.WithLabelValues(to).Inc()
}

// RecordSagaDuration фиксирует время обработки события саги.
func (m *PipelineMetrics) RecordSagaDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.sagaDuration.Observe(d.Seconds())
}

// RecordEventConsumed фиксирует исход обработки входящего события.
func (m *PipelineMetrics) RecordEventConsumed(eventType, result string) {
	if m == nil {
		return
	}
	m.eventsConsumed.WithLabelValues(eventType, result).Inc()
}

// RecordPublishAttempt фиксирует исход публикации outbox-записи.
func (m *PipelineMetrics) RecordPublishAttempt(result string) {
	if m == nil {
		return
	}
	m.outboxPublishAttempts.WithLabelValues(result).Inc()
}

// SetOutboxBacklog выставляет gauge-метрики backlog outbox.
func (m *PipelineMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	m.outboxPendingRecords.Set(float64(pending))
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.outboxOldestAge.Set(oldestAge.Seconds())
}

// RecordSeckillOutcome фиксирует исход попытки покупки в flash-sale.
func (m *PipelineMetrics) RecordSeckillOutcome(outcome string) {
	if m == nil {
		return
	}
	m.seckillOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPaymentAttempt фиксирует исход обращения к платёжному шлюзу.
func (m *PipelineMetrics) RecordPaymentAttempt(result string) {
	if m == nil {
		return
	}
	m.paymentAttempts.WithLabelValues(result).Inc()
}

// RecordLockFailure фиксирует неудачный захват блокировки склада.
func (m *PipelineMetrics) RecordLockFailure() {
	if m == nil {
		return
	}
	m.lockFailures.Inc()
}
