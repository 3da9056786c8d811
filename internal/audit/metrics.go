package audit

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for audit recording.
type Metrics struct {
	eventsTotal  *prometheus.CounterVec
	droppedTotal prometheus.Counter
	writeErrors  prometheus.Counter

	registry *prometheus.Registry
}

var (
	sharedMetrics     *Metrics
	sharedMetricsOnce sync.Once
)

// GetSharedMetrics returns the shared metrics instance.
func GetSharedMetrics() *Metrics {
	sharedMetricsOnce.Do(func() {
		sharedMetrics = NewMetrics("avapbx")
	})
	return sharedMetrics
}

// NewMetrics creates new audit metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of enqueued audit events",
		},
		[]string{"type", "outcome"},
	)

	m.droppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Total number of audit events dropped because the queue was full",
		},
	)

	m.writeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_errors_total",
			Help:      "Total number of audit sink write failures",
		},
	)

	m.registry.MustRegister(
		m.eventsTotal,
		m.droppedTotal,
		m.writeErrors,
	)

	return m
}

// RecordEnqueued records an enqueued audit event.
func (m *Metrics) RecordEnqueued(eventType EventType, outcome Outcome) {
	m.eventsTotal.WithLabelValues(string(eventType), string(outcome)).Inc()
}

// RecordDropped records a dropped audit event.
func (m *Metrics) RecordDropped() {
	m.droppedTotal.Inc()
}

// RecordWriteError records a sink write failure.
func (m *Metrics) RecordWriteError() {
	m.writeErrors.Inc()
}

// Registry returns the metrics registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with an external registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	collectors := []prometheus.Collector{
		m.eventsTotal,
		m.droppedTotal,
		m.writeErrors,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}
