package ratelimit

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for rate limiting.
type Metrics struct {
	checksTotal     *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	failOpensTotal  prometheus.Counter

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

// NewMetrics creates new rate limiting metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "checks_total",
			Help:      "Total number of rate limit checks by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)

	m.rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Total number of rejected requests by scope",
		},
		[]string{"scope"},
	)

	m.failOpensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "fail_opens_total",
			Help:      "Total number of requests allowed because bookkeeping failed",
		},
	)

	m.registry.MustRegister(
		m.checksTotal,
		m.rejectionsTotal,
		m.failOpensTotal,
	)

	return m
}

// RecordCheck records a rate limit check.
func (m *Metrics) RecordCheck(scope, outcome string) {
	m.checksTotal.WithLabelValues(scope, outcome).Inc()
}

// RecordRejection records a rejected request.
func (m *Metrics) RecordRejection(scope string) {
	m.rejectionsTotal.WithLabelValues(scope).Inc()
}

// RecordFailOpen records a request allowed on a bookkeeping failure.
func (m *Metrics) RecordFailOpen() {
	m.failOpensTotal.Inc()
}

// Registry returns the metrics registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with an external registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	collectors := []prometheus.Collector{
		m.checksTotal,
		m.rejectionsTotal,
		m.failOpensTotal,
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
