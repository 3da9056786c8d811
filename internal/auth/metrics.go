package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for identity resolution.
type Metrics struct {
	resolutionTotal    *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	storeTimeouts      prometheus.Counter
	registry           *prometheus.Registry
}

var (
	sharedMetrics     *Metrics
	sharedMetricsOnce sync.Once
)

// GetSharedMetrics returns the singleton Metrics instance.
func GetSharedMetrics() *Metrics {
	sharedMetricsOnce.Do(func() {
		sharedMetrics = NewMetrics("avapbx")
	})
	return sharedMetrics
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avapbx"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.resolutionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "resolution_total",
			Help:      "Total number of identity resolution attempts",
		},
		[]string{"method", "status", "reason"},
	)

	m.resolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "resolution_duration_seconds",
			Help:      "Identity resolution duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "status"},
	)

	m.storeTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "store_timeouts_total",
			Help:      "Total number of user store lookups that hit the deadline",
		},
	)

	m.registry.MustRegister(
		m.resolutionTotal,
		m.resolutionDuration,
		m.storeTimeouts,
	)

	return m
}

// RecordResolution records an identity resolution attempt.
func (m *Metrics) RecordResolution(method, status, reason string, duration time.Duration) {
	m.resolutionTotal.WithLabelValues(method, status, reason).Inc()
	m.resolutionDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}

// RecordStoreTimeout records a user store lookup deadline hit.
func (m *Metrics) RecordStoreTimeout() {
	m.storeTimeouts.Inc()
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry.
// AlreadyRegisteredError is silently ignored so that providers can be
// recreated on config reload.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	for _, c := range []prometheus.Collector{
		m.resolutionTotal,
		m.resolutionDuration,
		m.storeTimeouts,
	} {
		if err := registry.Register(c); err != nil {
			if !isAlreadyRegistered(err) {
				panic(err)
			}
		}
	}
}

// isAlreadyRegistered returns true if the error indicates the
// collector was already registered with the registry.
func isAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}
