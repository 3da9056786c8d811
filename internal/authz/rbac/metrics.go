package rbac

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for RBAC checks.
type Metrics struct {
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	reloadsTotal  prometheus.Counter
	rolesLoaded   prometheus.Gauge
	registry      *prometheus.Registry
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

	m.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rbac",
			Name:      "checks_total",
			Help:      "Total number of RBAC checks",
		},
		[]string{"outcome", "channel"},
	)

	m.checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rbac",
			Name:      "check_duration_seconds",
			Help:      "RBAC check duration in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		},
		[]string{"outcome"},
	)

	m.reloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rbac",
			Name:      "reloads_total",
			Help:      "Total number of role table reloads",
		},
	)

	m.rolesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rbac",
			Name:      "roles_loaded",
			Help:      "Number of roles in the active role table",
		},
	)

	m.registry.MustRegister(
		m.checksTotal,
		m.checkDuration,
		m.reloadsTotal,
		m.rolesLoaded,
	)

	return m
}

// RecordCheck records an RBAC check.
func (m *Metrics) RecordCheck(outcome, channel string, duration time.Duration) {
	m.checksTotal.WithLabelValues(outcome, channel).Inc()
	m.checkDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordReload records a role table reload.
func (m *Metrics) RecordReload(roles int) {
	m.reloadsTotal.Inc()
	m.rolesLoaded.Set(float64(roles))
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
		m.checksTotal,
		m.checkDuration,
		m.reloadsTotal,
		m.rolesLoaded,
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
