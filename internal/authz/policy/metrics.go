package policy

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for the policy engine.
type Metrics struct {
	evaluationsTotal    *prometheus.CounterVec
	evaluationDuration  *prometheus.HistogramVec
	conditionPanics     prometheus.Counter
	malformedConditions prometheus.Counter

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

// NewMetrics creates new policy engine metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluations_total",
			Help:      "Total number of policy evaluations by outcome",
		},
		[]string{"outcome"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluation_duration_seconds",
			Help:      "Policy evaluation duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"outcome"},
	)

	m.conditionPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "condition_panics_total",
			Help:      "Total number of panics recovered during condition evaluation",
		},
	)

	m.malformedConditions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "malformed_conditions_total",
			Help:      "Total number of conditions that failed to parse",
		},
	)

	m.registry.MustRegister(
		m.evaluationsTotal,
		m.evaluationDuration,
		m.conditionPanics,
		m.malformedConditions,
	)

	return m
}

// RecordEvaluation records a policy evaluation.
func (m *Metrics) RecordEvaluation(outcome string, duration time.Duration) {
	m.evaluationsTotal.WithLabelValues(outcome).Inc()
	m.evaluationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordConditionPanic records a recovered condition panic.
func (m *Metrics) RecordConditionPanic() {
	m.conditionPanics.Inc()
}

// RecordMalformedCondition records a condition parse failure.
func (m *Metrics) RecordMalformedCondition() {
	m.malformedConditions.Inc()
}

// Registry returns the metrics registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with an external registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	collectors := []prometheus.Collector{
		m.evaluationsTotal,
		m.evaluationDuration,
		m.conditionPanics,
		m.malformedConditions,
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
