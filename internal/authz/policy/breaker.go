package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// Breaker defaults.
const (
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
)

// BreakerStore wraps a Store in a circuit breaker. While the breaker is
// open every fetch fails fast with ErrStoreUnavailable, which the
// engine surfaces as a fail-closed evaluation error.
type BreakerStore struct {
	inner  Store
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// BreakerOption is a functional option for the breaker store.
type BreakerOption func(*breakerSettings)

type breakerSettings struct {
	threshold int
	timeout   time.Duration
	logger    observability.Logger
}

// WithBreakerThreshold sets the request count before the failure ratio
// is considered.
func WithBreakerThreshold(threshold int) BreakerOption {
	return func(s *breakerSettings) {
		s.threshold = threshold
	}
}

// WithBreakerTimeout sets how long the breaker stays open.
func WithBreakerTimeout(timeout time.Duration) BreakerOption {
	return func(s *breakerSettings) {
		s.timeout = timeout
	}
}

// WithBreakerLogger sets the logger.
func WithBreakerLogger(logger observability.Logger) BreakerOption {
	return func(s *breakerSettings) {
		s.logger = logger
	}
}

// NewBreakerStore wraps a store in a circuit breaker.
func NewBreakerStore(inner Store, opts ...BreakerOption) *BreakerStore {
	settings := &breakerSettings{
		threshold: defaultBreakerThreshold,
		timeout:   defaultBreakerTimeout,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(settings)
	}

	threshold := uint32(settings.threshold) //nolint:gosec // small configured value
	bs := &BreakerStore{
		inner:  inner,
		logger: settings.logger,
	}

	bs.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "policy-store",
		MaxRequests: threshold,
		Interval:    settings.timeout,
		Timeout:     settings.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			bs.logger.Warn("policy store breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return bs
}

// ListPolicies fetches policies through the breaker.
func (s *BreakerStore) ListPolicies(ctx context.Context, domainID string) ([]*Policy, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.ListPolicies(ctx, domainID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker open", ErrStoreUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	policies, ok := result.([]*Policy)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected store result", ErrStoreUnavailable)
	}
	return policies, nil
}

// State returns the breaker state.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// Ensure BreakerStore implements Store.
var _ Store = (*BreakerStore)(nil)
