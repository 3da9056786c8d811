package ratelimit

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vyrodovalexey/avapbx/internal/observability"
	"github.com/vyrodovalexey/avapbx/internal/ratelimit/store"
)

// Request carries the attributes a rate limit check is keyed on.
type Request struct {
	// PrincipalID identifies the authenticated subject; empty for
	// anonymous requests, which are keyed by client IP instead.
	PrincipalID string

	// Roles are the subject's effective roles.
	Roles []string

	// ClientIP is the request client IP.
	ClientIP string

	// Method and Path identify the endpoint.
	Method string
	Path   string

	// Route is the route name, checked for per-route overrides.
	Route string

	// OperationClass classifies the operation (sync, backup,
	// destructive, upload, login).
	OperationClass string

	// Override replaces the resolution ladder entirely when set.
	Override *Limit
}

// Gate resolves the applicable limit per request and runs the check
// against a per-limit limiter instance. Bookkeeping failures fail open:
// the request is allowed and counted.
type Gate struct {
	cfg     *Config
	backend store.Store
	logger  observability.Logger
	metrics *Metrics

	mu       sync.Mutex
	limiters map[string]Limiter
	closed   bool
}

// GateOption is a functional option for the gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithGateMetrics sets the metrics.
func WithGateMetrics(metrics *Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = metrics
	}
}

// WithGateStore sets a distributed backend for fixed window limiters.
func WithGateStore(s store.Store) GateOption {
	return func(g *Gate) {
		g.backend = s
	}
}

// NewGate creates a rate limit gate from the configuration.
func NewGate(cfg *Config, opts ...GateOption) (*Gate, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}

	g := &Gate{
		cfg:      cfg,
		logger:   observability.NopLogger(),
		limiters: make(map[string]Limiter),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.metrics == nil {
		g.metrics = GetSharedMetrics()
	}

	return g, nil
}

// Check runs the rate limit check for one request. The returned result
// is never nil: bookkeeping failures are translated into an allowed
// result.
func (g *Gate) Check(ctx context.Context, req *Request) *Result {
	if !g.cfg.Enabled {
		return &Result{Allowed: true}
	}

	resolution := g.resolve(req)
	key := RequestKey(req.PrincipalID, req.ClientIP, req.Method, req.Path)

	limiter, err := g.limiterFor(resolution)
	if err != nil {
		return g.failOpen(resolution.Scope, err)
	}

	result, err := limiter.Allow(ctx, key)
	if err != nil {
		return g.failOpen(resolution.Scope, err)
	}

	if result.Allowed {
		g.metrics.RecordCheck(resolution.Scope, "allowed")
	} else {
		g.metrics.RecordCheck(resolution.Scope, "rejected")
		g.metrics.RecordRejection(resolution.Scope)
		g.logger.Debug("rate limit exceeded",
			observability.String("scope", resolution.Scope),
			observability.String("key", key),
			observability.Duration("retry_after", result.RetryAfter),
		)
	}

	return result
}

func (g *Gate) resolve(req *Request) Resolution {
	if req.Override != nil {
		return Resolution{
			Limit:    *req.Override,
			Scope:    ScopeRoute,
			ScopeKey: "override:" + req.Route,
		}
	}
	return g.cfg.Resolve(req.Route, req.OperationClass, req.Roles)
}

// failOpen allows a request whose bookkeeping failed.
func (g *Gate) failOpen(scope string, err error) *Result {
	g.metrics.RecordFailOpen()
	g.metrics.RecordCheck(scope, "fail_open")
	g.logger.Warn("rate limit bookkeeping failed, allowing request",
		observability.String("scope", scope),
		observability.Error(err),
	)
	return &Result{Allowed: true}
}

// limiterFor returns the limiter instance for a resolved limit,
// creating it on first use.
func (g *Gate) limiterFor(resolution Resolution) (Limiter, error) {
	instanceKey := fmt.Sprintf("%s:%s:%d:%s",
		resolution.Scope, resolution.ScopeKey, resolution.Limit.Requests, resolution.Limit.Window)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, fmt.Errorf("gate is closed")
	}

	if limiter, ok := g.limiters[instanceKey]; ok {
		return limiter, nil
	}

	limiter := g.newLimiter(resolution.Limit)
	g.limiters[instanceKey] = limiter
	return limiter, nil
}

func (g *Gate) newLimiter(limit Limit) Limiter {
	switch g.cfg.GetEffectiveAlgorithm() {
	case AlgorithmFixedWindow:
		return NewFixedWindowLimiter(g.backend, limit.Requests, limit.Window, g.logger)
	default:
		perSecond := float64(limit.Requests) / limit.Window.Seconds()
		return NewTokenBucketLimiter(perSecond, limit.GetEffectiveBurst(), g.logger)
	}
}

// Reset clears the rate limit state for one subject across all limiter
// instances.
func (g *Gate) Reset(ctx context.Context, principalID, clientIP, method, path string) {
	key := RequestKey(principalID, clientIP, method, path)

	g.mu.Lock()
	limiters := make([]Limiter, 0, len(g.limiters))
	for _, l := range g.limiters {
		limiters = append(limiters, l)
	}
	g.mu.Unlock()

	for _, l := range limiters {
		if err := l.Reset(ctx, key); err != nil {
			g.logger.Warn("rate limit reset failed", observability.Error(err))
		}
	}
}

// Close stops all limiter cleanup goroutines and the backend store.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	for _, l := range g.limiters {
		if closer, ok := l.(io.Closer); ok {
			_ = closer.Close()
		}
	}
	g.limiters = make(map[string]Limiter)

	if g.backend != nil {
		return g.backend.Close()
	}
	return nil
}

// RetryAfterSeconds rounds a retry delay up to whole seconds for the
// Retry-After response header.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
