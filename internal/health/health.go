// Package health exposes liveness and readiness probes for the admin
// server. Liveness only says the process is up; readiness runs the
// registered dependency checks (session store, secrets backend) with a
// shared timeout.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// Status is the aggregate probe outcome.
type Status string

// Probe outcomes.
const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultCheckTimeout bounds one readiness evaluation.
const DefaultCheckTimeout = 5 * time.Second

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Report is the aggregate readiness response body.
type Report struct {
	Status Status        `json:"status"`
	Checks []CheckResult `json:"checks,omitempty"`
}

// Handler aggregates dependency checks behind liveness and readiness
// endpoints.
type Handler struct {
	mu      sync.RWMutex
	names   []string
	checks  map[string]CheckFunc
	timeout time.Duration
	logger  observability.Logger
}

// HandlerOption is a functional option for the handler.
type HandlerOption func(*Handler)

// WithCheckTimeout sets the per-evaluation timeout.
func WithCheckTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = timeout
	}
}

// WithHandlerLogger sets the logger.
func WithHandlerLogger(logger observability.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates an empty health handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		checks:  make(map[string]CheckFunc),
		timeout: DefaultCheckTimeout,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddCheck registers a named dependency check. Re-registering a name
// replaces the previous check.
func (h *Handler) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.checks[name]; !exists {
		h.names = append(h.names, name)
	}
	h.checks[name] = check
}

// Evaluate runs every registered check and returns the report.
func (h *Handler) Evaluate(ctx context.Context) *Report {
	h.mu.RLock()
	names := make([]string, len(h.names))
	copy(names, h.names)
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := &Report{Status: StatusHealthy}
	for _, name := range names {
		start := time.Now()
		err := checks[name](ctx)

		result := CheckResult{
			Name:    name,
			Status:  StatusHealthy,
			Elapsed: time.Since(start),
		}
		if err != nil {
			result.Status = StatusUnhealthy
			result.Error = err.Error()
			report.Status = StatusUnhealthy
			h.logger.Warn("health check failed",
				observability.String("check", name),
				observability.Error(err),
			)
		}
		report.Checks = append(report.Checks, result)
	}

	return report
}

// LivenessHandler reports the process is up.
func (h *Handler) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": StatusHealthy})
	}
}

// ReadinessHandler runs the dependency checks and reports 503 when any
// fails.
func (h *Handler) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := h.Evaluate(c.Request.Context())

		code := http.StatusOK
		if report.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	}
}
