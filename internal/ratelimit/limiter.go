// Package ratelimit provides request rate limiting for the PBX admin
// API. It supports fixed window and token bucket algorithms with local
// or Redis-backed state, and resolves the applicable limit per request
// from route overrides, operation classes, role defaults, and the
// global fallback.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Limiter defines the interface for rate limiting.
type Limiter interface {
	// Allow checks if a single request is allowed for the given key.
	Allow(ctx context.Context, key string) (*Result, error)

	// AllowN checks if n requests are allowed for the given key.
	AllowN(ctx context.Context, key string, n int) (*Result, error)

	// GetLimit returns the limit configuration for the given key.
	GetLimit(key string) *Limit

	// Reset resets the rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}

// Limit represents one rate limit configuration.
type Limit struct {
	// Requests is the maximum number of requests allowed in the window.
	Requests int `yaml:"requests"`

	// Window is the time window for the rate limit.
	Window time.Duration `yaml:"window"`

	// Burst is the maximum burst size, used by the token bucket
	// algorithm. Zero defaults to Requests.
	Burst int `yaml:"burst,omitempty"`
}

// UnmarshalYAML decodes a limit, accepting window values either as
// duration strings ("1m") or bare integers meaning seconds.
func (l *Limit) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Requests int       `yaml:"requests"`
		Window   yaml.Node `yaml:"window"`
		Burst    int       `yaml:"burst"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	l.Requests = raw.Requests
	l.Burst = raw.Burst

	if raw.Window.IsZero() {
		return nil
	}

	var seconds int64
	if err := raw.Window.Decode(&seconds); err == nil {
		l.Window = time.Duration(seconds) * time.Second
		return nil
	}

	var text string
	if err := raw.Window.Decode(&text); err != nil {
		return err
	}
	window, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid rate limit window %q: %w", text, err)
	}
	l.Window = window
	return nil
}

// GetEffectiveBurst returns the burst size, defaulting to Requests.
func (l *Limit) GetEffectiveBurst() int {
	if l.Burst > 0 {
		return l.Burst
	}
	return l.Requests
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAfter is the duration until the rate limit resets.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying (when not allowed).
	RetryAfter time.Duration
}

// Algorithm represents the rate limiting algorithm type.
type Algorithm string

const (
	// AlgorithmTokenBucket uses the token bucket algorithm.
	AlgorithmTokenBucket Algorithm = "token_bucket"

	// AlgorithmFixedWindow uses the fixed window algorithm.
	AlgorithmFixedWindow Algorithm = "fixed_window"
)

// NoopLimiter is a rate limiter that always allows requests.
type NoopLimiter struct{}

// NewNoopLimiter creates a new noop limiter.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// AllowN implements Limiter.
func (l *NoopLimiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	return l.Allow(ctx, key)
}

// GetLimit implements Limiter.
func (l *NoopLimiter) GetLimit(key string) *Limit {
	return nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(ctx context.Context, key string) error {
	return nil
}

var _ Limiter = (*NoopLimiter)(nil)
