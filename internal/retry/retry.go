// Package retry runs an operation with exponential backoff and
// jitter. The session and rate limit stores use it to ride out
// transient Redis failures without stalling a request for long.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// DefaultJitterFactor spreads backoff delays by +/-25%.
const DefaultJitterFactor = 0.25

// Config controls the retry schedule.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration

	// JitterFactor randomizes each delay by the given fraction.
	JitterFactor float64
}

// DefaultConfig returns a schedule suited to fast store operations.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFactor:   DefaultJitterFactor,
	}
}

// Options tunes one Do call.
type Options struct {
	// ShouldRetry reports whether the error is worth retrying. Nil
	// means every error is retried.
	ShouldRetry func(error) bool

	// OnRetry is called before each retry with the attempt number (1
	// for the first retry), the error, and the chosen backoff.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// Do runs fn until it succeeds, the schedule is exhausted, or the
// context ends. The last error is returned.
func Do(ctx context.Context, cfg *Config, fn func() error, opts *Options) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if opts == nil {
		opts = &Options{}
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries {
			return err
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(err) {
			return err
		}

		delay := backoffFor(cfg, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffFor doubles the initial delay per attempt, caps it, and
// applies jitter.
func backoffFor(cfg *Config, attempt int) time.Duration {
	delay := cfg.InitialBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for i := 0; i < attempt; i++ {
		delay *= 2
		if cfg.MaxBackoff > 0 && delay >= cfg.MaxBackoff {
			delay = cfg.MaxBackoff
			break
		}
	}
	if cfg.MaxBackoff > 0 && delay > cfg.MaxBackoff {
		delay = cfg.MaxBackoff
	}

	if cfg.JitterFactor > 0 {
		jitter := 1 + cfg.JitterFactor*(2*rand.Float64()-1) //nolint:gosec // jitter, not crypto
		delay = time.Duration(float64(delay) * jitter)
	}

	return delay
}
