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

// Counter sweep default for in-memory state.
const defaultSweepInterval = time.Minute

// Ensure FixedWindowLimiter implements io.Closer for resource cleanup.
var _ io.Closer = (*FixedWindowLimiter)(nil)

// FixedWindowLimiter implements the fixed window rate limiting
// algorithm. Time is divided into fixed windows; the counter resets at
// each window boundary. Without a store the state is kept in memory and
// a background goroutine sweeps counters from past windows until Close
// is called.
type FixedWindowLimiter struct {
	store  store.Store
	limit  int
	window time.Duration
	logger observability.Logger

	counters sync.Map

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepOnce     sync.Once
}

// windowCounter is the in-memory counter for one key.
type windowCounter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// NewFixedWindowLimiter creates a new fixed window rate limiter. A nil
// store selects in-memory state.
func NewFixedWindowLimiter(s store.Store, limit int, window time.Duration, logger observability.Logger) *FixedWindowLimiter {
	return NewFixedWindowLimiterWithSweep(s, limit, window, defaultSweepInterval, logger)
}

// NewFixedWindowLimiterWithSweep creates a fixed window rate limiter
// with a custom sweep interval.
func NewFixedWindowLimiterWithSweep(s store.Store, limit int, window time.Duration, sweepInterval time.Duration, logger observability.Logger) *FixedWindowLimiter {
	if logger == nil {
		logger = observability.NopLogger()
	}

	l := &FixedWindowLimiter{
		store:         s,
		limit:         limit,
		window:        window,
		logger:        logger,
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
	}

	// Distributed state expires in the store; only in-memory counters
	// need sweeping.
	if s == nil {
		go l.sweepLoop()
	}

	return l
}

func (l *FixedWindowLimiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-l.stopSweep:
			return
		}
	}
}

// Close stops the background sweep goroutine. Safe to call multiple
// times.
func (l *FixedWindowLimiter) Close() error {
	l.sweepOnce.Do(func() {
		close(l.stopSweep)
	})
	return nil
}

// Allow implements Limiter.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN implements Limiter.
func (l *FixedWindowLimiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if l.store == nil {
		return l.allowLocal(key, n)
	}
	return l.allowDistributed(ctx, key, n)
}

// windowStart returns the start of the window containing t.
func (l *FixedWindowLimiter) windowStart(t time.Time) time.Time {
	windowNanos := l.window.Nanoseconds()
	return time.Unix(0, (t.UnixNano()/windowNanos)*windowNanos)
}

func (l *FixedWindowLimiter) allowLocal(key string, n int) (*Result, error) {
	now := time.Now()
	windowStart := l.windowStart(now)

	value, _ := l.counters.LoadOrStore(key, &windowCounter{windowStart: windowStart})
	wc := value.(*windowCounter)

	wc.mu.Lock()
	defer wc.mu.Unlock()

	if !wc.windowStart.Equal(windowStart) {
		wc.count = 0
		wc.windowStart = windowStart
	}

	allowed := wc.count+n <= l.limit
	if allowed {
		wc.count += n
	}

	return l.result(allowed, wc.count, windowStart, now), nil
}

func (l *FixedWindowLimiter) allowDistributed(ctx context.Context, key string, n int) (*Result, error) {
	now := time.Now()
	windowStart := l.windowStart(now)
	windowKey := fmt.Sprintf("%s:fw:%d", key, windowStart.UnixNano())

	current, err := l.store.Get(ctx, windowKey)
	if err != nil && !store.IsKeyNotFound(err) {
		return nil, err
	}

	allowed := int(current)+n <= l.limit
	if allowed {
		// The extra second absorbs clock skew between instances.
		expiration := l.window + time.Second
		newCount, err := l.store.IncrementWithExpiry(ctx, windowKey, int64(n), expiration)
		if err != nil {
			return nil, err
		}
		current = newCount
	}

	return l.result(allowed, int(current), windowStart, now), nil
}

func (l *FixedWindowLimiter) result(allowed bool, count int, windowStart, now time.Time) *Result {
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := windowStart.Add(l.window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = resetAfter
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}
}

// GetLimit implements Limiter.
func (l *FixedWindowLimiter) GetLimit(key string) *Limit {
	return &Limit{
		Requests: l.limit,
		Window:   l.window,
		Burst:    l.limit,
	}
}

// Reset implements Limiter.
func (l *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	l.counters.Delete(key)

	if l.store != nil {
		now := time.Now()
		windowKey := fmt.Sprintf("%s:fw:%d", key, l.windowStart(now).UnixNano())
		if err := l.store.Delete(ctx, windowKey); err != nil {
			l.logger.Warn("failed to delete window counter", observability.Error(err))
		}
	}
	return nil
}

// Cleanup removes counters from past windows.
func (l *FixedWindowLimiter) Cleanup() {
	windowStart := l.windowStart(time.Now())

	l.counters.Range(func(key, value interface{}) bool {
		wc := value.(*windowCounter)
		wc.mu.Lock()
		if wc.windowStart.Before(windowStart) {
			l.counters.Delete(key)
		}
		wc.mu.Unlock()
		return true
	})
}

var _ Limiter = (*FixedWindowLimiter)(nil)
