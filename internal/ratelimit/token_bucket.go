package ratelimit

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// Bucket cleanup defaults.
const (
	defaultCleanupInterval = 5 * time.Minute
	defaultBucketTTL       = 10 * time.Minute
)

// Ensure TokenBucketLimiter implements io.Closer for resource cleanup.
var _ io.Closer = (*TokenBucketLimiter)(nil)

// TokenBucketLimiter implements the token bucket algorithm on top of
// golang.org/x/time/rate, with one bucket per key. Call Close when done
// to stop the background cleanup goroutine.
type TokenBucketLimiter struct {
	rate   rate.Limit
	burst  int
	logger observability.Logger

	buckets sync.Map

	cleanupInterval time.Duration
	bucketTTL       time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// bucketEntry pairs a limiter with its last access time.
type bucketEntry struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter creates a token bucket limiter refilling at r
// tokens per second with the given burst capacity. A background
// goroutine evicts idle buckets until Close is called.
func NewTokenBucketLimiter(r float64, burst int, logger observability.Logger) *TokenBucketLimiter {
	return NewTokenBucketLimiterWithTTL(r, burst, defaultCleanupInterval, defaultBucketTTL, logger)
}

// NewTokenBucketLimiterWithTTL creates a token bucket limiter with
// custom cleanup settings.
func NewTokenBucketLimiterWithTTL(r float64, burst int, cleanupInterval, bucketTTL time.Duration, logger observability.Logger) *TokenBucketLimiter {
	if logger == nil {
		logger = observability.NopLogger()
	}

	l := &TokenBucketLimiter{
		rate:            rate.Limit(r),
		burst:           burst,
		logger:          logger,
		cleanupInterval: cleanupInterval,
		bucketTTL:       bucketTTL,
		stopCleanup:     make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup(l.bucketTTL)
		case <-l.stopCleanup:
			return
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple
// times.
func (l *TokenBucketLimiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN implements Limiter.
func (l *TokenBucketLimiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	now := time.Now()

	value, _ := l.buckets.LoadOrStore(key, &bucketEntry{
		limiter: rate.NewLimiter(l.rate, l.burst),
	})
	entry := value.(*bucketEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.lastSeen = now
	allowed := entry.limiter.AllowN(now, n)
	tokens := entry.limiter.TokensAt(now)

	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	perSecond := float64(l.rate)
	resetAfter := durationFor(float64(l.burst)-tokens, perSecond)

	var retryAfter time.Duration
	if !allowed {
		retryAfter = durationFor(float64(n)-tokens, perSecond)
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.burst,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}, nil
}

// durationFor returns the time needed to accumulate the given number
// of tokens at the given refill rate.
func durationFor(tokens, perSecond float64) time.Duration {
	if tokens <= 0 || perSecond <= 0 {
		return 0
	}
	return time.Duration(tokens / perSecond * float64(time.Second))
}

// GetLimit implements Limiter.
func (l *TokenBucketLimiter) GetLimit(key string) *Limit {
	return &Limit{
		Requests: int(l.rate),
		Window:   time.Second,
		Burst:    l.burst,
	}
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	l.buckets.Delete(key)
	return nil
}

// Cleanup evicts buckets idle for longer than maxAge.
func (l *TokenBucketLimiter) Cleanup(maxAge time.Duration) {
	now := time.Now()

	l.buckets.Range(func(key, value interface{}) bool {
		entry := value.(*bucketEntry)
		entry.mu.Lock()
		if now.Sub(entry.lastSeen) > maxAge {
			l.buckets.Delete(key)
		}
		entry.mu.Unlock()
		return true
	})
}

var _ Limiter = (*TokenBucketLimiter)(nil)
