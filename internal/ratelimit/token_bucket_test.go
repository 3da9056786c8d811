package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketLimiter_BurstThenReject(t *testing.T) {
	t.Parallel()

	// Very slow refill so the test does not race the clock.
	limiter := NewTokenBucketLimiter(0.001, 3, nil)
	defer limiter.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestTokenBucketLimiter_Refills(t *testing.T) {
	t.Parallel()

	// 100 tokens per second refills one token within 10ms.
	limiter := NewTokenBucketLimiter(100, 1, nil)
	defer limiter.Close()
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	assert.Eventually(t, func() bool {
		result, err := limiter.Allow(ctx, "user:1")
		return err == nil && result.Allowed
	}, time.Second, 5*time.Millisecond)
}

func TestTokenBucketLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	limiter := NewTokenBucketLimiter(0.001, 1, nil)
	defer limiter.Close()
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = limiter.Allow(ctx, "user:2")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestTokenBucketLimiter_Reset(t *testing.T) {
	t.Parallel()

	limiter := NewTokenBucketLimiter(0.001, 1, nil)
	defer limiter.Close()
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)

	result, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	require.NoError(t, limiter.Reset(ctx, "user:1"))

	result, err = limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestTokenBucketLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	limiter := NewTokenBucketLimiterWithTTL(1, 1, time.Hour, time.Hour, nil)
	defer limiter.Close()
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)

	// Nothing is older than an hour yet.
	limiter.Cleanup(time.Hour)
	_, ok := limiter.buckets.Load("user:1")
	assert.True(t, ok)

	limiter.Cleanup(0)
	_, ok = limiter.buckets.Load("user:1")
	assert.False(t, ok)
}

func TestTokenBucketLimiter_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	limiter := NewTokenBucketLimiter(1, 1, nil)
	require.NoError(t, limiter.Close())
	require.NoError(t, limiter.Close())
}
