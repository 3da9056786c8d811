package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avapbx/internal/ratelimit/store"
)

func TestFixedWindowLimiter_Local(t *testing.T) {
	t.Parallel()

	limiter := NewFixedWindowLimiter(nil, 3, time.Minute, nil)
	defer limiter.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 3, result.Limit)
		assert.Equal(t, 2-i, result.Remaining)
	}

	result, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestFixedWindowLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	limiter := NewFixedWindowLimiter(nil, 1, time.Minute, nil)
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

func TestFixedWindowLimiter_AllowN(t *testing.T) {
	t.Parallel()

	limiter := NewFixedWindowLimiter(nil, 10, time.Minute, nil)
	defer limiter.Close()
	ctx := context.Background()

	result, err := limiter.AllowN(ctx, "user:1", 8)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Remaining)

	result, err = limiter.AllowN(ctx, "user:1", 3)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = limiter.AllowN(ctx, "user:1", 2)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestFixedWindowLimiter_Reset(t *testing.T) {
	t.Parallel()

	limiter := NewFixedWindowLimiter(nil, 1, time.Minute, nil)
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

func TestFixedWindowLimiter_Distributed(t *testing.T) {
	t.Parallel()

	limiter := NewFixedWindowLimiter(store.NewMemoryStore(), 2, time.Minute, nil)
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestFixedWindowLimiter_WindowElapseAdmitsAndRestarts(t *testing.T) {
	t.Parallel()

	limiter := NewFixedWindowLimiter(nil, 2, 50*time.Millisecond, nil)
	defer limiter.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	// Past the window boundary the next request is admitted and the
	// counter restarts at 1.
	time.Sleep(result.RetryAfter + 10*time.Millisecond)

	result, err = limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Remaining)
}

func TestFixedWindowLimiter_SweepEvictsPastWindows(t *testing.T) {
	t.Parallel()

	limiter := NewFixedWindowLimiterWithSweep(nil, 1, 20*time.Millisecond, 10*time.Millisecond, nil)
	defer limiter.Close()

	_, err := limiter.Allow(context.Background(), "user:1")
	require.NoError(t, err)

	_, loaded := limiter.counters.Load("user:1")
	require.True(t, loaded)

	assert.Eventually(t, func() bool {
		_, loaded := limiter.counters.Load("user:1")
		return !loaded
	}, time.Second, 10*time.Millisecond)
}

func TestFixedWindowLimiter_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	limiter := NewFixedWindowLimiter(nil, 1, time.Minute, nil)
	require.NoError(t, limiter.Close())
	require.NoError(t, limiter.Close())
}

func TestFixedWindowLimiter_GetLimit(t *testing.T) {
	t.Parallel()

	limiter := NewFixedWindowLimiter(nil, 5, time.Minute, nil)
	defer limiter.Close()

	limit := limiter.GetLimit("any")
	require.NotNil(t, limit)
	assert.Equal(t, 5, limit.Requests)
	assert.Equal(t, time.Minute, limit.Window)
}
