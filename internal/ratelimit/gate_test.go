package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avapbx/internal/ratelimit/store"
)

func newTestGate(t *testing.T, cfg *Config, opts ...GateOption) *Gate {
	t.Helper()

	opts = append(opts, WithGateMetrics(NewMetrics("test")))
	gate, err := NewGate(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })
	return gate
}

func TestGate_DisabledAllowsEverything(t *testing.T) {
	t.Parallel()

	gate := newTestGate(t, &Config{Enabled: false})

	for i := 0; i < 100; i++ {
		result := gate.Check(context.Background(), &Request{ClientIP: "10.0.0.1"})
		assert.True(t, result.Allowed)
	}
}

func TestGate_EnforcesClassLimit(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Enabled:   true,
		Algorithm: AlgorithmFixedWindow,
		Classes: map[string]Limit{
			ClassBackup: {Requests: 2, Window: time.Hour},
		},
	}
	gate := newTestGate(t, cfg)

	req := &Request{
		PrincipalID:    "user-1",
		ClientIP:       "10.0.0.1",
		Method:         "POST",
		Path:           "/api/v1/backups",
		OperationClass: ClassBackup,
	}

	for i := 0; i < 2; i++ {
		result := gate.Check(context.Background(), req)
		assert.True(t, result.Allowed)
	}

	result := gate.Check(context.Background(), req)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestGate_AnonymousKeyedByIP(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Enabled:   true,
		Algorithm: AlgorithmFixedWindow,
		Global:    &Limit{Requests: 1, Window: time.Hour},
	}
	gate := newTestGate(t, cfg)

	login := &Request{ClientIP: "10.0.0.1", Method: "POST", Path: "/api/v1/login"}

	result := gate.Check(context.Background(), login)
	assert.True(t, result.Allowed)

	result = gate.Check(context.Background(), login)
	assert.False(t, result.Allowed)

	other := &Request{ClientIP: "10.0.0.2", Method: "POST", Path: "/api/v1/login"}
	result = gate.Check(context.Background(), other)
	assert.True(t, result.Allowed)
}

func TestGate_EndpointsHaveSeparateBudgets(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Enabled:   true,
		Algorithm: AlgorithmFixedWindow,
		Global:    &Limit{Requests: 1, Window: time.Hour},
	}
	gate := newTestGate(t, cfg)

	first := &Request{PrincipalID: "user-1", Method: "GET", Path: "/api/v1/extensions"}
	second := &Request{PrincipalID: "user-1", Method: "GET", Path: "/api/v1/cdrs"}

	result := gate.Check(context.Background(), first)
	assert.True(t, result.Allowed)

	result = gate.Check(context.Background(), first)
	assert.False(t, result.Allowed)

	result = gate.Check(context.Background(), second)
	assert.True(t, result.Allowed)
}

func TestGate_RequirementOverride(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Enabled:   true,
		Algorithm: AlgorithmFixedWindow,
		Global:    &Limit{Requests: 100, Window: time.Minute},
	}
	gate := newTestGate(t, cfg)

	req := &Request{
		PrincipalID: "user-1",
		Method:      "POST",
		Path:        "/api/v1/backups/restore",
		Route:       "backups-restore",
		Override:    &Limit{Requests: 1, Window: time.Hour},
	}

	result := gate.Check(context.Background(), req)
	assert.True(t, result.Allowed)

	result = gate.Check(context.Background(), req)
	assert.False(t, result.Allowed)
}

type failingRatelimitStore struct{}

func (failingRatelimitStore) Get(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingRatelimitStore) IncrementWithExpiry(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingRatelimitStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func (failingRatelimitStore) Close() error { return nil }

func TestGate_FailsOpenOnStoreErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Enabled:   true,
		Algorithm: AlgorithmFixedWindow,
		Global:    &Limit{Requests: 1, Window: time.Hour},
	}
	gate := newTestGate(t, cfg, WithGateStore(failingRatelimitStore{}))

	req := &Request{PrincipalID: "user-1", Method: "GET", Path: "/api/v1/extensions"}

	// Every check hits the broken store and must still allow.
	for i := 0; i < 5; i++ {
		result := gate.Check(context.Background(), req)
		assert.True(t, result.Allowed)
	}
}

func TestGate_Reset(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Enabled:   true,
		Algorithm: AlgorithmFixedWindow,
		Global:    &Limit{Requests: 1, Window: time.Hour},
	}
	gate := newTestGate(t, cfg)

	req := &Request{PrincipalID: "user-1", Method: "GET", Path: "/api/v1/extensions"}

	result := gate.Check(context.Background(), req)
	assert.True(t, result.Allowed)
	result = gate.Check(context.Background(), req)
	assert.False(t, result.Allowed)

	gate.Reset(context.Background(), "user-1", "", "GET", "/api/v1/extensions")

	result = gate.Check(context.Background(), req)
	assert.True(t, result.Allowed)
}

func TestGate_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewGate(&Config{
		Enabled: true,
		Global:  &Limit{Requests: -1, Window: time.Minute},
	})
	require.Error(t, err)
}

func TestGate_DistributedFixedWindow(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Enabled:   true,
		Algorithm: AlgorithmFixedWindow,
		Global:    &Limit{Requests: 2, Window: time.Hour},
	}
	gate := newTestGate(t, cfg, WithGateStore(store.NewMemoryStore()))

	req := &Request{PrincipalID: "user-1", Method: "GET", Path: "/api/v1/extensions"}

	for i := 0; i < 2; i++ {
		result := gate.Check(context.Background(), req)
		assert.True(t, result.Allowed)
	}
	result := gate.Check(context.Background(), req)
	assert.False(t, result.Allowed)
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, RetryAfterSeconds(0))
	assert.Equal(t, 1, RetryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 2, RetryAfterSeconds(1200*time.Millisecond))
	assert.Equal(t, 30, RetryAfterSeconds(30*time.Second))
}
