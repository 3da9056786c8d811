package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	t.Parallel()

	event := NewEvent(EventTypeAuthorization, ActionAccess, OutcomeSuccess)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, time.UTC, event.Timestamp.Location())
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Second)

	other := NewEvent(EventTypeAuthorization, ActionAccess, OutcomeSuccess)
	assert.NotEqual(t, event.ID, other.ID)
}

func TestEventBuilders(t *testing.T) {
	t.Parallel()

	subject := &Subject{ID: "user-1", Roles: []string{"operator"}}
	resource := &Resource{Type: "extensions", Path: "/api/v1/extensions/1001"}

	t.Run("access granted", func(t *testing.T) {
		t.Parallel()
		event := AccessGrantedEvent(subject, resource)
		assert.Equal(t, EventTypeAuthorization, event.Type)
		assert.Equal(t, ActionAccess, event.Action)
		assert.Equal(t, OutcomeSuccess, event.Outcome)
		assert.Equal(t, subject, event.Subject)
		assert.Equal(t, resource, event.Resource)
	})

	t.Run("access denied carries reason", func(t *testing.T) {
		t.Parallel()
		event := AccessDeniedEvent(subject, resource, "missing extensions:update")
		assert.Equal(t, ActionDeny, event.Action)
		assert.Equal(t, OutcomeFailure, event.Outcome)
		assert.Equal(t, "missing extensions:update", event.Reason)
	})

	t.Run("rate limit exceeded carries retry after", func(t *testing.T) {
		t.Parallel()
		event := RateLimitExceededEvent(subject, resource, 30*time.Second)
		assert.Equal(t, EventTypeRateLimit, event.Type)
		assert.Equal(t, OutcomeWarning, event.Outcome)
		require.NotNil(t, event.Metadata)
		assert.Equal(t, "30s", event.Metadata["retry_after"])
	})

	t.Run("security event is a warning with details", func(t *testing.T) {
		t.Parallel()
		event := SecurityEvent(ActionSuspiciousActivity, subject, map[string]interface{}{
			"attempts": 7,
		})
		assert.Equal(t, EventTypeSecurity, event.Type)
		assert.Equal(t, OutcomeWarning, event.Outcome)
		assert.Equal(t, 7, event.Metadata["attempts"])
	})
}

func TestRiskLevelFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskLevelLow},
		{29, RiskLevelLow},
		{30, RiskLevelMedium},
		{59, RiskLevelMedium},
		{60, RiskLevelHigh},
		{79, RiskLevelHigh},
		{80, RiskLevelCritical},
		{100, RiskLevelCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevelFor(tt.score), "score %d", tt.score)
	}
}

func TestEventWithRisk(t *testing.T) {
	t.Parallel()

	event := NewEvent(EventTypeAuthorization, ActionDeny, OutcomeFailure).WithRisk(85)
	assert.Equal(t, 85, event.RiskScore)
	assert.Equal(t, RiskLevelCritical, event.RiskLevel)
}
