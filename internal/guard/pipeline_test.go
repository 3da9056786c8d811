package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avapbx/internal/auth"
	"github.com/vyrodovalexey/avapbx/internal/auth/session"
	"github.com/vyrodovalexey/avapbx/internal/authz/policy"
	"github.com/vyrodovalexey/avapbx/internal/authz/rbac"
	"github.com/vyrodovalexey/avapbx/internal/ratelimit"
)

// guardFixture wires real components around in-memory stores.
type guardFixture struct {
	pipeline    *Pipeline
	sessions    session.Manager
	users       *auth.MemoryUserStore
	policyStore *policy.MemoryStore
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	users := auth.NewMemoryUserStore()
	users.Put(&auth.UserRecord{
		ID:          "user-1",
		Username:    "alice",
		DomainID:    "pbx.example.com",
		Active:      true,
		Roles:       []string{"domain_admin"},
		PrimaryRole: "domain_admin",
	})
	users.Put(&auth.UserRecord{
		ID:          "user-2",
		Username:    "bob",
		DomainID:    "pbx.example.com",
		Active:      true,
		Roles:       []string{"auditor"},
		PrimaryRole: "auditor",
	})
	users.Put(&auth.UserRecord{
		ID:          "user-3",
		Username:    "root",
		Active:      true,
		Roles:       []string{"superadmin"},
		PrimaryRole: "superadmin",
	})

	sessions, err := session.NewManager(session.NewMemoryStore())
	require.NoError(t, err)

	resolver, err := auth.NewResolver(sessions, nil, users,
		auth.WithResolverMetrics(auth.NewMetrics("test")))
	require.NoError(t, err)

	rbacCfg := &rbac.Config{
		Roles: []rbac.Role{
			{Name: "superadmin", Level: 0},
			{Name: "domain_admin", Level: 10, Permissions: []string{
				"extensions:manage", "recordings:read", "backups:create",
			}},
			{Name: "auditor", Level: 50, Permissions: []string{"cdrs:read"}},
		},
		Hierarchy: map[string][]string{
			"domain_admin": {"auditor"},
		},
	}
	roles, err := rbac.NewResolver(rbacCfg, rbac.WithResolverMetrics(rbac.NewMetrics("test")))
	require.NoError(t, err)

	policyStore := policy.NewMemoryStore()
	engine, err := policy.NewEngine(policyStore, policy.WithEngineMetrics(policy.NewMetrics("test")))
	require.NoError(t, err)

	limiter, err := ratelimit.NewGate(&ratelimit.Config{
		Enabled:   true,
		Algorithm: ratelimit.AlgorithmFixedWindow,
		Global:    &ratelimit.Limit{Requests: 100, Window: time.Minute},
		Classes: map[string]ratelimit.Limit{
			ratelimit.ClassBackup: {Requests: 1, Window: time.Hour},
		},
	}, ratelimit.WithGateMetrics(ratelimit.NewMetrics("test")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	pipeline, err := NewPipeline(resolver, roles, engine, limiter,
		WithPipelineMetrics(NewMetrics("test")))
	require.NoError(t, err)

	return &guardFixture{
		pipeline:    pipeline,
		sessions:    sessions,
		users:       users,
		policyStore: policyStore,
	}
}

// login issues a session for a user and returns a request bearing it.
func (f *guardFixture) request(t *testing.T, userID, method, path string) *http.Request {
	t.Helper()

	handle, err := f.sessions.Issue(context.Background(), &session.Session{
		PrincipalID: userID,
		DomainID:    "pbx.example.com",
	})
	require.NoError(t, err)

	r := httptest.NewRequest(method, path, nil)
	r.Header.Set(auth.HeaderSessionToken, handle)
	r.RemoteAddr = "10.0.0.1:54321"
	return r
}

func anonymousRequest(method, path string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	r.RemoteAddr = "10.0.0.1:54321"
	return r
}

func TestPipeline_PublicRouteSkipsAuthentication(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	verdict := f.pipeline.Check(context.Background(),
		anonymousRequest("POST", "/api/v1/login"),
		&Requirements{Public: true, OperationClass: ratelimit.ClassLogin},
	)
	assert.True(t, verdict.Allowed)
	assert.Nil(t, verdict.Principal)
}

func TestPipeline_UnauthenticatedDenied(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	verdict := f.pipeline.Check(context.Background(),
		anonymousRequest("GET", "/api/v1/extensions"),
		&Requirements{Resource: "extensions", Action: "read"},
	)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusUnauthorized, verdict.StatusCode)
}

func TestPipeline_AllowsPermittedRequest(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	verdict := f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "GET", "/api/v1/extensions"),
		&Requirements{Resource: "extensions", Action: "read"},
	)
	assert.True(t, verdict.Allowed)
	require.NotNil(t, verdict.Principal)
	assert.Equal(t, "user-1", verdict.Principal.ID)
}

func TestPipeline_DeniesMissingPermission(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	// Auditors cannot manage extensions.
	verdict := f.pipeline.Check(context.Background(),
		f.request(t, "user-2", "DELETE", "/api/v1/extensions/1001"),
		&Requirements{Resource: "extensions", Action: "delete"},
	)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusForbidden, verdict.StatusCode)
	assert.Equal(t, StateDenied, verdict.State)
}

func TestPipeline_ExtraRoleRequirement(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	// Inherited roles satisfy the any-of requirement.
	verdict := f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "GET", "/api/v1/cdrs"),
		&Requirements{Resource: "cdrs", Action: "read", Roles: []string{"auditor"}},
	)
	assert.True(t, verdict.Allowed)

	verdict = f.pipeline.Check(context.Background(),
		f.request(t, "user-2", "GET", "/api/v1/cdrs"),
		&Requirements{Resource: "cdrs", Action: "read", Roles: []string{"domain_admin"}},
	)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusForbidden, verdict.StatusCode)
}

func TestPipeline_SuperadminBypassesRoleStage(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	// The bypass covers the permission check and the extra role
	// requirement, but nothing downstream of the role stage.
	verdict := f.pipeline.Check(context.Background(),
		f.request(t, "user-3", "DELETE", "/api/v1/sip-profiles/external"),
		&Requirements{Resource: "sip_profiles", Action: "delete", Roles: []string{"domain_admin"}},
	)
	assert.True(t, verdict.Allowed)

	reqs := &Requirements{
		Resource:       "backups",
		Action:         "create",
		OperationClass: ratelimit.ClassBackup,
	}
	verdict = f.pipeline.Check(context.Background(),
		f.request(t, "user-3", "POST", "/api/v1/backups"), reqs)
	assert.True(t, verdict.Allowed)

	verdict = f.pipeline.Check(context.Background(),
		f.request(t, "user-3", "POST", "/api/v1/backups"), reqs)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusTooManyRequests, verdict.StatusCode)
}

func TestPipeline_RateLimitDenies(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	reqs := &Requirements{
		Resource:       "backups",
		Action:         "create",
		OperationClass: ratelimit.ClassBackup,
	}

	verdict := f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "POST", "/api/v1/backups"), reqs)
	assert.True(t, verdict.Allowed)

	verdict = f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "POST", "/api/v1/backups"), reqs)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusTooManyRequests, verdict.StatusCode)
	assert.Greater(t, verdict.RetryAfter, time.Duration(0))
}

func TestPipeline_PolicyDenyBlocks(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)
	f.policyStore.Put(&policy.Policy{
		ID:        "deny-recordings",
		Name:      "deny-recordings",
		Effect:    policy.EffectDeny,
		Status:    policy.StatusActive,
		Resources: []string{"recordings"},
	})

	verdict := f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "GET", "/api/v1/recordings/rec-1"),
		&Requirements{Resource: "recordings", Action: "read"},
	)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusForbidden, verdict.StatusCode)
	require.NotNil(t, verdict.Decision)
	assert.Equal(t, policy.OutcomeDeny, verdict.Decision.Outcome)

	// Superadmin bypasses the role stage but not a policy DENY.
	verdict = f.pipeline.Check(context.Background(),
		f.request(t, "user-3", "GET", "/api/v1/recordings/rec-1"),
		&Requirements{Resource: "recordings", Action: "read"},
	)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusForbidden, verdict.StatusCode)
}

func TestPipeline_SensitiveRequiresExplicitAllow(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	reqs := &Requirements{
		Resource:    "recordings",
		Action:      "read",
		Sensitivity: "high",
		Sensitive:   true,
	}

	// No policies at all: INDETERMINATE fails a sensitive operation.
	verdict := f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "GET", "/api/v1/recordings/rec-1"), reqs)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusForbidden, verdict.StatusCode)

	f.policyStore.Put(&policy.Policy{
		ID:        "allow-recordings",
		Name:      "allow-recordings",
		Effect:    policy.EffectAllow,
		Status:    policy.StatusActive,
		Resources: []string{"recordings"},
	})

	verdict = f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "GET", "/api/v1/recordings/rec-1"), reqs)
	assert.True(t, verdict.Allowed)
}

func TestPipeline_RequiredPoliciesMustApply(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	reqs := &Requirements{
		Resource: "recordings",
		Action:   "read",
		Policies: []string{"allow-recordings"},
	}

	// No policies at all: the named policy cannot have allowed.
	verdict := f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "GET", "/api/v1/recordings/rec-1"), reqs)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusForbidden, verdict.StatusCode)

	// An ALLOW from a different policy does not satisfy the requirement.
	f.policyStore.Put(&policy.Policy{
		ID:        "allow-other",
		Name:      "allow-other",
		Effect:    policy.EffectAllow,
		Status:    policy.StatusActive,
		Resources: []string{"recordings"},
	})
	verdict = f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "GET", "/api/v1/recordings/rec-1"), reqs)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusForbidden, verdict.StatusCode)

	f.policyStore.Put(&policy.Policy{
		ID:        "allow-recordings",
		Name:      "allow-recordings",
		Effect:    policy.EffectAllow,
		Status:    policy.StatusActive,
		Priority:  100,
		Resources: []string{"recordings"},
	})
	verdict = f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "GET", "/api/v1/recordings/rec-1"), reqs)
	assert.True(t, verdict.Allowed)
}

func TestPipeline_SensitiveRejectsStaleCredential(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)
	f.policyStore.Put(&policy.Policy{
		ID:        "allow-recordings",
		Name:      "allow-recordings",
		Effect:    policy.EffectAllow,
		Status:    policy.StatusActive,
		Resources: []string{"recordings"},
	})

	handle, err := f.sessions.Issue(context.Background(), &session.Session{
		PrincipalID: "user-1",
		DomainID:    "pbx.example.com",
		IssuedAt:    time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/api/v1/recordings/rec-1", nil)
	r.Header.Set(auth.HeaderSessionToken, handle)
	r.RemoteAddr = "10.0.0.1:54321"

	reqs := &Requirements{
		Resource:    "recordings",
		Action:      "read",
		Sensitivity: "high",
		Sensitive:   true,
	}

	verdict := f.pipeline.Check(context.Background(), r, reqs)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusUnauthorized, verdict.StatusCode)

	// A fresh session is accepted.
	verdict = f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "GET", "/api/v1/recordings/rec-1"), reqs)
	assert.True(t, verdict.Allowed)
}

func TestPipeline_IndeterminatePassesNonSensitive(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	verdict := f.pipeline.Check(context.Background(),
		f.request(t, "user-1", "GET", "/api/v1/extensions"),
		&Requirements{Resource: "extensions", Action: "read"},
	)
	assert.True(t, verdict.Allowed)
	require.NotNil(t, verdict.Decision)
	assert.Equal(t, policy.OutcomeIndeterminate, verdict.Decision.Outcome)
}

func TestPipeline_CanceledContextDenies(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verdict := f.pipeline.Check(ctx,
		f.request(t, "user-1", "GET", "/api/v1/extensions"),
		&Requirements{Resource: "extensions", Action: "read"},
	)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, http.StatusServiceUnavailable, verdict.StatusCode)
}

func TestNewPipeline_RequiresAllStages(t *testing.T) {
	t.Parallel()

	f := newGuardFixture(t)

	_, err := NewPipeline(nil, f.pipeline.roles, f.pipeline.policies, f.pipeline.limiter)
	require.Error(t, err)

	_, err = NewPipeline(f.pipeline.resolver, nil, f.pipeline.policies, f.pipeline.limiter)
	require.Error(t, err)
}
