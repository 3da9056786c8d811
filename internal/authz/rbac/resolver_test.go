package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) Resolver {
	t.Helper()

	r, err := NewResolver(validConfig())
	require.NoError(t, err)
	return r
}

func TestNewResolver_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Hierarchy["operator"] = []string{"operator"}

	_, err := NewResolver(cfg)
	assert.ErrorIs(t, err, ErrHierarchyCycle)
}

func TestResolver_EffectiveRoles(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)

	assert.Equal(t,
		[]string{"auditor", "domain_admin", "operator"},
		r.EffectiveRoles([]string{"domain_admin"}))

	assert.Equal(t,
		[]string{"auditor", "operator"},
		r.EffectiveRoles([]string{"operator"}))

	// Unknown roles pass through unexpanded.
	assert.Equal(t, []string{"guest"}, r.EffectiveRoles([]string{"guest"}))
}

func TestResolver_EffectivePermissions(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)

	assert.Equal(t,
		[]string{"cdrs:read", "extensions:manage", "extensions:read"},
		r.EffectivePermissions([]string{"domain_admin"}))

	assert.Equal(t,
		[]string{"cdrs:read", "extensions:read"},
		r.EffectivePermissions([]string{"operator"}))
}

func TestResolver_Check(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)

	tests := []struct {
		name        string
		req         *CheckRequest
		wantAllowed bool
		wantChannel string
	}{
		{
			name:        "direct permission",
			req:         &CheckRequest{Roles: []string{"operator"}, Resource: "extensions", Action: "read"},
			wantAllowed: true,
			wantChannel: "role_permission",
		},
		{
			name:        "inherited permission",
			req:         &CheckRequest{Roles: []string{"domain_admin"}, Resource: "cdrs", Action: "read"},
			wantAllowed: true,
			wantChannel: "role_permission",
		},
		{
			name:        "manage covers delete",
			req:         &CheckRequest{Roles: []string{"domain_admin"}, Resource: "extensions", Action: "delete"},
			wantAllowed: true,
			wantChannel: "role_permission",
		},
		{
			name:        "manage does not cover unrelated action",
			req:         &CheckRequest{Roles: []string{"domain_admin"}, Resource: "extensions", Action: "export"},
			wantAllowed: false,
		},
		{
			name:        "resource grant channel",
			req:         &CheckRequest{Roles: []string{"domain_admin"}, Resource: "backups", Action: "create"},
			wantAllowed: true,
			wantChannel: "resource_grant",
		},
		{
			name:        "grant not held by lesser role",
			req:         &CheckRequest{Roles: []string{"operator"}, Resource: "backups", Action: "create"},
			wantAllowed: false,
		},
		{
			name:        "superadmin bypass",
			req:         &CheckRequest{Roles: []string{"superadmin"}, Resource: "anything", Action: "destroy"},
			wantAllowed: true,
			wantChannel: "superadmin",
		},
		{
			name:        "principal-attached permission",
			req:         &CheckRequest{Roles: nil, Permissions: []string{"recordings:read"}, Resource: "recordings", Action: "read"},
			wantAllowed: true,
			wantChannel: "role_permission",
		},
		{
			name:        "denied without roles",
			req:         &CheckRequest{Resource: "extensions", Action: "read"},
			wantAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decision := r.Check(context.Background(), tt.req)
			assert.Equal(t, tt.wantAllowed, decision.Allowed)
			if tt.wantChannel != "" {
				assert.Equal(t, tt.wantChannel, decision.Channel)
			}
			if !tt.wantAllowed {
				assert.NotEmpty(t, decision.Missing)
			}
		})
	}
}

func TestResolver_Check_WildcardResource(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Roles = append(cfg.Roles, Role{
		Name:        "platform_admin",
		Level:       5,
		Permissions: []string{"*:manage"},
	})

	r, err := NewResolver(cfg)
	require.NoError(t, err)

	decision := r.Check(context.Background(), &CheckRequest{
		Roles:    []string{"platform_admin"},
		Resource: "sip_profiles",
		Action:   "update",
	})
	assert.True(t, decision.Allowed)
}

func TestResolver_Check_DomainScope(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Roles = append(cfg.Roles, Role{
		Name:        "tenant_admin",
		Level:       10,
		Permissions: []string{"extensions:manage"},
		DomainScope: "pbx-a.example.com",
	})

	r, err := NewResolver(cfg)
	require.NoError(t, err)

	// Matching domain: allowed.
	decision := r.Check(context.Background(), &CheckRequest{
		Roles:    []string{"tenant_admin"},
		DomainID: "pbx-a.example.com",
		Resource: "extensions",
		Action:   "update",
	})
	assert.True(t, decision.Allowed)

	// Different domain: the scoped role does not contribute.
	decision = r.Check(context.Background(), &CheckRequest{
		Roles:    []string{"tenant_admin"},
		DomainID: "pbx-b.example.com",
		Resource: "extensions",
		Action:   "update",
	})
	assert.False(t, decision.Allowed)
}

func TestResolver_Require(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)

	err := r.Require(context.Background(), &CheckRequest{
		Roles:    []string{"operator"},
		Resource: "extensions",
		Action:   "read",
	})
	assert.NoError(t, err)

	err = r.Require(context.Background(), &CheckRequest{
		Roles:    []string{"auditor"},
		Resource: "extensions",
		Action:   "delete",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)

	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Contains(t, forbidden.Missing, "extensions:delete")
}

func TestResolver_Reload(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)

	denied := r.Check(context.Background(), &CheckRequest{
		Roles:    []string{"auditor"},
		Resource: "recordings",
		Action:   "read",
	})
	assert.False(t, denied.Allowed)

	cfg := validConfig()
	cfg.Roles[3].Permissions = append(cfg.Roles[3].Permissions, "recordings:read")
	require.NoError(t, r.Reload(cfg))

	allowed := r.Check(context.Background(), &CheckRequest{
		Roles:    []string{"auditor"},
		Resource: "recordings",
		Action:   "read",
	})
	assert.True(t, allowed.Allowed)

	// Invalid reload leaves the old table in place.
	bad := validConfig()
	bad.Hierarchy["operator"] = []string{"operator"}
	assert.ErrorIs(t, r.Reload(bad), ErrHierarchyCycle)

	still := r.Check(context.Background(), &CheckRequest{
		Roles:    []string{"auditor"},
		Resource: "recordings",
		Action:   "read",
	})
	assert.True(t, still.Allowed)
}
