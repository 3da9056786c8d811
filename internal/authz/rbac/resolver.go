package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// CheckRequest describes one resource-action check for a principal.
type CheckRequest struct {
	// Roles are the principal's assigned role names.
	Roles []string

	// Permissions are permission strings attached directly to the principal.
	Permissions []string

	// DomainID is the PBX domain of the request. Domain-scoped roles only
	// contribute when it matches.
	DomainID string

	// Resource is the resource being accessed.
	Resource string

	// Action is the action being performed.
	Action string
}

// Decision is the outcome of a check.
type Decision struct {
	// Allowed indicates the check passed.
	Allowed bool

	// Bypass indicates the superadmin role short-circuited the check.
	Bypass bool

	// Channel names the grant channel that allowed the request
	// ("role_permission" or "resource_grant").
	Channel string

	// Missing lists the requirements the principal lacks, for denied
	// checks. Server-side logging only.
	Missing []string
}

// Resolver expands roles and answers resource-action checks.
type Resolver interface {
	// EffectiveRoles returns the transitive role set for the assigned roles.
	EffectiveRoles(roles []string) []string

	// EffectivePermissions returns the union of permissions granted by the
	// effective roles.
	EffectivePermissions(roles []string) []string

	// Check evaluates one resource-action check.
	Check(ctx context.Context, req *CheckRequest) *Decision

	// Require evaluates a check and returns a ForbiddenError on denial.
	Require(ctx context.Context, req *CheckRequest) error

	// Reload replaces the role table and rebuilds the precomputed caches.
	Reload(config *Config) error
}

// resolver implements the Resolver interface.
type resolver struct {
	logger  observability.Logger
	metrics *Metrics

	mu         sync.RWMutex
	config     *Config
	superadmin string
	roles      map[string]*Role
	closure    map[string][]string          // role -> effective role set (incl. itself)
	rolePerms  map[string][]string          // role -> effective permission set
	grants     map[string]map[string][]string // resource -> action -> allowed roles
}

// ResolverOption is a functional option for the resolver.
type ResolverOption func(*resolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(logger observability.Logger) ResolverOption {
	return func(r *resolver) {
		r.logger = logger
	}
}

// WithResolverMetrics sets the metrics.
func WithResolverMetrics(metrics *Metrics) ResolverOption {
	return func(r *resolver) {
		r.metrics = metrics
	}
}

// NewResolver creates a resolver from the given role table.
func NewResolver(config *Config, opts ...ResolverOption) (Resolver, error) {
	r := &resolver{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.metrics == nil {
		r.metrics = GetSharedMetrics()
	}

	if config == nil {
		config = &Config{}
	}
	if err := r.Reload(config); err != nil {
		return nil, err
	}

	return r, nil
}

// Reload replaces the role table and rebuilds the precomputed caches.
func (r *resolver) Reload(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return err
	}

	roles := make(map[string]*Role, len(config.Roles))
	for i := range config.Roles {
		role := config.Roles[i]
		roles[role.Name] = &role
	}

	closure := make(map[string][]string, len(roles))
	rolePerms := make(map[string][]string, len(roles))
	for name := range roles {
		effective := []string{name}
		effective = append(effective, config.Hierarchy[name]...)
		sort.Strings(effective)
		closure[name] = effective

		permSet := make(map[string]bool)
		for _, included := range effective {
			if def, ok := roles[included]; ok {
				for _, perm := range def.Permissions {
					permSet[perm] = true
				}
			}
		}
		perms := make([]string, 0, len(permSet))
		for perm := range permSet {
			perms = append(perms, perm)
		}
		sort.Strings(perms)
		rolePerms[name] = perms
	}

	grants := make(map[string]map[string][]string)
	for _, grant := range config.ResourceGrants {
		actions, ok := grants[grant.Resource]
		if !ok {
			actions = make(map[string][]string)
			grants[grant.Resource] = actions
		}
		actions[grant.Action] = append(actions[grant.Action], grant.Roles...)
	}

	r.mu.Lock()
	r.config = config
	r.superadmin = config.GetEffectiveSuperadminRole()
	r.roles = roles
	r.closure = closure
	r.rolePerms = rolePerms
	r.grants = grants
	r.mu.Unlock()

	r.metrics.RecordReload(len(roles))
	r.logger.Info("role table loaded",
		observability.Int("roles", len(roles)),
		observability.Int("grants", len(config.ResourceGrants)),
	)

	return nil
}

// EffectiveRoles returns the transitive role set for the assigned roles.
func (r *resolver) EffectiveRoles(roles []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, role := range roles {
		expansion, ok := r.closure[role]
		if !ok {
			// Unknown roles pass through unexpanded.
			seen[role] = true
			continue
		}
		for _, eff := range expansion {
			seen[eff] = true
		}
	}

	out := make([]string, 0, len(seen))
	for role := range seen {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// EffectivePermissions returns the union of permissions granted by the
// effective roles.
func (r *resolver) EffectivePermissions(roles []string) []string {
	effective := r.EffectiveRoles(roles)

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, role := range effective {
		for _, perm := range r.rolePerms[role] {
			seen[perm] = true
		}
	}

	out := make([]string, 0, len(seen))
	for perm := range seen {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

// Check evaluates one resource-action check.
func (r *resolver) Check(ctx context.Context, req *CheckRequest) *Decision {
	start := time.Now()
	decision := r.check(req)

	outcome := "denied"
	if decision.Allowed {
		outcome = "allowed"
	}
	channel := decision.Channel
	if channel == "" {
		channel = "none"
	}
	r.metrics.RecordCheck(outcome, channel, time.Since(start))

	if !decision.Allowed {
		r.logger.Debug("rbac check denied",
			observability.String("resource", req.Resource),
			observability.String("action", req.Action),
			observability.Strings("missing", decision.Missing),
		)
	}

	return decision
}

// Require evaluates a check and returns a ForbiddenError on denial.
func (r *resolver) Require(ctx context.Context, req *CheckRequest) error {
	decision := r.Check(ctx, req)
	if decision.Allowed {
		return nil
	}
	return &ForbiddenError{Missing: decision.Missing}
}

func (r *resolver) check(req *CheckRequest) *Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	effective := r.domainScopedRoles(req)

	// Superadmin bypass: role and permission checks pass immediately.
	// Policy and rate-limit stages still run downstream.
	if effective[r.superadmin] {
		return &Decision{Allowed: true, Bypass: true, Channel: "superadmin"}
	}

	needed := req.Resource + ":" + req.Action

	// Channel A: permissions reachable through roles, plus permissions
	// attached directly to the principal.
	for role := range effective {
		for _, perm := range r.rolePerms[role] {
			if permissionMatches(perm, req.Resource, req.Action) {
				return &Decision{Allowed: true, Channel: "role_permission"}
			}
		}
	}
	for _, perm := range req.Permissions {
		if permissionMatches(perm, req.Resource, req.Action) {
			return &Decision{Allowed: true, Channel: "role_permission"}
		}
	}

	// Channel B: static resource-action grant map.
	if r.grantAllows(req.Resource, req.Action, effective) {
		return &Decision{Allowed: true, Channel: "resource_grant"}
	}

	return &Decision{Allowed: false, Missing: []string{needed}}
}

// domainScopedRoles expands the assigned roles and drops roles scoped to
// a different domain.
func (r *resolver) domainScopedRoles(req *CheckRequest) map[string]bool {
	effective := make(map[string]bool)
	for _, role := range req.Roles {
		expansion, ok := r.closure[role]
		if !ok {
			continue
		}
		for _, eff := range expansion {
			def, ok := r.roles[eff]
			if !ok {
				continue
			}
			if def.DomainScope != "" && req.DomainID != "" && def.DomainScope != req.DomainID {
				continue
			}
			effective[eff] = true
		}
	}
	return effective
}

// grantAllows consults the resource-action grant map, honoring the
// manage and * wildcards on the grant side.
func (r *resolver) grantAllows(resource, action string, effective map[string]bool) bool {
	for _, res := range []string{resource, "*"} {
		actions, ok := r.grants[res]
		if !ok {
			continue
		}
		for grantAction, roles := range actions {
			if !actionCovers(grantAction, action) {
				continue
			}
			for _, role := range roles {
				if effective[role] {
					return true
				}
			}
		}
	}
	return false
}

// permissionMatches checks a resource:action permission string against a
// requested resource and action, honoring the manage and * wildcards.
func permissionMatches(perm, resource, action string) bool {
	parts := strings.SplitN(perm, ":", 2)
	if len(parts) != 2 {
		return false
	}
	permResource, permAction := parts[0], parts[1]

	if permResource != "*" && permResource != resource {
		return false
	}
	return actionCovers(permAction, action)
}

// actionCovers checks whether a granted action satisfies a requested one.
// manage covers read/create/update/delete and itself.
func actionCovers(granted, requested string) bool {
	if granted == "*" || granted == requested {
		return true
	}
	if granted == "manage" {
		for _, covered := range manageActions {
			if requested == covered {
				return true
			}
		}
	}
	return false
}

// Ensure resolver implements Resolver.
var _ Resolver = (*resolver)(nil)
