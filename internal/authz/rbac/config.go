package rbac

import (
	"fmt"
	"strings"
)

// DefaultSuperadminRole is the role treated as an unconditional bypass
// for role and permission checks.
const DefaultSuperadminRole = "superadmin"

// Well-known actions covered by the manage wildcard.
var manageActions = []string{"read", "create", "update", "delete"}

// Role defines a single role.
type Role struct {
	// Name is the unique role name.
	Name string `yaml:"name"`

	// Level is the ordinal rank; lower is more privileged.
	Level int `yaml:"level"`

	// Parent is the optional parent role name.
	Parent string `yaml:"parent,omitempty"`

	// Permissions are resource:action strings attached to the role.
	Permissions []string `yaml:"permissions,omitempty"`

	// DomainScope restricts the role to one PBX domain. Empty means global.
	DomainScope string `yaml:"domainScope,omitempty"`
}

// ResourceGrant maps one resource-action pair to the roles allowed to
// perform it. This is the second grant channel, kept independent of
// role permission sets.
type ResourceGrant struct {
	Resource string   `yaml:"resource"`
	Action   string   `yaml:"action"`
	Roles    []string `yaml:"roles"`
}

// Config holds the RBAC role table.
type Config struct {
	// Roles is the role table.
	Roles []Role `yaml:"roles"`

	// Hierarchy maps each role to ALL roles it transitively includes.
	// The table must be transitively closed; resolution never recurses.
	Hierarchy map[string][]string `yaml:"hierarchy,omitempty"`

	// ResourceGrants is the static resource-action to allowed-roles map.
	ResourceGrants []ResourceGrant `yaml:"resourceGrants,omitempty"`

	// SuperadminRole overrides the bypass role name.
	SuperadminRole string `yaml:"superadminRole,omitempty"`
}

// GetEffectiveSuperadminRole returns the configured bypass role or the
// default.
func (c *Config) GetEffectiveSuperadminRole() string {
	if c.SuperadminRole == "" {
		return DefaultSuperadminRole
	}
	return c.SuperadminRole
}

// Validate checks role uniqueness, reference integrity, and that the
// hierarchy table is acyclic and transitively closed.
func (c *Config) Validate() error {
	known := make(map[string]bool, len(c.Roles))
	for _, role := range c.Roles {
		if role.Name == "" {
			return fmt.Errorf("role name is required")
		}
		if known[role.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateRole, role.Name)
		}
		known[role.Name] = true

		for _, perm := range role.Permissions {
			if err := validatePermission(perm); err != nil {
				return fmt.Errorf("role %s: %w", role.Name, err)
			}
		}
	}

	for _, role := range c.Roles {
		if role.Parent != "" && !known[role.Parent] {
			return fmt.Errorf("%w: role %s parent %s", ErrUnknownRole, role.Name, role.Parent)
		}
	}

	for name, includes := range c.Hierarchy {
		if !known[name] {
			return fmt.Errorf("%w: hierarchy entry %s", ErrUnknownRole, name)
		}

		included := make(map[string]bool, len(includes))
		for _, inc := range includes {
			if inc == name {
				return fmt.Errorf("%w: %s includes itself", ErrHierarchyCycle, name)
			}
			if !known[inc] {
				return fmt.Errorf("%w: hierarchy entry %s includes %s", ErrUnknownRole, name, inc)
			}
			included[inc] = true
		}

		// Transitive closure check: anything included by an included role
		// must already be listed, and must not point back at this role.
		for _, inc := range includes {
			for _, indirect := range c.Hierarchy[inc] {
				if indirect == name {
					return fmt.Errorf("%w: %s <-> %s", ErrHierarchyCycle, name, inc)
				}
				if !included[indirect] {
					return fmt.Errorf("%w: %s must list %s (via %s)",
						ErrHierarchyNotClosed, name, indirect, inc)
				}
			}
		}
	}

	for _, grant := range c.ResourceGrants {
		if grant.Resource == "" || grant.Action == "" {
			return fmt.Errorf("resource grant requires resource and action")
		}
		for _, role := range grant.Roles {
			if !known[role] {
				return fmt.Errorf("%w: resource grant %s:%s role %s",
					ErrUnknownRole, grant.Resource, grant.Action, role)
			}
		}
	}

	return nil
}

// validatePermission checks a resource:action permission string.
func validatePermission(perm string) error {
	parts := strings.SplitN(perm, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid permission %q, expected resource:action", perm)
	}
	return nil
}
