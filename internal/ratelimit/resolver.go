package ratelimit

import (
	"fmt"
	"time"
)

// Operation classes carrying their own limit defaults.
const (
	ClassSync        = "sync"
	ClassBackup      = "backup"
	ClassDestructive = "destructive"
	ClassUpload      = "upload"
	ClassLogin       = "login"
)

// Scopes a resolved limit can come from, from most to least specific.
const (
	ScopeRoute  = "route"
	ScopeClass  = "class"
	ScopeRole   = "role"
	ScopeGlobal = "global"
)

// DefaultGlobalLimit is the fallback when no limit is configured.
var DefaultGlobalLimit = Limit{Requests: 300, Window: time.Minute}

// Config holds the rate limiting configuration.
type Config struct {
	// Enabled toggles rate limiting. Disabled means every request is
	// allowed.
	Enabled bool `yaml:"enabled"`

	// Algorithm selects the limiting algorithm, token_bucket by default.
	Algorithm Algorithm `yaml:"algorithm,omitempty"`

	// Global is the fallback limit applied when nothing more specific
	// matches.
	Global *Limit `yaml:"global,omitempty"`

	// Classes maps operation class names to limits.
	Classes map[string]Limit `yaml:"classes,omitempty"`

	// Roles maps role names to default limits.
	Roles map[string]Limit `yaml:"roles,omitempty"`

	// Routes maps route names to override limits.
	Routes map[string]Limit `yaml:"routes,omitempty"`
}

// GetEffectiveAlgorithm returns the configured algorithm, defaulting to
// token bucket.
func (c *Config) GetEffectiveAlgorithm() Algorithm {
	if c.Algorithm != "" {
		return c.Algorithm
	}
	return AlgorithmTokenBucket
}

// GetEffectiveGlobal returns the global limit, defaulting to
// DefaultGlobalLimit.
func (c *Config) GetEffectiveGlobal() Limit {
	if c.Global != nil {
		return *c.Global
	}
	return DefaultGlobalLimit
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Global != nil {
		if err := validateLimit("global", *c.Global); err != nil {
			return err
		}
	}
	for name, limit := range c.Classes {
		if err := validateLimit("class "+name, limit); err != nil {
			return err
		}
	}
	for name, limit := range c.Roles {
		if err := validateLimit("role "+name, limit); err != nil {
			return err
		}
	}
	for name, limit := range c.Routes {
		if err := validateLimit("route "+name, limit); err != nil {
			return err
		}
	}

	switch c.Algorithm {
	case "", AlgorithmTokenBucket, AlgorithmFixedWindow:
	default:
		return fmt.Errorf("unknown algorithm: %s", c.Algorithm)
	}
	return nil
}

func validateLimit(scope string, l Limit) error {
	if l.Requests <= 0 {
		return fmt.Errorf("%s limit: requests must be positive", scope)
	}
	if l.Window <= 0 {
		return fmt.Errorf("%s limit: window must be positive", scope)
	}
	return nil
}

// Resolution is a resolved limit together with the scope it came from.
// ScopeKey distinguishes limiter instances of the same scope.
type Resolution struct {
	Limit    Limit
	Scope    string
	ScopeKey string
}

// Resolve walks the resolution ladder for one request: route override,
// then operation class, then role default, then the global fallback.
// When the subject holds several roles with limits, the most permissive
// one wins.
func (c *Config) Resolve(route, operationClass string, roles []string) Resolution {
	if route != "" {
		if limit, ok := c.Routes[route]; ok {
			return Resolution{Limit: limit, Scope: ScopeRoute, ScopeKey: route}
		}
	}

	if operationClass != "" {
		if limit, ok := c.Classes[operationClass]; ok {
			return Resolution{Limit: limit, Scope: ScopeClass, ScopeKey: operationClass}
		}
	}

	var (
		best     Limit
		bestRole string
		found    bool
	)
	for _, role := range roles {
		limit, ok := c.Roles[role]
		if !ok {
			continue
		}
		if !found || moreRequestsPerSecond(limit, best) {
			best = limit
			bestRole = role
			found = true
		}
	}
	if found {
		return Resolution{Limit: best, Scope: ScopeRole, ScopeKey: bestRole}
	}

	return Resolution{Limit: c.GetEffectiveGlobal(), Scope: ScopeGlobal, ScopeKey: "global"}
}

// moreRequestsPerSecond reports whether a allows a higher sustained
// rate than b.
func moreRequestsPerSecond(a, b Limit) bool {
	return float64(a.Requests)/a.Window.Seconds() > float64(b.Requests)/b.Window.Seconds()
}
