package audit

import (
	"errors"
	"fmt"
	"strings"
)

// Output formats.
const (
	formatJSON = "json"
	formatText = "text"
)

// DefaultQueueSize is the default bounded queue capacity.
const DefaultQueueSize = 1024

// Config represents the audit recording configuration.
type Config struct {
	// Enabled enables audit recording.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output specifies the output destination (stdout, stderr, file path).
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// Format specifies the output format (json, text).
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// QueueSize is the bounded queue capacity. When the queue is full
	// the oldest pending event is dropped.
	QueueSize int `yaml:"queueSize,omitempty" json:"queueSize,omitempty"`

	// RedactFields specifies metadata fields to redact.
	RedactFields []string `yaml:"redactFields,omitempty" json:"redactFields,omitempty"`

	// SkipPaths specifies request paths to skip auditing.
	SkipPaths []string `yaml:"skipPaths,omitempty" json:"skipPaths,omitempty"`
}

// DefaultConfig returns a default audit configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Output:    "stdout",
		Format:    formatJSON,
		QueueSize: DefaultQueueSize,
		RedactFields: []string{
			"password",
			"secret",
			"token",
			"authorization",
			"cookie",
		},
	}
}

// Validate validates the audit configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	if c.Format != "" && c.Format != formatJSON && c.Format != formatText {
		return fmt.Errorf("invalid audit format: %s (must be 'json' or 'text')", c.Format)
	}

	if c.QueueSize < 0 {
		return errors.New("queueSize must be non-negative")
	}

	return nil
}

// GetEffectiveFormat returns the effective output format.
func (c *Config) GetEffectiveFormat() string {
	if c.Format != "" {
		return c.Format
	}
	return formatJSON
}

// GetEffectiveOutput returns the effective output destination.
func (c *Config) GetEffectiveOutput() string {
	if c.Output != "" {
		return c.Output
	}
	return "stdout"
}

// GetEffectiveQueueSize returns the effective queue capacity.
func (c *Config) GetEffectiveQueueSize() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	return DefaultQueueSize
}

// ShouldSkipPath returns true if the path should be skipped from
// auditing.
func (c *Config) ShouldSkipPath(path string) bool {
	for _, skipPath := range c.SkipPaths {
		if matchPath(skipPath, path) {
			return true
		}
	}
	return false
}

// matchPath checks if a path matches a pattern. A trailing * matches
// any suffix.
func matchPath(pattern, path string) bool {
	if pattern == path {
		return true
	}
	if pattern != "" && pattern[len(pattern)-1] == '*' {
		return strings.HasPrefix(path, pattern[:len(pattern)-1])
	}
	return false
}
