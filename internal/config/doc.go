// Package config loads and validates the PBX administration backend
// configuration from YAML, with ${VAR} environment substitution and
// hot reload through a debounced file watcher. The root Config
// composes the per-package configuration types so each component
// validates its own section.
package config
