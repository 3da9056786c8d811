package secrets

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// FileProvider reads secrets from a directory tree: one directory per
// secret, one file per key. This matches the layout of mounted
// Kubernetes secret volumes.
type FileProvider struct {
	basePath string
	logger   observability.Logger
	metrics  *Metrics
}

// NewFileProvider creates a file-backed secrets provider rooted at
// basePath.
func NewFileProvider(basePath string, logger observability.Logger, metrics *Metrics) (*FileProvider, error) {
	if basePath == "" {
		return nil, fmt.Errorf("%w: base path is required", ErrProviderNotConfigured)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base path %s: %w", basePath, err)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = GetSharedMetrics()
	}
	return &FileProvider{basePath: abs, logger: logger, metrics: metrics}, nil
}

// Type returns the provider type.
func (p *FileProvider) Type() ProviderType { return ProviderTypeFile }

// GetSecret reads the directory named by path, one key per regular
// file.
func (p *FileProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	start := time.Now()
	secret, err := p.getSecret(path)
	observe(p.metrics, p.Type(), "get", start, err)
	return secret, err
}

func (p *FileProvider) getSecret(path string) (*Secret, error) {
	if path == "" || strings.Contains(path, "..") {
		return nil, ErrInvalidPath
	}

	dir := filepath.Join(p.basePath, filepath.Clean(path))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return nil, fmt.Errorf("failed to read secret directory %s: %w", path, err)
	}

	data := make(map[string][]byte)
	for _, entry := range entries {
		// Skip subdirectories and the dotfiles Kubernetes volume mounts
		// create.
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		value, err := os.ReadFile(filepath.Join(dir, entry.Name())) //nolint:gosec // path is rooted at basePath
		if err != nil {
			return nil, fmt.Errorf("failed to read secret key %s/%s: %w", path, entry.Name(), err)
		}
		data[entry.Name()] = bytes.TrimRight(value, "\n")
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s has no keys", ErrSecretNotFound, path)
	}

	return &Secret{Name: path, Data: data}, nil
}

// HealthCheck verifies the base directory exists.
func (p *FileProvider) HealthCheck(context.Context) error {
	info, err := os.Stat(p.basePath)
	healthy := err == nil && info.IsDir()
	p.metrics.RecordHealth(string(p.Type()), healthy)
	if !healthy {
		return fmt.Errorf("%w: base path %s not accessible", ErrProviderUnavailable, p.basePath)
	}
	return nil
}

// Close does nothing.
func (p *FileProvider) Close() error { return nil }

// Ensure FileProvider implements Provider.
var _ Provider = (*FileProvider)(nil)
