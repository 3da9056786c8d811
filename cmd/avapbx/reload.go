package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/avapbx/internal/authz/policy"
	"github.com/vyrodovalexey/avapbx/internal/config"
	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// run starts the config watcher and the HTTP server and blocks until a
// termination signal arrives or the server fails.
func (app *application) run(configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := config.NewWatcher(configPath, app.applyReload,
		config.WithWatcherLogger(app.logger))
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = watcher.Stop() }()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.srv.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		app.logger.Info("shutdown signal received",
			observability.String("signal", sig.String()),
		)
	case err := <-serverErr:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		app.cfg.Server.GetEffectiveShutdownTimeout())
	defer shutdownCancel()

	if err := app.srv.Stop(shutdownCtx); err != nil {
		return err
	}

	// Drain the server goroutine.
	if err := <-serverErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// applyReload applies a validated configuration change. Policies and
// the role table take effect immediately; server, store, and rate
// limit changes need a restart.
func (app *application) applyReload(cfg *config.Config) {
	ids, err := loadPolicies(app.policyStore, &cfg.Policy, app.policyIDs)
	if err != nil {
		app.logger.Error("policy reload failed, keeping previous set",
			observability.Error(err),
		)
	} else {
		app.policyIDs = ids
		app.logger.Info("policies reloaded",
			observability.Int("count", len(ids)),
		)
	}

	if err := app.roles.Reload(&cfg.RBAC); err != nil {
		app.logger.Error("role table reload failed, keeping previous table",
			observability.Error(err),
		)
	} else {
		app.logger.Info("role table reloaded")
	}
}

// loadPolicies replaces the store contents with the configured policy
// set. Policies from the previous load that disappeared are removed.
func loadPolicies(store *policy.MemoryStore, cfg *config.PolicyConfig, previousIDs []string) ([]string, error) {
	policies, err := cfg.LoadPolicies()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(policies))
	current := make(map[string]bool, len(policies))
	for _, p := range policies {
		store.Put(p)
		ids = append(ids, p.ID)
		current[p.ID] = true
	}

	for _, id := range previousIDs {
		if !current[id] {
			_ = store.Remove(id)
		}
	}

	return ids, nil
}
