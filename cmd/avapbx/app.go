package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/avapbx/internal/audit"
	"github.com/vyrodovalexey/avapbx/internal/auth"
	"github.com/vyrodovalexey/avapbx/internal/auth/session"
	"github.com/vyrodovalexey/avapbx/internal/auth/token"
	"github.com/vyrodovalexey/avapbx/internal/authz/policy"
	"github.com/vyrodovalexey/avapbx/internal/authz/rbac"
	"github.com/vyrodovalexey/avapbx/internal/config"
	"github.com/vyrodovalexey/avapbx/internal/guard"
	"github.com/vyrodovalexey/avapbx/internal/health"
	"github.com/vyrodovalexey/avapbx/internal/observability"
	"github.com/vyrodovalexey/avapbx/internal/ratelimit"
	ratelimitstore "github.com/vyrodovalexey/avapbx/internal/ratelimit/store"
	"github.com/vyrodovalexey/avapbx/internal/secrets"
	"github.com/vyrodovalexey/avapbx/internal/server"
)

// Bootstrap administrator credentials, read from the environment so
// they never land in a config file.
const (
	envAdminUsername = "AVAPBX_ADMIN_USERNAME"
	envAdminPassword = "AVAPBX_ADMIN_PASSWORD"
)

// tokenSecretName is the secret holding the HMAC key for bearer token
// verification when it is not set inline in the configuration.
const (
	tokenSecretName = "auth-token"
	tokenSecretKey  = "hmacSecret"
)

// application holds the assembled components and owns their shutdown.
type application struct {
	cfg    *config.Config
	logger observability.Logger

	tracer      *observability.Tracer
	secretsProv secrets.Provider
	recorder    audit.Recorder
	gate        *ratelimit.Gate
	roles       rbac.Resolver
	policyStore *policy.MemoryStore
	policyIDs   []string
	srv         *server.Server
}

// newApplication builds every component from the configuration.
func newApplication(cfg *config.Config, bootLogger observability.Logger) (*application, error) {
	logger, err := observability.NewLogger(cfg.Observability.Logging.ToLogConfig())
	if err != nil {
		logger = bootLogger
	}

	app := &application{cfg: cfg, logger: logger}

	if cfg.Observability.Tracing.Enabled {
		tracer, err := observability.NewTracer(cfg.Observability.Tracing.ToTracerConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		app.tracer = tracer
	}

	secretsProv, err := secrets.NewProvider(&cfg.Secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider: %w", err)
	}
	app.secretsProv = secretsProv

	users := auth.NewMemoryUserStore()
	directory := server.NewDirectory(users)
	if err := seedBootstrapAdmin(users, directory, logger); err != nil {
		return nil, err
	}

	sessions, err := buildSessionManager(cfg.Auth.Session, logger)
	if err != nil {
		return nil, err
	}

	validator, err := buildTokenValidator(cfg, secretsProv, logger)
	if err != nil {
		return nil, err
	}

	resolver, err := auth.NewResolver(sessions, validator, users,
		auth.WithResolverLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build identity resolver: %w", err)
	}

	roles, err := rbac.NewResolver(&cfg.RBAC, rbac.WithResolverLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build role resolver: %w", err)
	}
	app.roles = roles

	app.policyStore = policy.NewMemoryStore()
	app.policyIDs, err = loadPolicies(app.policyStore, &cfg.Policy, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}

	var policyBackend policy.Store = app.policyStore
	if cfg.Policy.Breaker != nil {
		opts := []policy.BreakerOption{policy.WithBreakerLogger(logger)}
		if cfg.Policy.Breaker.Threshold > 0 {
			opts = append(opts, policy.WithBreakerThreshold(cfg.Policy.Breaker.Threshold))
		}
		if cfg.Policy.Breaker.Timeout > 0 {
			opts = append(opts, policy.WithBreakerTimeout(cfg.Policy.Breaker.Timeout.Duration()))
		}
		policyBackend = policy.NewBreakerStore(app.policyStore, opts...)
	}

	engine, err := policy.NewEngine(policyBackend, policy.WithEngineLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build policy engine: %w", err)
	}

	gate, err := buildGate(&cfg.RateLimit, logger)
	if err != nil {
		return nil, err
	}
	app.gate = gate

	recorder, err := audit.NewRecorder(&cfg.Audit, audit.WithRecorderLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build audit recorder: %w", err)
	}
	app.recorder = recorder

	pipeline, err := guard.NewPipeline(resolver, roles, engine, gate,
		guard.WithPipelineLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build guard pipeline: %w", err)
	}

	serverOpts := []server.Option{server.WithServerLogger(logger)}
	if metricsCfg := cfg.Observability.Metrics; metricsCfg != nil && metricsCfg.Enabled {
		serverOpts = append(serverOpts,
			server.WithMetricsEndpoint(buildMetricsRegistry(), metricsCfg.GetEffectivePath()))
	}

	healthHandler := health.NewHandler(health.WithHandlerLogger(logger))
	if cfg.Secrets.Enabled {
		healthHandler.AddCheck("secrets", secretsProv.HealthCheck)
	}

	srv, err := server.New(&cfg.Server, server.Deps{
		Pipeline:  pipeline,
		Recorder:  recorder,
		Sessions:  sessions,
		Directory: directory,
		Inventory: server.NewInventory(),
		Health:    healthHandler,
	}, serverOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build server: %w", err)
	}
	app.srv = srv

	return app, nil
}

// seedBootstrapAdmin registers the bootstrap superadmin account when
// the environment provides credentials.
func seedBootstrapAdmin(users *auth.MemoryUserStore, directory *server.Directory, logger observability.Logger) error {
	username := os.Getenv(envAdminUsername)
	password := os.Getenv(envAdminPassword)

	if username == "" || password == "" {
		logger.Warn("no bootstrap admin configured, password login disabled",
			observability.String("username_env", envAdminUsername),
			observability.String("password_env", envAdminPassword),
		)
		return nil
	}

	record := &auth.UserRecord{
		ID:          "bootstrap-admin",
		Username:    username,
		Active:      true,
		Roles:       []string{rbac.DefaultSuperadminRole},
		PrimaryRole: rbac.DefaultSuperadminRole,
	}
	users.Put(record)

	if err := directory.SetPassword(username, record.ID, password); err != nil {
		return fmt.Errorf("failed to register bootstrap admin: %w", err)
	}

	logger.Info("bootstrap admin registered",
		observability.String("username", username),
	)
	return nil
}

// buildSessionManager creates the session manager over the configured
// store. A nil section means in-memory with defaults.
func buildSessionManager(cfg *config.SessionConfig, logger observability.Logger) (session.Manager, error) {
	var store session.Store = session.NewMemoryStore()
	opts := []session.ManagerOption{session.WithManagerLogger(logger)}

	if cfg != nil {
		if cfg.Redis != nil {
			redisStore, err := session.NewRedisStore(cfg.Redis, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to connect session store: %w", err)
			}
			store = redisStore
		}
		if cfg.Lifetime > 0 {
			opts = append(opts, session.WithLifetime(cfg.Lifetime.Duration()))
		}
		if cfg.Hasher != "" {
			hasher, err := session.NewHasher(cfg.Hasher)
			if err != nil {
				return nil, err
			}
			opts = append(opts, session.WithHasher(hasher))
		}
	}

	manager, err := session.NewManager(store, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build session manager: %w", err)
	}
	return manager, nil
}

// buildTokenValidator creates the bearer token validator, fetching the
// HMAC secret from the secrets provider when it is not set inline.
func buildTokenValidator(cfg *config.Config, provider secrets.Provider, logger observability.Logger) (token.Validator, error) {
	tokenCfg := cfg.Auth.Token
	if tokenCfg == nil {
		return nil, nil
	}

	if tokenCfg.HMACSecret == "" && cfg.Secrets.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		secret, err := provider.GetSecret(ctx, tokenSecretName)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch token secret: %w", err)
		}
		value, ok := secret.GetString(tokenSecretKey)
		if !ok {
			return nil, fmt.Errorf("secret %s has no %s key", tokenSecretName, tokenSecretKey)
		}
		tokenCfg.HMACSecret = value
	}

	validator, err := token.NewValidator(tokenCfg, token.WithValidatorLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build token validator: %w", err)
	}
	return validator, nil
}

// buildGate creates the rate limit gate over the configured counter
// store.
func buildGate(cfg *config.RateLimitConfig, logger observability.Logger) (*ratelimit.Gate, error) {
	opts := []ratelimit.GateOption{ratelimit.WithGateLogger(logger)}

	if cfg.Redis != nil {
		store, err := ratelimitstore.NewRedisStore(cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect rate limit store: %w", err)
		}
		opts = append(opts, ratelimit.WithGateStore(store))
	}

	gate, err := ratelimit.NewGate(&cfg.Config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build rate limit gate: %w", err)
	}
	return gate, nil
}

// buildMetricsRegistry aggregates the shared per-package metrics into
// one scrape registry.
func buildMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	auth.GetSharedMetrics().MustRegister(registry)
	rbac.GetSharedMetrics().MustRegister(registry)
	policy.GetSharedMetrics().MustRegister(registry)
	ratelimit.GetSharedMetrics().MustRegister(registry)
	audit.GetSharedMetrics().MustRegister(registry)
	guard.GetSharedMetrics().MustRegister(registry)
	secrets.GetSharedMetrics().MustRegister(registry)
	return registry
}

// close releases the application components in reverse build order.
func (app *application) close() {
	if app.recorder != nil {
		if err := app.recorder.Close(); err != nil {
			app.logger.Error("failed to close audit recorder", observability.Error(err))
		}
	}
	if app.gate != nil {
		if err := app.gate.Close(); err != nil {
			app.logger.Error("failed to close rate limit gate", observability.Error(err))
		}
	}
	if app.secretsProv != nil {
		if err := app.secretsProv.Close(); err != nil {
			app.logger.Error("failed to close secrets provider", observability.Error(err))
		}
	}
	if app.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.tracer.Shutdown(ctx); err != nil {
			app.logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}
	_ = app.logger.Sync()
}
