package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/avapbx/internal/audit"
	"github.com/vyrodovalexey/avapbx/internal/auth/session"
	"github.com/vyrodovalexey/avapbx/internal/config"
	"github.com/vyrodovalexey/avapbx/internal/guard"
	"github.com/vyrodovalexey/avapbx/internal/health"
	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Deps bundles the components the server routes depend on.
type Deps struct {
	// Pipeline is the guard pipeline enforced on every admin route.
	Pipeline *guard.Pipeline

	// Recorder receives audit events. Nil means no auditing.
	Recorder audit.Recorder

	// Sessions issues and revokes administrator sessions for the login
	// and logout routes.
	Sessions session.Manager

	// Directory verifies login credentials.
	Directory *Directory

	// Inventory backs the admin CRUD handlers. A fresh empty inventory
	// is used when nil.
	Inventory *Inventory

	// Health serves the liveness and readiness probes. A handler with
	// no checks is used when nil.
	Health *health.Handler
}

// Server is the HTTP administration server.
type Server struct {
	config      *config.ServerConfig
	engine      *gin.Engine
	httpServer  *http.Server
	pipeline    *guard.Pipeline
	recorder    audit.Recorder
	sessions    session.Manager
	directory   *Directory
	inventory   *Inventory
	health      *health.Handler
	logger      observability.Logger
	registry    *prometheus.Registry
	metricsPath string

	mu      sync.Mutex
	running bool
}

// Option is a functional option for the server.
type Option func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsEndpoint exposes the given registry on path.
func WithMetricsEndpoint(registry *prometheus.Registry, path string) Option {
	return func(s *Server) {
		s.registry = registry
		s.metricsPath = path
	}
}

// New creates the administration server and registers its routes.
func New(cfg *config.ServerConfig, deps Deps, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("guard pipeline is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("credential directory is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = audit.NewNoopRecorder()
	}
	if deps.Inventory == nil {
		deps.Inventory = NewInventory()
	}
	if deps.Health == nil {
		deps.Health = health.NewHandler()
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		config:    cfg,
		engine:    gin.New(),
		pipeline:  deps.Pipeline,
		recorder:  deps.Recorder,
		sessions:  deps.Sessions,
		directory: deps.Directory,
		inventory: deps.Inventory,
		health:    deps.Health,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()

	return s, nil
}

// Engine returns the underlying gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start runs the server until it is stopped or fails. It blocks.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	s.httpServer = &http.Server{
		Addr:         s.config.GetEffectiveListenAddress(),
		Handler:      s.engine,
		ReadTimeout:  s.config.GetEffectiveReadTimeout(),
		WriteTimeout: s.config.GetEffectiveWriteTimeout(),
		IdleTimeout:  s.config.GetEffectiveIdleTimeout(),
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting admin server",
		observability.String("address", s.httpServer.Addr),
		observability.Bool("tls", s.config.TLS != nil),
	)

	var err error
	if s.config.TLS != nil {
		err = s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("stopping admin server")

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}
