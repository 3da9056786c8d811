package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avapbx/internal/guard"
)

// registerRoutes wires the admin surface. Every route carries its guard
// requirements; only health, metrics, and login are public, and login
// is still rate limited per client IP.
func (s *Server) registerRoutes() {
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", s.health.LivenessHandler())
	s.engine.GET("/readyz", s.health.ReadinessHandler())

	if s.registry != nil {
		path := s.metricsPath
		if path == "" {
			path = "/metrics"
		}
		s.engine.GET(path, gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/api/v1")

	api.POST("/login", s.guarded(&guard.Requirements{
		Public:         true,
		Route:          "login",
		OperationClass: "login",
	}), s.handleLogin)

	api.POST("/logout", s.guarded(&guard.Requirements{
		Resource: "sessions",
		Action:   "delete",
		Route:    "logout",
	}), s.handleLogout)

	extensions := api.Group("/extensions")
	{
		extensions.GET("", s.guarded(&guard.Requirements{
			Resource: "extensions", Action: "read",
		}), s.listExtensions)
		extensions.POST("", s.guarded(&guard.Requirements{
			Resource: "extensions", Action: "create",
		}), s.createExtension)
		extensions.GET("/:id", s.guarded(&guard.Requirements{
			Resource: "extensions", Action: "read",
		}), s.getExtension)
		extensions.PUT("/:id", s.guarded(&guard.Requirements{
			Resource: "extensions", Action: "update",
		}), s.updateExtension)
		extensions.DELETE("/:id", s.guarded(&guard.Requirements{
			Resource: "extensions", Action: "delete",
			Sensitivity:    "medium",
			OperationClass: "destructive",
		}), s.deleteExtension)
	}

	profiles := api.Group("/sip-profiles")
	{
		profiles.GET("", s.guarded(&guard.Requirements{
			Resource: "sip_profiles", Action: "read",
		}), s.listSIPProfiles)
		profiles.GET("/:id", s.guarded(&guard.Requirements{
			Resource: "sip_profiles", Action: "read",
		}), s.getSIPProfile)
		profiles.PUT("/:id", s.guarded(&guard.Requirements{
			Resource: "sip_profiles", Action: "update",
			Roles:       []string{"superadmin", "domain_admin"},
			Sensitivity: "high",
		}), s.updateSIPProfile)
		profiles.DELETE("/:id", s.guarded(&guard.Requirements{
			Resource: "sip_profiles", Action: "delete",
			Roles:          []string{"superadmin"},
			Sensitivity:    "high",
			OperationClass: "destructive",
		}), s.deleteSIPProfile)
	}

	cdrs := api.Group("/cdrs")
	{
		cdrs.GET("", s.guarded(&guard.Requirements{
			Resource: "cdrs", Action: "read",
			Sensitivity: "medium",
		}), s.listCallRecords)
	}

	recordings := api.Group("/recordings")
	{
		recordings.GET("", s.guarded(&guard.Requirements{
			Resource: "recordings", Action: "read",
			Sensitivity: "high",
		}), s.listRecordings)
		recordings.GET("/:id", s.guarded(&guard.Requirements{
			Resource: "recordings", Action: "read",
			Sensitivity: "high",
		}), s.getRecording)
		recordings.DELETE("/:id", s.guarded(&guard.Requirements{
			Resource: "recordings", Action: "delete",
			Sensitivity:    "high",
			Sensitive:      true,
			OperationClass: "destructive",
		}), s.deleteRecording)
	}

	backups := api.Group("/backups")
	{
		backups.GET("", s.guarded(&guard.Requirements{
			Resource: "backups", Action: "read",
		}), s.listBackups)
		backups.POST("", s.guarded(&guard.Requirements{
			Resource: "backups", Action: "create",
			Route:          "backups_create",
			OperationClass: "backup",
		}), s.createBackup)
	}
}

func (s *Server) guarded(reqs *guard.Requirements) gin.HandlerFunc {
	return guard.Middleware(s.pipeline, s.recorder, reqs)
}
