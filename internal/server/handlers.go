package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avapbx/internal/audit"
	"github.com/vyrodovalexey/avapbx/internal/auth"
	"github.com/vyrodovalexey/avapbx/internal/auth/session"
	"github.com/vyrodovalexey/avapbx/internal/guard"
	"github.com/vyrodovalexey/avapbx/internal/observability"
	"github.com/vyrodovalexey/avapbx/internal/ratelimit"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin verifies credentials and issues a session. Failures are
// audited with the login name but answered with a generic 401.
func (s *Server) handleLogin(c *gin.Context) {
	ctx := c.Request.Context()
	clientIP := ratelimit.GetClientIP(c.Request)

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "username and password are required",
		})
		return
	}

	record, err := s.directory.Verify(ctx, req.Username, req.Password)
	if err != nil {
		s.logger.Info("login rejected",
			observability.String("username", req.Username),
			observability.String("client_ip", clientIP),
		)
		s.recorder.Record(ctx, audit.AuthenticationEvent(
			audit.ActionLogin, audit.OutcomeFailure,
			&audit.Subject{Username: req.Username, IPAddress: clientIP},
		))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "invalid credentials",
		})
		return
	}

	sess := &session.Session{
		PrincipalID: record.ID,
		Username:    record.Username,
		DomainID:    record.DomainID,
		ClientIP:    clientIP,
	}
	handle, err := s.sessions.Issue(ctx, sess)
	if err != nil {
		s.logger.Error("failed to issue session", observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal",
			"message": "could not open session",
		})
		return
	}

	s.recorder.Record(ctx, audit.AuthenticationEvent(
		audit.ActionLogin, audit.OutcomeSuccess,
		&audit.Subject{
			ID:        record.ID,
			Username:  record.Username,
			Domain:    record.DomainID,
			Roles:     record.Roles,
			IPAddress: clientIP,
		},
	))

	c.JSON(http.StatusOK, loginResponse{Token: handle, ExpiresAt: sess.ExpiresAt})
}

// handleLogout revokes the presented session.
func (s *Server) handleLogout(c *gin.Context) {
	ctx := c.Request.Context()

	handle := c.GetHeader(auth.HeaderSessionToken)
	id, _, err := session.ParseHandle(handle)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "malformed session token",
		})
		return
	}

	if err := s.sessions.Revoke(ctx, id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		s.logger.Error("failed to revoke session", observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal",
			"message": "could not close session",
		})
		return
	}

	if principal, ok := guard.PrincipalFrom(c); ok {
		s.recorder.Record(ctx, audit.AuthenticationEvent(
			audit.ActionLogout, audit.OutcomeSuccess,
			&audit.Subject{
				ID:        principal.ID,
				Username:  principal.Username,
				IPAddress: ratelimit.GetClientIP(c.Request),
			},
		))
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) listExtensions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"extensions": s.inventory.ListExtensions()})
}

func (s *Server) createExtension(c *gin.Context) {
	var ext Extension
	if err := c.ShouldBindJSON(&ext); err != nil {
		badRequest(c, "invalid extension")
		return
	}
	if ext.Number == "" {
		badRequest(c, "extension number is required")
		return
	}
	ext.ID = ""
	c.JSON(http.StatusCreated, s.inventory.PutExtension(&ext))
}

func (s *Server) getExtension(c *gin.Context) {
	ext, err := s.inventory.GetExtension(c.Param("id"))
	if err != nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, ext)
}

func (s *Server) updateExtension(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.inventory.GetExtension(id); err != nil {
		notFound(c)
		return
	}

	var ext Extension
	if err := c.ShouldBindJSON(&ext); err != nil {
		badRequest(c, "invalid extension")
		return
	}
	ext.ID = id
	c.JSON(http.StatusOK, s.inventory.PutExtension(&ext))
}

func (s *Server) deleteExtension(c *gin.Context) {
	if err := s.inventory.DeleteExtension(c.Param("id")); err != nil {
		notFound(c)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listSIPProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": s.inventory.ListSIPProfiles()})
}

func (s *Server) getSIPProfile(c *gin.Context) {
	profile, err := s.inventory.GetSIPProfile(c.Param("id"))
	if err != nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) updateSIPProfile(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.inventory.GetSIPProfile(id); err != nil {
		notFound(c)
		return
	}

	var profile SIPProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		badRequest(c, "invalid SIP profile")
		return
	}
	profile.ID = id
	c.JSON(http.StatusOK, s.inventory.PutSIPProfile(&profile))
}

func (s *Server) deleteSIPProfile(c *gin.Context) {
	if err := s.inventory.DeleteSIPProfile(c.Param("id")); err != nil {
		notFound(c)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listCallRecords(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cdrs": s.inventory.ListCallRecords()})
}

func (s *Server) listRecordings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"recordings": s.inventory.ListRecordings()})
}

func (s *Server) getRecording(c *gin.Context) {
	rec, err := s.inventory.GetRecording(c.Param("id"))
	if err != nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) deleteRecording(c *gin.Context) {
	if err := s.inventory.DeleteRecording(c.Param("id")); err != nil {
		notFound(c)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listBackups(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"backups": s.inventory.ListBackups()})
}

type backupRequest struct {
	Scope string `json:"scope"`
}

func (s *Server) createBackup(c *gin.Context) {
	var req backupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid backup request")
		return
	}
	if req.Scope == "" {
		req.Scope = "full"
	}

	requestedBy := ""
	if principal, ok := guard.PrincipalFrom(c); ok {
		requestedBy = principal.ID
	}

	c.JSON(http.StatusAccepted, s.inventory.CreateBackup(req.Scope, requestedBy))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": message})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "object not found"})
}
