package guard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avapbx/internal/audit"
	"github.com/vyrodovalexey/avapbx/internal/auth"
	"github.com/vyrodovalexey/avapbx/internal/ratelimit"
)

// PrincipalKey is the gin context key holding the resolved principal.
const PrincipalKey = "principal"

// Middleware returns a gin middleware enforcing the route requirements
// through the pipeline and recording audit events. Denials are audited
// immediately; successes are audited after the handler completes.
func Middleware(pipeline *Pipeline, recorder audit.Recorder, reqs *Requirements) gin.HandlerFunc {
	if recorder == nil {
		recorder = audit.NewNoopRecorder()
	}
	if reqs == nil {
		reqs = &Requirements{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()

		verdict := pipeline.Check(ctx, c.Request, reqs)

		if !verdict.Allowed {
			abort(c, verdict)
			recorder.Record(ctx, denialEvent(c, reqs, verdict).
				WithDuration(time.Since(start)))
			return
		}

		if verdict.Principal != nil {
			c.Set(PrincipalKey, verdict.Principal)
			c.Request = c.Request.WithContext(
				auth.ContextWithPrincipal(ctx, verdict.Principal))
		}

		c.Next()

		if !reqs.Public {
			recorder.Record(c.Request.Context(),
				audit.AccessGrantedEvent(subjectOf(c, verdict), resourceOf(c, reqs)).
					WithRisk(verdict.RiskScore).
					WithMetadata("status", c.Writer.Status()).
					WithDuration(time.Since(start)))
		}
	}
}

// abort writes the denial response. Client messages stay generic; the
// specific reason goes to logs and audit only.
func abort(c *gin.Context, verdict *Verdict) {
	switch verdict.StatusCode {
	case http.StatusUnauthorized:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	case http.StatusTooManyRequests:
		c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(verdict.RetryAfter)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "rate_limited",
			"message": "too many requests",
		})
	case http.StatusServiceUnavailable:
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":   "unavailable",
			"message": "request could not be processed",
		})
	default:
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "access denied",
		})
	}
}

func denialEvent(c *gin.Context, reqs *Requirements, verdict *Verdict) *audit.Event {
	subject := subjectOf(c, verdict)
	resource := resourceOf(c, reqs)

	switch verdict.StatusCode {
	case http.StatusUnauthorized:
		return audit.AuthenticationEvent(audit.ActionLogin, audit.OutcomeFailure, subject).
			WithResource(resource).
			WithReason(verdict.Reason)
	case http.StatusTooManyRequests:
		return audit.RateLimitExceededEvent(subject, resource, verdict.RetryAfter)
	default:
		return audit.AccessDeniedEvent(subject, resource, verdict.Reason).
			WithRisk(verdict.RiskScore)
	}
}

func subjectOf(c *gin.Context, verdict *Verdict) *audit.Subject {
	subject := &audit.Subject{
		IPAddress: ratelimit.GetClientIP(c.Request),
	}
	if verdict.Principal != nil {
		subject.ID = verdict.Principal.ID
		subject.Username = verdict.Principal.Username
		subject.Roles = verdict.Principal.Roles
		subject.Domain = verdict.Principal.DomainID
		subject.AuthMethod = string(verdict.Principal.AuthMethod)
	}
	return subject
}

func resourceOf(c *gin.Context, reqs *Requirements) *audit.Resource {
	return &audit.Resource{
		Type:   reqs.Resource,
		Path:   c.Request.URL.Path,
		Method: c.Request.Method,
	}
}

// PrincipalFrom returns the resolved principal from the gin context.
func PrincipalFrom(c *gin.Context) (*auth.Principal, bool) {
	value, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*auth.Principal)
	return principal, ok
}
