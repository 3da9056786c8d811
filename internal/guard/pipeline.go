package guard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avapbx/internal/auth"
	"github.com/vyrodovalexey/avapbx/internal/authz/policy"
	"github.com/vyrodovalexey/avapbx/internal/authz/rbac"
	"github.com/vyrodovalexey/avapbx/internal/observability"
	"github.com/vyrodovalexey/avapbx/internal/ratelimit"
)

// Verdict is the outcome of one guard evaluation.
type Verdict struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// State is the stage that decided.
	State State

	// StatusCode is the HTTP status to return when denied.
	StatusCode int

	// Reason describes the denial for logs and audit; it is never sent
	// to the client verbatim.
	Reason string

	// RetryAfter is set on rate limit denials.
	RetryAfter time.Duration

	// Principal is the resolved identity, nil for public or
	// unauthenticated requests.
	Principal *auth.Principal

	// Decision is the policy decision when the policy stage ran.
	Decision *policy.Decision

	// RiskScore is the computed request risk.
	RiskScore int
}

// DefaultSensitiveMaxAge is the maximum credential age accepted for
// sensitive operations.
const DefaultSensitiveMaxAge = 15 * time.Minute

// Pipeline runs the guard stages in a fixed order: public check,
// authentication, role authorization, rate limiting, policy
// evaluation, sensitivity validation.
type Pipeline struct {
	resolver        auth.Resolver
	roles           rbac.Resolver
	policies        policy.Engine
	limiter         *ratelimit.Gate
	logger          observability.Logger
	metrics         *Metrics
	sensitiveMaxAge time.Duration
}

// PipelineOption is a functional option for the pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger.
func WithPipelineLogger(logger observability.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithPipelineMetrics sets the metrics.
func WithPipelineMetrics(metrics *Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// WithSensitiveMaxAge sets the maximum credential age accepted for
// sensitive operations.
func WithSensitiveMaxAge(maxAge time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.sensitiveMaxAge = maxAge
	}
}

// NewPipeline creates a guard pipeline. All four stages are required.
func NewPipeline(
	resolver auth.Resolver,
	roles rbac.Resolver,
	policies policy.Engine,
	limiter *ratelimit.Gate,
	opts ...PipelineOption,
) (*Pipeline, error) {
	if resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}
	if roles == nil {
		return nil, fmt.Errorf("role resolver is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy engine is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}

	p := &Pipeline{
		resolver:        resolver,
		roles:           roles,
		policies:        policies,
		limiter:         limiter,
		logger:          observability.NopLogger(),
		sensitiveMaxAge: DefaultSensitiveMaxAge,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.metrics == nil {
		p.metrics = GetSharedMetrics()
	}

	return p, nil
}

// Check evaluates one request against the route requirements. The
// returned verdict is never nil.
func (p *Pipeline) Check(ctx context.Context, r *http.Request, reqs *Requirements) *Verdict {
	start := time.Now()
	verdict := p.run(ctx, r, reqs)

	outcome := "denied"
	if verdict.Allowed {
		outcome = "allowed"
	}
	p.metrics.RecordCheck(string(verdict.State), outcome, time.Since(start))

	return verdict
}

func (p *Pipeline) run(ctx context.Context, r *http.Request, reqs *Requirements) *Verdict {
	clientIP := ratelimit.GetClientIP(r)

	p.enterState(ctx, StatePublic)
	if reqs.Public {
		if v := p.checkRate(ctx, r, reqs, nil, clientIP); v != nil {
			return v
		}
		return &Verdict{Allowed: true, State: StateAllowed}
	}

	if v := p.canceled(ctx, StateAuthenticating); v != nil {
		return v
	}
	p.enterState(ctx, StateAuthenticating)
	principal, err := p.resolver.ResolveRequest(ctx, r)
	if err != nil {
		p.logger.Debug("authentication failed",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		return &Verdict{
			State:      StateDenied,
			StatusCode: http.StatusUnauthorized,
			Reason:     err.Error(),
		}
	}

	if v := p.canceled(ctx, StateAuthorizingRole, principal); v != nil {
		return v
	}
	p.enterState(ctx, StateAuthorizingRole)
	if v := p.checkRole(ctx, principal, reqs); v != nil {
		return v
	}

	if v := p.canceled(ctx, StateRateChecking, principal); v != nil {
		return v
	}
	p.enterState(ctx, StateRateChecking)
	if v := p.checkRate(ctx, r, reqs, principal, clientIP); v != nil {
		return v
	}

	if v := p.canceled(ctx, StateAuthorizingPolicy, principal); v != nil {
		return v
	}
	p.enterState(ctx, StateAuthorizingPolicy)
	decision, v := p.checkPolicy(ctx, r, principal, reqs, clientIP)
	if v != nil {
		return v
	}
	if v := p.checkRequiredPolicies(principal, reqs, decision); v != nil {
		return v
	}

	p.enterState(ctx, StateSecurityValidating)
	if reqs.Sensitive {
		if decision.Outcome != policy.OutcomeAllow {
			return &Verdict{
				State:      StateDenied,
				StatusCode: http.StatusForbidden,
				Reason:     "sensitive operation requires explicit policy allow",
				Principal:  principal,
				Decision:   decision,
				RiskScore:  decision.RiskScore,
			}
		}
		if v := p.checkFreshness(principal, decision); v != nil {
			return v
		}
	}

	return &Verdict{
		Allowed:   true,
		State:     StateAllowed,
		Principal: principal,
		Decision:  decision,
		RiskScore: decision.RiskScore,
	}
}

// canceled aborts remaining stages when the request context is done.
// The denial is still returned to the caller so it gets audited.
func (p *Pipeline) canceled(ctx context.Context, next State, principal ...*auth.Principal) *Verdict {
	if ctx.Err() == nil {
		return nil
	}

	v := &Verdict{
		State:      StateDenied,
		StatusCode: http.StatusServiceUnavailable,
		Reason:     fmt.Sprintf("request canceled before %s", next),
	}
	if len(principal) > 0 {
		v.Principal = principal[0]
	}
	return v
}

func (p *Pipeline) checkRole(ctx context.Context, principal *auth.Principal, reqs *Requirements) *Verdict {
	decision := p.roles.Check(ctx, &rbac.CheckRequest{
		Roles:       principal.Roles,
		Permissions: principal.Permissions,
		DomainID:    principal.DomainID,
		Resource:    reqs.Resource,
		Action:      reqs.Action,
	})

	if !decision.Allowed {
		return &Verdict{
			State:      StateDenied,
			StatusCode: http.StatusForbidden,
			Reason:     fmt.Sprintf("missing permissions: %v", decision.Missing),
			Principal:  principal,
		}
	}

	// An extra any-of role requirement on top of the permission check.
	if len(reqs.Roles) > 0 && !decision.Bypass {
		effective := p.roles.EffectiveRoles(principal.Roles)
		if !hasAnyRole(effective, reqs.Roles) {
			return &Verdict{
				State:      StateDenied,
				StatusCode: http.StatusForbidden,
				Reason:     fmt.Sprintf("requires one of roles %v", reqs.Roles),
				Principal:  principal,
			}
		}
	}

	return nil
}

func (p *Pipeline) checkRate(ctx context.Context, r *http.Request, reqs *Requirements, principal *auth.Principal, clientIP string) *Verdict {
	req := &ratelimit.Request{
		ClientIP:       clientIP,
		Method:         r.Method,
		Path:           r.URL.Path,
		Route:          reqs.Route,
		OperationClass: reqs.OperationClass,
		Override:       reqs.RateLimit,
	}
	if principal != nil {
		req.PrincipalID = principal.ID
		req.Roles = principal.Roles
	}

	result := p.limiter.Check(ctx, req)
	if result.Allowed {
		return nil
	}

	v := &Verdict{
		State:      StateDenied,
		StatusCode: http.StatusTooManyRequests,
		Reason:     "rate limit exceeded",
		RetryAfter: result.RetryAfter,
		Principal:  principal,
	}
	return v
}

func (p *Pipeline) checkPolicy(ctx context.Context, r *http.Request, principal *auth.Principal, reqs *Requirements, clientIP string) (*policy.Decision, *Verdict) {
	now := time.Now()
	ec := &policy.EvaluationContext{
		Subject: policy.Subject{
			ID:          principal.ID,
			Username:    principal.Username,
			DomainID:    principal.DomainID,
			Roles:       principal.Roles,
			PrimaryRole: principal.PrimaryRole,
			AuthMethod:  string(principal.AuthMethod),
		},
		Resource: policy.Resource{
			Type:        reqs.Resource,
			DomainID:    principal.DomainID,
			Sensitivity: reqs.Sensitivity,
		},
		Environment: policy.Environment{
			ClientIP:      clientIP,
			Time:          now,
			BusinessHours: policy.IsBusinessHours(now),
		},
		Action: reqs.Action,
	}

	decision, err := p.policies.Evaluate(ctx, ec)
	if err != nil {
		// Policy store failures deny: better to refuse admin actions
		// than to run them unchecked.
		p.logger.Error("policy evaluation failed",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		return nil, &Verdict{
			State:      StateDenied,
			StatusCode: http.StatusForbidden,
			Reason:     "policy evaluation unavailable",
			Principal:  principal,
		}
	}

	if decision.Outcome == policy.OutcomeDeny {
		return decision, &Verdict{
			State:      StateDenied,
			StatusCode: http.StatusForbidden,
			Reason:     decision.Reason,
			Principal:  principal,
			Decision:   decision,
			RiskScore:  decision.RiskScore,
		}
	}

	return decision, nil
}

// checkRequiredPolicies fails closed when a route names policies that
// must back the decision: the decision must be an ALLOW and every
// named policy must have been applied.
func (p *Pipeline) checkRequiredPolicies(principal *auth.Principal, reqs *Requirements, decision *policy.Decision) *Verdict {
	if len(reqs.Policies) == 0 {
		return nil
	}

	deny := func(reason string) *Verdict {
		return &Verdict{
			State:      StateDenied,
			StatusCode: http.StatusForbidden,
			Reason:     reason,
			Principal:  principal,
			Decision:   decision,
			RiskScore:  decision.RiskScore,
		}
	}

	if decision.Outcome != policy.OutcomeAllow {
		return deny(fmt.Sprintf("required policies %v did not allow", reqs.Policies))
	}

	applied := make(map[string]bool, len(decision.Applied))
	for _, name := range decision.Applied {
		applied[name] = true
	}
	for _, name := range reqs.Policies {
		if !applied[name] {
			return deny(fmt.Sprintf("required policy %q was not applied", name))
		}
	}
	return nil
}

// checkFreshness rejects sensitive operations backed by a stale
// credential. A re-login or token refresh resets the issue time.
func (p *Pipeline) checkFreshness(principal *auth.Principal, decision *policy.Decision) *Verdict {
	if !principal.IssuedAt.IsZero() && time.Since(principal.IssuedAt) <= p.sensitiveMaxAge {
		return nil
	}

	return &Verdict{
		State:      StateDenied,
		StatusCode: http.StatusUnauthorized,
		Reason:     fmt.Sprintf("credential older than %s presented for sensitive operation", p.sensitiveMaxAge),
		Principal:  principal,
		Decision:   decision,
		RiskScore:  decision.RiskScore,
	}
}

// enterState records the stage transition on the active span and in
// debug logs.
func (p *Pipeline) enterState(ctx context.Context, state State) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("guard.state", trace.WithAttributes(
			attribute.String("state", string(state)),
		))
	}
	p.logger.Debug("guard state", observability.String("state", string(state)))
}

func hasAnyRole(effective []string, required []string) bool {
	set := make(map[string]bool, len(effective))
	for _, role := range effective {
		set[role] = true
	}
	for _, role := range required {
		if set[role] {
			return true
		}
	}
	return false
}
