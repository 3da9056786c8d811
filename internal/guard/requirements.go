package guard

import (
	"github.com/vyrodovalexey/avapbx/internal/ratelimit"
)

// Requirements declares what a route demands from the guard pipeline.
type Requirements struct {
	// Public marks the route as accessible without authentication.
	// Public routes are still rate limited, keyed by client IP.
	Public bool

	// Resource is the resource type the route operates on, used by the
	// role and policy stages.
	Resource string

	// Action is the operation performed on the resource.
	Action string

	// Roles requires the principal to hold at least one of the listed
	// effective roles, on top of the resource/action permission check.
	Roles []string

	// Sensitivity classifies the resource (low, medium, high,
	// critical); high and critical raise the risk score.
	Sensitivity string

	// Policies names policies that must have participated in an ALLOW
	// decision. The request is denied when the decision is not an ALLOW
	// or a named policy was not applied.
	Policies []string

	// Sensitive requires an explicit policy ALLOW and a fresh
	// credential: an INDETERMINATE policy outcome denies the request.
	Sensitive bool

	// Route names the route for rate limit overrides.
	Route string

	// OperationClass classifies the operation for rate limiting
	// (sync, backup, destructive, upload, login).
	OperationClass string

	// RateLimit overrides the rate limit resolution ladder when set.
	RateLimit *ratelimit.Limit
}

// State identifies one stage of the guard pipeline.
type State string

// Pipeline states, in evaluation order.
const (
	StatePublic             State = "public"
	StateAuthenticating     State = "authenticating"
	StateAuthorizingRole    State = "authorizing_role"
	StateRateChecking       State = "rate_checking"
	StateAuthorizingPolicy  State = "authorizing_policy"
	StateSecurityValidating State = "security_validating"
	StateAllowed            State = "allowed"
	StateDenied             State = "denied"
)
