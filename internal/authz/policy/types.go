package policy

import (
	"sync"
	"sync/atomic"
	"time"
)

// Effect is the outcome a policy votes for when its condition holds.
type Effect string

// Policy effects.
const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// Type classifies how a policy decides.
type Type string

// Policy types.
const (
	TypeRBAC   Type = "RBAC"
	TypeABAC   Type = "ABAC"
	TypeHybrid Type = "HYBRID"
)

// Status is the lifecycle state of a policy.
type Status string

// Policy statuses. Only ACTIVE policies inside their effective window
// participate in evaluation.
const (
	StatusActive     Status = "ACTIVE"
	StatusInactive   Status = "INACTIVE"
	StatusDraft      Status = "DRAFT"
	StatusDeprecated Status = "DEPRECATED"
)

// Outcome is the combined decision of an evaluation.
type Outcome string

// Evaluation outcomes.
const (
	OutcomeAllow         Outcome = "ALLOW"
	OutcomeDeny          Outcome = "DENY"
	OutcomeIndeterminate Outcome = "INDETERMINATE"
)

// Obligation is a side-effect instruction attached to an ALLOW policy,
// carried to the caller with the decision.
type Obligation struct {
	Type   string            `yaml:"type" json:"type"`
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Policy is one attribute-based access policy.
type Policy struct {
	// ID is the unique policy identifier.
	ID string `yaml:"id"`

	// Name is the human-readable policy name.
	Name string `yaml:"name"`

	// Effect is the vote cast when the condition holds.
	Effect Effect `yaml:"effect"`

	// Type classifies the policy.
	Type Type `yaml:"type,omitempty"`

	// Status is the lifecycle state.
	Status Status `yaml:"status"`

	// Priority orders evaluation; higher evaluates first.
	Priority int `yaml:"priority,omitempty"`

	// DomainScope restricts the policy to one PBX domain. Empty = global.
	DomainScope string `yaml:"domainScope,omitempty"`

	// Resources scopes the policy to resource types. Empty or * = all.
	Resources []string `yaml:"resources,omitempty"`

	// Actions scopes the policy to actions. Empty or * = all.
	Actions []string `yaml:"actions,omitempty"`

	// Condition is the expression deciding whether the policy matches.
	// Empty means always true. Parsed once on first evaluation.
	Condition string `yaml:"condition,omitempty"`

	// EffectiveFrom/EffectiveUntil bound the policy's validity window.
	EffectiveFrom  *time.Time `yaml:"effectiveFrom,omitempty"`
	EffectiveUntil *time.Time `yaml:"effectiveUntil,omitempty"`

	// Obligations are carried to the caller when this policy allows.
	Obligations []Obligation `yaml:"obligations,omitempty"`

	// Running counters, updated on every evaluation.
	evaluations   atomic.Int64
	successes     atomic.Int64
	failures      atomic.Int64
	lastEvaluated atomic.Int64 // unix nanos

	parseOnce sync.Once
	cond      Node
	parseErr  error
}

// IsEffective reports whether the policy participates in evaluation at
// the given time.
func (p *Policy) IsEffective(now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	if p.EffectiveFrom != nil && now.Before(*p.EffectiveFrom) {
		return false
	}
	if p.EffectiveUntil != nil && now.After(*p.EffectiveUntil) {
		return false
	}
	return true
}

// AppliesTo reports whether the policy's domain, resource, and action
// scopes match the request.
func (p *Policy) AppliesTo(domainID, resource, action string) bool {
	if p.DomainScope != "" && domainID != "" && p.DomainScope != domainID {
		return false
	}
	if !scopeMatches(p.Resources, resource) {
		return false
	}
	return scopeMatches(p.Actions, action)
}

// scopeMatches checks a scope list; empty or * is a wildcard.
func scopeMatches(scope []string, value string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if s == "*" || s == value {
			return true
		}
	}
	return false
}

// compiled returns the parsed condition tree, parsing it on first use.
// An empty condition compiles to an always-true node.
func (p *Policy) compiled() (Node, error) {
	p.parseOnce.Do(func() {
		if p.Condition == "" {
			p.cond = trueNode{}
			return
		}
		p.cond, p.parseErr = ParseCondition(p.Condition)
	})
	return p.cond, p.parseErr
}

// recordEvaluation updates the running counters.
func (p *Policy) recordEvaluation(matched bool, at time.Time) {
	p.evaluations.Add(1)
	if matched {
		p.successes.Add(1)
	} else {
		p.failures.Add(1)
	}
	p.lastEvaluated.Store(at.UnixNano())
}

// Counters returns the running evaluation counters.
func (p *Policy) Counters() (evaluations, successes, failures int64, lastEvaluated time.Time) {
	evaluations = p.evaluations.Load()
	successes = p.successes.Load()
	failures = p.failures.Load()
	if nanos := p.lastEvaluated.Load(); nanos != 0 {
		lastEvaluated = time.Unix(0, nanos)
	}
	return
}

// Decision is the combined result of one evaluation.
type Decision struct {
	// Outcome is ALLOW, DENY, or INDETERMINATE.
	Outcome Outcome

	// Reason describes what decided the outcome.
	Reason string

	// DecidingPolicy names the policy that decided, when one did.
	DecidingPolicy string

	// Applied lists the policies whose conditions were evaluated.
	Applied []string

	// Obligations collected from the deciding ALLOW policy.
	Obligations []Obligation

	// RiskScore is the computed request risk, clamped to [0,100].
	RiskScore int
}

// Allowed reports whether the outcome is ALLOW.
func (d *Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}
