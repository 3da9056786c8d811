package policy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// Risk score components.
const (
	riskDenyPenalty        = 30
	riskSensitivityPenalty = 20
	riskOffHoursPenalty    = 15
	riskMax                = 100
)

// Engine evaluates policies against an evaluation context.
type Engine interface {
	// Evaluate runs deny-override combination over the applicable policies.
	// The returned error is non-nil only for store failures; callers treat
	// it as DENY.
	Evaluate(ctx context.Context, ec *EvaluationContext) (*Decision, error)
}

// engine implements the Engine interface.
type engine struct {
	store   Store
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
}

// EngineOption is a functional option for the engine.
type EngineOption func(*engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithEngineMetrics sets the metrics.
func WithEngineMetrics(metrics *Metrics) EngineOption {
	return func(e *engine) {
		e.metrics = metrics
	}
}

// WithEngineClock overrides the time source, used in tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *engine) {
		e.now = now
	}
}

// NewEngine creates a policy engine over the given store.
func NewEngine(store Store, opts ...EngineOption) (Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	e := &engine{
		store:  store,
		logger: observability.NopLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = GetSharedMetrics()
	}

	return e, nil
}

// Evaluate runs deny-override combination over the applicable policies.
func (e *engine) Evaluate(ctx context.Context, ec *EvaluationContext) (*Decision, error) {
	start := time.Now()

	policies, err := e.store.ListPolicies(ctx, ec.Subject.DomainID)
	if err != nil {
		e.metrics.RecordEvaluation("error", time.Since(start))
		e.logger.Error("policy fetch failed",
			observability.String("domain", ec.Subject.DomainID),
			observability.Error(err),
		)
		return nil, &EvaluationError{Cause: err}
	}

	now := e.now()
	applicable := make([]*Policy, 0, len(policies))
	for _, p := range policies {
		if p.IsEffective(now) && p.AppliesTo(ec.Subject.DomainID, ec.Resource.Type, ec.Action) {
			applicable = append(applicable, p)
		}
	}

	if len(applicable) == 0 {
		decision := &Decision{
			Outcome:   OutcomeIndeterminate,
			Reason:    "no applicable policies",
			RiskScore: e.riskScore(ec, OutcomeIndeterminate),
		}
		e.metrics.RecordEvaluation("indeterminate", time.Since(start))
		return decision, nil
	}

	// Higher priority evaluates first; order is stable for equal priority.
	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Priority > applicable[j].Priority
	})

	applied := make([]string, 0, len(applicable))

	// Deny-override: any matching DENY decides, short-circuiting.
	for _, p := range applicable {
		if p.Effect != EffectDeny {
			continue
		}
		if e.conditionHolds(p, ec, now) {
			applied = append(applied, p.Name)
			decision := &Decision{
				Outcome:        OutcomeDeny,
				Reason:         "denied by policy " + p.Name,
				DecidingPolicy: p.Name,
				Applied:        applied,
				RiskScore:      e.riskScore(ec, OutcomeDeny),
			}
			e.metrics.RecordEvaluation("deny", time.Since(start))
			e.logDecision(decision, ec)
			return decision, nil
		}
		applied = append(applied, p.Name)
	}

	// No DENY matched; first matching ALLOW wins and carries obligations.
	for _, p := range applicable {
		if p.Effect != EffectAllow {
			continue
		}
		if e.conditionHolds(p, ec, now) {
			applied = append(applied, p.Name)
			decision := &Decision{
				Outcome:        OutcomeAllow,
				Reason:         "allowed by policy " + p.Name,
				DecidingPolicy: p.Name,
				Applied:        applied,
				Obligations:    p.Obligations,
				RiskScore:      e.riskScore(ec, OutcomeAllow),
			}
			e.metrics.RecordEvaluation("allow", time.Since(start))
			e.logDecision(decision, ec)
			return decision, nil
		}
		applied = append(applied, p.Name)
	}

	decision := &Decision{
		Outcome:   OutcomeDeny,
		Reason:    "no applicable allow policy",
		Applied:   applied,
		RiskScore: e.riskScore(ec, OutcomeDeny),
	}
	e.metrics.RecordEvaluation("deny", time.Since(start))
	e.logDecision(decision, ec)
	return decision, nil
}

// conditionHolds evaluates one policy condition, updating the policy
// counters. A parse failure or a panic inside the condition counts as a
// non-match.
func (e *engine) conditionHolds(p *Policy, ec *EvaluationContext, now time.Time) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordConditionPanic()
			e.logger.Error("condition evaluation panicked",
				observability.String("policy", p.Name),
				observability.Any("panic", r),
			)
			matched = false
		}
		p.recordEvaluation(matched, now)
	}()

	node, err := p.compiled()
	if err != nil {
		e.metrics.RecordMalformedCondition()
		e.logger.Warn("malformed policy condition treated as non-match",
			observability.String("policy", p.Name),
			observability.Error(err),
		)
		return false
	}

	return node.Eval(ec)
}

// riskScore computes the request risk score.
func (e *engine) riskScore(ec *EvaluationContext, outcome Outcome) int {
	score := ec.Environment.BaselineRisk
	if outcome == OutcomeDeny {
		score += riskDenyPenalty
	}
	switch ec.Resource.Sensitivity {
	case "high", "critical":
		score += riskSensitivityPenalty
	}
	if !ec.Environment.BusinessHours {
		score += riskOffHoursPenalty
	}

	if score < 0 {
		return 0
	}
	if score > riskMax {
		return riskMax
	}
	return score
}

func (e *engine) logDecision(d *Decision, ec *EvaluationContext) {
	e.logger.Debug("policy decision",
		observability.String("outcome", string(d.Outcome)),
		observability.String("reason", d.Reason),
		observability.String("subject", ec.Subject.ID),
		observability.String("resource", ec.Resource.Type),
		observability.String("action", ec.Action),
		observability.Int("risk_score", d.RiskScore),
	)
}

// Ensure engine implements Engine.
var _ Engine = (*engine)(nil)
