package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

// Event types.
const (
	EventTypeAuthentication EventType = "authentication"
	EventTypeAuthorization  EventType = "authorization"
	EventTypeRateLimit      EventType = "rate_limit"
	EventTypeAdministrative EventType = "administrative"
	EventTypeSecurity       EventType = "security"
)

// Action represents the action being audited.
type Action string

// Common actions.
const (
	// Authentication actions
	ActionLogin         Action = "login"
	ActionLogout        Action = "logout"
	ActionSessionExpire Action = "session_expire"

	// Authorization actions
	ActionAccess Action = "access"
	ActionDeny   Action = "deny"

	// Administrative actions
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// Security actions
	ActionRateLimitExceeded  Action = "rate_limit_exceeded"
	ActionRateLimitWarning   Action = "rate_limit_warning"
	ActionSuspiciousActivity Action = "suspicious_activity"
)

// Outcome represents the outcome of an audited action.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
	OutcomeWarning Outcome = "warning"
)

// RiskLevel buckets a numeric risk score.
type RiskLevel string

// Risk levels.
const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskLevelFor buckets a risk score into a level.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskLevelCritical
	case score >= 60:
		return RiskLevelHigh
	case score >= 30:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// Event represents one audit event.
type Event struct {
	// ID is a unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred, in UTC.
	Timestamp time.Time `json:"timestamp"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Action is the action being audited.
	Action Action `json:"action"`

	// Outcome is the outcome of the action.
	Outcome Outcome `json:"outcome"`

	// Subject is the entity performing the action.
	Subject *Subject `json:"subject,omitempty"`

	// Resource is the resource being accessed.
	Resource *Resource `json:"resource,omitempty"`

	// RiskLevel buckets the risk score.
	RiskLevel RiskLevel `json:"risk_level,omitempty"`

	// RiskScore is the computed request risk, 0 to 100.
	RiskScore int `json:"risk_score,omitempty"`

	// Reason describes what decided the outcome.
	Reason string `json:"reason,omitempty"`

	// Metadata contains additional metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// TraceID is the trace ID for distributed tracing.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the span ID for distributed tracing.
	SpanID string `json:"span_id,omitempty"`

	// Duration is how long the action took.
	Duration time.Duration `json:"duration,omitempty"`
}

// Subject represents the entity performing an action.
type Subject struct {
	// ID is the subject identifier.
	ID string `json:"id"`

	// Username is the display name.
	Username string `json:"username,omitempty"`

	// Roles are the subject's effective roles.
	Roles []string `json:"roles,omitempty"`

	// Domain is the PBX domain the subject belongs to.
	Domain string `json:"domain,omitempty"`

	// IPAddress is the client IP address.
	IPAddress string `json:"ip_address,omitempty"`

	// AuthMethod is the authentication method used.
	AuthMethod string `json:"auth_method,omitempty"`
}

// Resource represents the resource being accessed.
type Resource struct {
	// Type is the type of resource.
	Type string `json:"type,omitempty"`

	// ID is the resource identifier.
	ID string `json:"id,omitempty"`

	// Path is the request path.
	Path string `json:"path,omitempty"`

	// Method is the HTTP method.
	Method string `json:"method,omitempty"`
}

// NewEvent creates a new audit event with default values.
func NewEvent(eventType EventType, action Action, outcome Outcome) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Action:    action,
		Outcome:   outcome,
	}
}

// WithSubject sets the subject.
func (e *Event) WithSubject(subject *Subject) *Event {
	e.Subject = subject
	return e
}

// WithResource sets the resource.
func (e *Event) WithResource(resource *Resource) *Event {
	e.Resource = resource
	return e
}

// WithRisk sets the risk score and derives the risk level.
func (e *Event) WithRisk(score int) *Event {
	e.RiskScore = score
	e.RiskLevel = RiskLevelFor(score)
	return e
}

// WithReason sets the reason.
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

// WithMetadata adds metadata to the event.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithDuration sets the duration.
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.Duration = duration
	return e
}

// AuthenticationEvent creates an authentication audit event.
func AuthenticationEvent(action Action, outcome Outcome, subject *Subject) *Event {
	return NewEvent(EventTypeAuthentication, action, outcome).
		WithSubject(subject)
}

// AccessGrantedEvent creates an authorization success event.
func AccessGrantedEvent(subject *Subject, resource *Resource) *Event {
	return NewEvent(EventTypeAuthorization, ActionAccess, OutcomeSuccess).
		WithSubject(subject).
		WithResource(resource)
}

// AccessDeniedEvent creates an authorization denial event.
func AccessDeniedEvent(subject *Subject, resource *Resource, reason string) *Event {
	return NewEvent(EventTypeAuthorization, ActionDeny, OutcomeFailure).
		WithSubject(subject).
		WithResource(resource).
		WithReason(reason)
}

// RateLimitExceededEvent creates a rate limit rejection event.
func RateLimitExceededEvent(subject *Subject, resource *Resource, retryAfter time.Duration) *Event {
	return NewEvent(EventTypeRateLimit, ActionRateLimitExceeded, OutcomeWarning).
		WithSubject(subject).
		WithResource(resource).
		WithMetadata("retry_after", retryAfter.String())
}

// AdministrativeEvent creates an administrative action event.
func AdministrativeEvent(action Action, outcome Outcome, subject *Subject, resource *Resource) *Event {
	return NewEvent(EventTypeAdministrative, action, outcome).
		WithSubject(subject).
		WithResource(resource)
}

// SecurityEvent creates a security audit event.
func SecurityEvent(action Action, subject *Subject, details map[string]interface{}) *Event {
	event := NewEvent(EventTypeSecurity, action, OutcomeWarning).
		WithSubject(subject)
	for k, v := range details {
		event.WithMetadata(k, v)
	}
	return event
}
