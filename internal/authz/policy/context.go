package policy

import (
	"time"
)

// Subject carries the identity attributes of an evaluation.
type Subject struct {
	ID          string
	Username    string
	DomainID    string
	Roles       []string
	PrimaryRole string
	AuthMethod  string
}

// Resource carries the attributes of the accessed resource.
type Resource struct {
	Type           string
	ID             string
	Owner          string
	DomainID       string
	Classification string
	Sensitivity    string
}

// Environment carries request-ambient attributes.
type Environment struct {
	ClientIP      string
	DeviceType    string
	Time          time.Time
	BusinessHours bool
	BaselineRisk  int
}

// EvaluationContext is assembled per request and discarded afterwards.
type EvaluationContext struct {
	Subject     Subject
	Resource    Resource
	Environment Environment
	Action      string

	// Attributes holds extension attributes addressable from conditions
	// by their bare name.
	Attributes map[string]string
}

// Now returns the evaluation time, defaulting to the wall clock when
// the environment carries none.
func (ec *EvaluationContext) Now() time.Time {
	if !ec.Environment.Time.IsZero() {
		return ec.Environment.Time
	}
	return time.Now()
}

// Attribute resolves a dotted attribute name to its value. Values are
// strings except role lists, which resolve to []string. Unknown names
// resolve to (nil, false) and count as a non-match.
func (ec *EvaluationContext) Attribute(name string) (interface{}, bool) {
	switch name {
	case "action":
		return ec.Action, true
	case "subject.id":
		return ec.Subject.ID, true
	case "subject.username":
		return ec.Subject.Username, true
	case "subject.domain":
		return ec.Subject.DomainID, true
	case "subject.primary_role":
		return ec.Subject.PrimaryRole, true
	case "subject.auth_method":
		return ec.Subject.AuthMethod, true
	case "subject.roles", "roles":
		return ec.Subject.Roles, true
	case "resource.type":
		return ec.Resource.Type, true
	case "resource.id":
		return ec.Resource.ID, true
	case "resource.owner":
		return ec.Resource.Owner, true
	case "resource.domain":
		return ec.Resource.DomainID, true
	case "resource.classification":
		return ec.Resource.Classification, true
	case "resource.sensitivity":
		return ec.Resource.Sensitivity, true
	case "env.ip", "env.client_ip":
		return ec.Environment.ClientIP, true
	case "env.device":
		return ec.Environment.DeviceType, true
	case "env.business_hours":
		if ec.Environment.BusinessHours {
			return "true", true
		}
		return "false", true
	}

	if v, ok := ec.Attributes[name]; ok {
		return v, true
	}
	return nil, false
}

// Business-hours window applied when the caller does not supply its own
// flag: weekdays, 08:00 to 18:00 local time.
const (
	businessHoursStart = 8
	businessHoursEnd   = 18
)

// IsBusinessHours reports whether t falls inside the default business
// hours window.
func IsBusinessHours(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h := t.Hour()
	return h >= businessHoursStart && h < businessHoursEnd
}
