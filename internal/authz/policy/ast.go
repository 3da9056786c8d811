package policy

import (
	"net"
	"strings"
	"time"
)

// Node is one evaluable condition tree node. Evaluation never errors:
// unresolvable attributes and type mismatches count as non-matches.
type Node interface {
	Eval(ec *EvaluationContext) bool
}

// trueNode always matches; the compiled form of an empty condition.
type trueNode struct{}

func (trueNode) Eval(*EvaluationContext) bool { return true }

// andNode matches when all children match.
type andNode struct {
	children []Node
}

func (n *andNode) Eval(ec *EvaluationContext) bool {
	for _, c := range n.children {
		if !c.Eval(ec) {
			return false
		}
	}
	return true
}

// orNode matches when any child matches.
type orNode struct {
	children []Node
}

func (n *orNode) Eval(ec *EvaluationContext) bool {
	for _, c := range n.children {
		if c.Eval(ec) {
			return true
		}
	}
	return false
}

// notNode inverts its child.
type notNode struct {
	child Node
}

func (n *notNode) Eval(ec *EvaluationContext) bool {
	return !n.child.Eval(ec)
}

// roleInNode matches when any subject role is in the listed set.
type roleInNode struct {
	roles map[string]bool
}

func (n *roleInNode) Eval(ec *EvaluationContext) bool {
	for _, role := range ec.Subject.Roles {
		if n.roles[role] {
			return true
		}
	}
	return false
}

// Comparison operators.
type cmpOp int

const (
	cmpEq cmpOp = iota
	cmpNe
	cmpContains
)

// cmpNode compares an attribute against a literal value.
type cmpNode struct {
	attr  string
	op    cmpOp
	value string
}

func (n *cmpNode) Eval(ec *EvaluationContext) bool {
	raw, ok := ec.Attribute(n.attr)
	if !ok {
		return false
	}

	switch v := raw.(type) {
	case string:
		switch n.op {
		case cmpEq:
			return v == n.value
		case cmpNe:
			return v != n.value
		case cmpContains:
			return strings.Contains(v, n.value)
		}
	case []string:
		// Lists only support containment.
		if n.op == cmpContains {
			for _, item := range v {
				if item == n.value {
					return true
				}
			}
		}
		return false
	}
	return false
}

// memberNode matches when a literal value is a member of an attribute:
// element membership for lists, substring for strings.
type memberNode struct {
	value string
	attr  string
}

func (n *memberNode) Eval(ec *EvaluationContext) bool {
	raw, ok := ec.Attribute(n.attr)
	if !ok {
		return false
	}

	switch v := raw.(type) {
	case string:
		return strings.Contains(v, n.value)
	case []string:
		for _, item := range v {
			if item == n.value {
				return true
			}
		}
	}
	return false
}

// timeBetweenNode matches when the evaluation time-of-day falls inside
// the window. A start after the end denotes an overnight window.
type timeBetweenNode struct {
	startMin int
	endMin   int
}

func (n *timeBetweenNode) Eval(ec *EvaluationContext) bool {
	t := ec.Now()
	minute := t.Hour()*60 + t.Minute()

	if n.startMin <= n.endMin {
		return minute >= n.startMin && minute < n.endMin
	}
	// Overnight window, e.g. 22:00-06:00.
	return minute >= n.startMin || minute < n.endMin
}

// dayInNode matches when the evaluation weekday is listed.
type dayInNode struct {
	days map[time.Weekday]bool
}

func (n *dayInNode) Eval(ec *EvaluationContext) bool {
	return n.days[ec.Now().Weekday()]
}

// ipInNode matches the client IP against a CIDR range or an exact
// address, both parsed at compile time.
type ipInNode struct {
	network *net.IPNet
	exact   net.IP
}

func (n *ipInNode) Eval(ec *EvaluationContext) bool {
	ip := net.ParseIP(ec.Environment.ClientIP)
	if ip == nil {
		return false
	}
	if n.network != nil {
		return n.network.Contains(ip)
	}
	return n.exact != nil && n.exact.Equal(ip)
}
