package policy

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrBadCondition indicates a condition string that does not parse.
// Policies with unparsable conditions evaluate to false.
var ErrBadCondition = errors.New("malformed condition")

// Condition grammar (case-insensitive keywords):
//
//	expr     := or
//	or       := and { "or" and }
//	and      := unary { "and" unary }
//	unary    := "not" unary | "(" expr ")" | test
//	test     := "role" "in" list
//	          | "day" "in" list
//	          | "ip" "in" ADDR
//	          | "time" "between" HH:MM "-" HH:MM
//	          | attr ("==" | "!=" | "contains") value
//	          | value "in" attr
//	list     := "[" value { "," value } "]"
//
// Values are quoted strings or bare words; attrs are dotted names.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokEq
	tokNe
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDash
)

type token struct {
	kind tokenKind
	text string
}

// lex splits a condition string into tokens.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case c == '[':
			tokens = append(tokens, token{tokLBracket, "["})
			i++
		case c == ']':
			tokens = append(tokens, token{tokRBracket, "]"})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ","})
			i++
		case c == '-':
			tokens = append(tokens, token{tokDash, "-"})
			i++
		case c == '=':
			if i+1 >= len(input) || input[i+1] != '=' {
				return nil, fmt.Errorf("%w: expected == at offset %d", ErrBadCondition, i)
			}
			tokens = append(tokens, token{tokEq, "=="})
			i += 2
		case c == '!':
			if i+1 >= len(input) || input[i+1] != '=' {
				return nil, fmt.Errorf("%w: expected != at offset %d", ErrBadCondition, i)
			}
			tokens = append(tokens, token{tokNe, "!="})
			i += 2
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(input) && input[j] != quote {
				j++
			}
			if j >= len(input) {
				return nil, fmt.Errorf("%w: unterminated string at offset %d", ErrBadCondition, i)
			}
			tokens = append(tokens, token{tokString, input[i+1 : j]})
			i = j + 1
		case isWordChar(c):
			j := i
			for j < len(input) && isWordChar(input[j]) {
				j++
			}
			tokens = append(tokens, token{tokWord, input[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrBadCondition, c, i)
		}
	}
	tokens = append(tokens, token{tokEOF, ""})
	return tokens, nil
}

// isWordChar allows dotted attribute names, times, IPs, and CIDRs to
// lex as single words.
func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == ':' || c == '/' || c == '*'
}

type parser struct {
	tokens []token
	pos    int
}

// ParseCondition parses a condition string into an evaluable tree.
func ParseCondition(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return trueNode{}, nil
	}

	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: trailing input %q", ErrBadCondition, p.peek().text)
	}
	return node, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// isKeyword checks a word token against a keyword, case-insensitively.
func (t token) isKeyword(kw string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, kw)
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	children := []Node{left}
	for p.peek().isKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}

	if len(children) == 1 {
		return left, nil
	}
	return &orNode{children: children}, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	children := []Node{left}
	for p.peek().isKeyword("and") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}

	if len(children) == 1 {
		return left, nil
	}
	return &andNode{children: children}, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().isKeyword("not") {
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{child: child}, nil
	}

	if p.peek().kind == tokLParen {
		p.next()
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrBadCondition)
		}
		return node, nil
	}

	return p.parseTest()
}

func (p *parser) parseTest() (Node, error) {
	lead := p.next()
	if lead.kind != tokWord && lead.kind != tokString {
		return nil, fmt.Errorf("%w: unexpected token %q", ErrBadCondition, lead.text)
	}

	switch {
	case lead.isKeyword("role"):
		return p.parseRoleIn()
	case lead.isKeyword("day"):
		return p.parseDayIn()
	case lead.isKeyword("ip"):
		return p.parseIPIn()
	case lead.isKeyword("time"):
		return p.parseTimeBetween()
	}

	op := p.next()
	switch {
	case op.kind == tokEq, op.kind == tokNe, op.isKeyword("contains"):
		value := p.next()
		if value.kind != tokWord && value.kind != tokString {
			return nil, fmt.Errorf("%w: expected value after %q", ErrBadCondition, op.text)
		}
		cmp := cmpEq
		switch {
		case op.kind == tokNe:
			cmp = cmpNe
		case op.isKeyword("contains"):
			cmp = cmpContains
		}
		return &cmpNode{attr: lead.text, op: cmp, value: value.text}, nil

	case op.isKeyword("in"):
		attr := p.next()
		if attr.kind != tokWord {
			return nil, fmt.Errorf("%w: expected attribute after in", ErrBadCondition)
		}
		return &memberNode{value: lead.text, attr: attr.text}, nil
	}

	return nil, fmt.Errorf("%w: expected operator after %q, got %q", ErrBadCondition, lead.text, op.text)
}

func (p *parser) parseRoleIn() (Node, error) {
	if !p.next().isKeyword("in") {
		return nil, fmt.Errorf("%w: expected in after role", ErrBadCondition)
	}
	values, err := p.parseList()
	if err != nil {
		return nil, err
	}

	roles := make(map[string]bool, len(values))
	for _, v := range values {
		roles[v] = true
	}
	return &roleInNode{roles: roles}, nil
}

func (p *parser) parseDayIn() (Node, error) {
	if !p.next().isKeyword("in") {
		return nil, fmt.Errorf("%w: expected in after day", ErrBadCondition)
	}
	values, err := p.parseList()
	if err != nil {
		return nil, err
	}

	days := make(map[time.Weekday]bool, len(values))
	for _, v := range values {
		day, err := parseWeekday(v)
		if err != nil {
			return nil, err
		}
		days[day] = true
	}
	return &dayInNode{days: days}, nil
}

func (p *parser) parseIPIn() (Node, error) {
	if !p.next().isKeyword("in") {
		return nil, fmt.Errorf("%w: expected in after ip", ErrBadCondition)
	}
	addr := p.next()
	if addr.kind != tokWord {
		return nil, fmt.Errorf("%w: expected address after ip in", ErrBadCondition)
	}

	if strings.Contains(addr.text, "/") {
		_, network, err := net.ParseCIDR(addr.text)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid CIDR %q", ErrBadCondition, addr.text)
		}
		return &ipInNode{network: network}, nil
	}

	ip := net.ParseIP(addr.text)
	if ip == nil {
		return nil, fmt.Errorf("%w: invalid IP %q", ErrBadCondition, addr.text)
	}
	return &ipInNode{exact: ip}, nil
}

func (p *parser) parseTimeBetween() (Node, error) {
	if !p.next().isKeyword("between") {
		return nil, fmt.Errorf("%w: expected between after time", ErrBadCondition)
	}

	start := p.next()
	if start.kind != tokWord {
		return nil, fmt.Errorf("%w: expected start time", ErrBadCondition)
	}
	if p.next().kind != tokDash {
		return nil, fmt.Errorf("%w: expected - between times", ErrBadCondition)
	}
	end := p.next()
	if end.kind != tokWord {
		return nil, fmt.Errorf("%w: expected end time", ErrBadCondition)
	}

	startMin, err := parseTimeOfDay(start.text)
	if err != nil {
		return nil, err
	}
	endMin, err := parseTimeOfDay(end.text)
	if err != nil {
		return nil, err
	}
	return &timeBetweenNode{startMin: startMin, endMin: endMin}, nil
}

func (p *parser) parseList() ([]string, error) {
	if p.next().kind != tokLBracket {
		return nil, fmt.Errorf("%w: expected [", ErrBadCondition)
	}

	var values []string
	for {
		t := p.next()
		if t.kind != tokWord && t.kind != tokString {
			return nil, fmt.Errorf("%w: expected list value, got %q", ErrBadCondition, t.text)
		}
		values = append(values, t.text)

		sep := p.next()
		if sep.kind == tokRBracket {
			return values, nil
		}
		if sep.kind != tokComma {
			return nil, fmt.Errorf("%w: expected , or ] in list", ErrBadCondition)
		}
	}
}

// parseTimeOfDay parses HH:MM into minutes since midnight.
func parseTimeOfDay(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: invalid time %q", ErrBadCondition, s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrBadCondition, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrBadCondition, s)
	}
	return hour*60 + minute, nil
}

// parseWeekday parses a day name, full or three-letter.
func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	case "sun", "sunday":
		return time.Sunday, nil
	default:
		return 0, fmt.Errorf("%w: invalid day %q", ErrBadCondition, s)
	}
}
