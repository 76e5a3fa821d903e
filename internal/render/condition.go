package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Comparison policy: an operand pair compares numerically when both sides
// parse as finite numbers, otherwise as exact (byte-wise) strings. The strict
// forms === and !== mean the same as == and !=.
var operators = map[string]func(cmp int) bool{
	"==":  func(c int) bool { return c == 0 },
	"===": func(c int) bool { return c == 0 },
	"!=":  func(c int) bool { return c != 0 },
	"!==": func(c int) bool { return c != 0 },
	">":   func(c int) bool { return c > 0 },
	"<":   func(c int) bool { return c < 0 },
	">=":  func(c int) bool { return c >= 0 },
	"<=":  func(c int) bool { return c <= 0 },
}

const operatorChars = "=!<>"

type operand struct {
	text   string
	quoted bool
}

// condition is either a single operand (truthiness test) or left op right.
type condition struct {
	raw   string
	left  operand
	op    string
	right operand
}

func (c condition) single() bool {
	return c.op == ""
}

func parseCondition(raw string, pos Pos) (condition, error) {
	cond := condition{raw: raw}
	s := strings.TrimSpace(raw)
	invalid := func(detail string) error {
		return &Error{Kind: ErrInvalidCondition, Subject: raw, Detail: detail, Pos: pos}
	}

	left, rest, err := scanOperand(s)
	if err != nil {
		return cond, invalid(err.Error())
	}
	if left.text == "" && !left.quoted {
		return cond, invalid("missing operand")
	}
	cond.left = left

	rest = strings.TrimLeft(rest, " \t\r\n")
	if rest == "" {
		return cond, nil
	}

	opLen := strings.IndexFunc(rest, func(r rune) bool { return !strings.ContainsRune(operatorChars, r) })
	if opLen < 0 {
		opLen = len(rest)
	}
	if opLen == 0 {
		// "a and b" is a three-part split whose operator is a word.
		word, after, err := scanOperand(rest)
		if err == nil && !word.quoted && word.text != "" {
			right, tail, err := scanOperand(strings.TrimLeft(after, " \t\r\n"))
			if err == nil && (right.text != "" || right.quoted) && strings.TrimSpace(tail) == "" {
				return cond, &Error{Kind: ErrUnsupportedOperator, Subject: word.text, Pos: pos}
			}
		}
		return cond, invalid("expected a single operand or \"left OP right\"")
	}
	op := rest[:opLen]

	right, tail, err := scanOperand(strings.TrimLeft(rest[opLen:], " \t\r\n"))
	if err != nil {
		return cond, invalid(err.Error())
	}
	if right.text == "" && !right.quoted {
		return cond, invalid("missing right operand")
	}
	if strings.TrimSpace(tail) != "" {
		return cond, invalid("expected a single operand or \"left OP right\"")
	}
	if _, ok := operators[op]; !ok {
		return cond, &Error{Kind: ErrUnsupportedOperator, Subject: op, Pos: pos}
	}

	cond.op = op
	cond.right = right
	return cond, nil
}

// scanOperand reads a quoted literal or a bare token that ends at whitespace
// or an operator character.
func scanOperand(s string) (operand, string, error) {
	if s == "" {
		return operand{}, "", nil
	}
	if q := s[0]; q == '"' || q == '\'' {
		end := strings.IndexByte(s[1:], q)
		if end < 0 {
			return operand{}, "", fmt.Errorf("unterminated string literal")
		}
		return operand{text: s[1 : end+1], quoted: true}, s[end+2:], nil
	}
	end := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n' || strings.ContainsRune(operatorChars, r)
	})
	if end < 0 {
		end = len(s)
	}
	return operand{text: s[:end]}, s[end:], nil
}

func evalCondition(raw string, s *scope, pos Pos) (bool, error) {
	cond, err := parseCondition(raw, pos)
	if err != nil {
		return false, err
	}

	if cond.single() {
		v, err := resolveSingle(cond.left, s, pos)
		if err != nil {
			return false, err
		}
		return truthy(v), nil
	}

	left, lok := formatValue(resolveOperand(cond.left, s))
	right, rok := formatValue(resolveOperand(cond.right, s))
	if !lok || !rok {
		return false, &Error{Kind: ErrInvalidCondition, Subject: raw, Detail: "operands must be scalar values", Pos: pos}
	}
	return operators[cond.op](compare(left, right)), nil
}

// resolveSingle looks a truthiness operand up in scope. Bare identifiers must
// be bound; quoted strings, numbers and true/false are literals.
func resolveSingle(o operand, s *scope, pos Pos) (any, error) {
	if o.quoted {
		return o.text, nil
	}
	if v, ok := s.lookup(o.text); ok {
		return v, nil
	}
	switch o.text {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if isName(o.text) {
		return nil, newError(ErrUndefinedVariable, o.text, pos)
	}
	if f, ok := parseNumber(o.text); ok {
		return f, nil
	}
	return o.text, nil
}

// resolveOperand prefers a binding and falls back to the literal token.
func resolveOperand(o operand, s *scope) any {
	if o.quoted {
		return o.text
	}
	if v, ok := s.lookup(o.text); ok {
		return v
	}
	return o.text
}

func compare(left, right string) int {
	lf, lok := parseNumber(left)
	rf, rok := parseNumber(right)
	if lok && rok {
		switch {
		case lf < rf:
			return -1
		case lf > rf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(left, right)
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
