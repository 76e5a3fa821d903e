package render

import (
	"errors"
	"fmt"
)

// Render failure kinds. Every error returned by this package wraps exactly one
// of these, so callers can branch with errors.Is.
var (
	ErrUndefinedVariable   = errors.New("undefined variable")
	ErrInvalidCondition    = errors.New("invalid condition")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrInvalidLoopSource   = errors.New("invalid loop source")
	ErrMaxDepthExceeded    = errors.New("maximum template nesting depth exceeded")
	ErrSyntax              = errors.New("template syntax error")
)

var kindNames = map[error]string{
	ErrUndefinedVariable:   "undefined_variable",
	ErrInvalidCondition:    "invalid_condition",
	ErrUnsupportedOperator: "unsupported_operator",
	ErrInvalidLoopSource:   "invalid_loop_source",
	ErrMaxDepthExceeded:    "max_depth_exceeded",
	ErrSyntax:              "syntax",
}

// Pos is a 1-based line and column inside a template body.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Pos) String() string {
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// Error describes why a render invocation was aborted.
type Error struct {
	// Kind is one of the Err* sentinels above.
	Kind error
	// Subject is the offending name, condition, operator or loop source.
	Subject string
	// Detail is optional extra context.
	Detail string
	Pos    Pos
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Subject != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Subject)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Pos.Line > 0 {
		msg += " at " + e.Pos.String()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, subject string, pos Pos) *Error {
	return &Error{Kind: kind, Subject: subject, Pos: pos}
}

func syntaxErrorf(pos Pos, format string, args ...any) *Error {
	return &Error{Kind: ErrSyntax, Detail: fmt.Sprintf(format, args...), Pos: pos}
}

// KindName returns a stable snake_case label for the failure kind wrapped by
// err, or "internal" when err did not come from this package.
func KindName(err error) string {
	for kind, name := range kindNames {
		if errors.Is(err, kind) {
			return name
		}
	}
	return "internal"
}
