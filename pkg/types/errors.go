package types

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Sentinel errors for errors.Is checks.
var (
	ErrUnsupportedFunction = errors.New("unsupported function")
	ErrUnknownVariable     = errors.New("unknown variable")
	ErrUnknownConstant     = errors.New("unknown constant")
)

// ParseError is a syntax error. Start and End are character indexes into
// Source; parsing stops at the first error.
type ParseError struct {
	Message string
	Source  string
	Start   int
	End     int

	// Suggestion is the closest known name for an unknown or invalid one.
	// It is informational and not part of Error().
	Suggestion string
}

// NewParseError creates a ParseError covering [start, end).
func NewParseError(source string, start, end int, format string, args ...interface{}) *ParseError {
	return &ParseError{
		Message: fmt.Sprintf(format, args...),
		Source:  source,
		Start:   start,
		End:     end,
	}
}

// Line returns the 1-based line and the 0-based column of Start.
func (e *ParseError) Line() (line, column int) {
	src := []rune(e.Source)
	start := min(max(e.Start, 0), len(src))
	line = 1
	lineStart := 0
	for i := 0; i < start; i++ {
		if src[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return line, start - lineStart
}

// Excerpt returns the source line containing Start.
func (e *ParseError) Excerpt() string {
	src := []rune(e.Source)
	start := min(max(e.Start, 0), len(src))
	lineStart := start
	for lineStart > 0 && src[lineStart-1] != '\n' {
		lineStart--
	}
	lineEnd := start
	for lineEnd < len(src) && src[lineEnd] != '\n' {
		lineEnd++
	}
	return strings.TrimSuffix(string(src[lineStart:lineEnd]), "\r")
}

// Pointer returns the marker line: a single caret for spans of at most one
// character, otherwise ^---^ across the span (clipped to the line).
func (e *ParseError) Pointer() string {
	_, col := e.Line()
	span := e.End - e.Start
	if rest := len([]rune(e.Excerpt())) - col; span > rest {
		span = rest
	}
	pad := strings.Repeat(" ", col)
	if span <= 1 {
		return pad + "^"
	}
	return pad + "^" + strings.Repeat("-", span-2) + "^"
}

// Error renders the message, the position, the source line and the pointer.
func (e *ParseError) Error() string {
	line, col := e.Line()
	return fmt.Sprintf("%s\n\tat line:%d character:%d\n\t%s\n\t%s", e.Message, line, col, e.Excerpt(), e.Pointer())
}

// EvaluationError is a runtime failure. Expression is the rendered
// sub-expression that failed.
type EvaluationError struct {
	Message    string
	Expression string
	Err        error
}

// NewEvaluationError creates an EvaluationError wrapping cause.
func NewEvaluationError(expression string, cause error) *EvaluationError {
	return &EvaluationError{Message: cause.Error(), Expression: expression, Err: cause}
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	if e.Expression == "" {
		return e.Message
	}
	return fmt.Sprintf("%s in expression: %s", e.Message, e.Expression)
}

// Unwrap returns the wrapped error.
func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// CoercionError reports a value that cannot be converted to a target type.
type CoercionError struct {
	Value  interface{}
	Target ValueType
}

// Error implements the error interface.
func (e *CoercionError) Error() string {
	return fmt.Sprintf("Could not coerce %s '%s' to %s", KindOf(e.Value), FormatValue(e.Value), targetName(e.Target))
}

// Severity of a type check issue.
type Severity uint8

// Severities.
const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// LazyText is a string computed on first use.
type LazyText struct {
	once   sync.Once
	render func() string
	text   string
}

// NewLazyText wraps render so it runs at most once.
func NewLazyText(render func() string) *LazyText {
	return &LazyText{render: render}
}

func (l *LazyText) String() string {
	l.once.Do(func() {
		l.text = l.render()
		l.render = nil
	})
	return l.text
}

// Issue is one finding of the type checker.
type Issue struct {
	Severity Severity
	Position fmt.Stringer
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Severity, i.Message)
}

// Issues is the list of findings of a full check.
type Issues []Issue

// Errors returns the issues with error severity.
func (is Issues) Errors() []Issue { return is.filter(SeverityError) }

// Warnings returns the issues with warning severity.
func (is Issues) Warnings() []Issue { return is.filter(SeverityWarning) }

func (is Issues) filter(s Severity) []Issue {
	var out []Issue
	for _, i := range is {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

// Err returns a *ValidationError when at least one issue is an error, else nil.
func (is Issues) Err() error {
	errs := is.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs, Warnings: is.Warnings()}
}

// ValidationError is the accumulated outcome of a failed check.
type ValidationError struct {
	Errors   []Issue
	Warnings []Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, issue := range e.Errors {
		msgs[i] = issue.Message
	}
	return fmt.Sprintf("%d error(s), %d warning(s): %s", len(e.Errors), len(e.Warnings), strings.Join(msgs, "; "))
}
