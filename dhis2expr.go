// Package dhis2expr parses, checks, evaluates and renders DHIS2 expressions.
//
// Expressions are written in one of several grammar subsets (modes) such as
// validation rules, indicators, predictors, program indicators and program
// rule conditions. This package is a thin facade over:
//   - Parser: github.com/sandrolain/dhis2expr/pkg/parser
//   - Checker: github.com/sandrolain/dhis2expr/pkg/checker
//   - Evaluator: github.com/sandrolain/dhis2expr/pkg/evaluator
//   - Renderer: github.com/sandrolain/dhis2expr/pkg/render
//   - Builtin functions: github.com/sandrolain/dhis2expr/pkg/functions/builtin
//
// # Quick Start
//
//	result, err := dhis2expr.Eval(ctx, "#{FTRrcoaog83} * 2", types.ModeValidationRule, data)
//
//	// Parse once, evaluate many times
//	expr, err := dhis2expr.Parse("#{FTRrcoaog83} * 2", types.ModeValidationRule)
//	items := expr.DataItems()
//
//	// Share parses between calls
//	c := cache.New(1024)
//	expr, err := dhis2expr.Parse(text, mode, dhis2expr.WithCache(c))
package dhis2expr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sandrolain/dhis2expr/pkg/cache"
	"github.com/sandrolain/dhis2expr/pkg/checker"
	"github.com/sandrolain/dhis2expr/pkg/evaluator"
	"github.com/sandrolain/dhis2expr/pkg/functions"
	"github.com/sandrolain/dhis2expr/pkg/functions/builtin"
	"github.com/sandrolain/dhis2expr/pkg/parser"
	"github.com/sandrolain/dhis2expr/pkg/render"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

// Version returns the current version of dhis2expr.
func Version() string {
	return "v0.1.0-dev"
}

// Option configures the facade functions.
type Option func(*options)

type options struct {
	cache         *cache.Cache
	annotate      bool
	logger        *slog.Logger
	functions     functions.Backend
	variableTypes map[string]types.ValueType
}

// WithCache reuses parsed expressions from c.
func WithCache(c *cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithAnnotate keeps whitespace and comments so that rendering reproduces
// the source exactly.
func WithAnnotate(enable bool) Option {
	return func(o *options) {
		o.annotate = enable
	}
}

// WithLogger sets the logger handed to every stage.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFunctions replaces the builtin function backend.
func WithFunctions(backend functions.Backend) Option {
	return func(o *options) {
		o.functions = backend
	}
}

// WithVariableTypes declares program rule variable types for Check.
func WithVariableTypes(vars map[string]types.ValueType) Option {
	return func(o *options) {
		o.variableTypes = vars
	}
}

var defaultFunctions = sync.OnceValue(func() functions.Backend {
	return builtin.New()
})

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.functions == nil {
		o.functions = defaultFunctions()
	}
	return o
}

// Parse parses text in mode.
func Parse(text string, mode types.Mode, opts ...Option) (*types.Expression, error) {
	o := newOptions(opts)
	return o.parse(text, mode)
}

func (o options) parse(text string, mode types.Mode) (*types.Expression, error) {
	parse := func() (*types.Expression, error) {
		return parser.Parse(text, mode, parser.WithAnnotate(o.annotate), parser.WithLogger(o.logger))
	}
	if o.cache == nil {
		return parse()
	}
	return o.cache.GetOrParse(cache.Key{Text: text, Mode: mode, Annotate: o.annotate}, parse)
}

// MustParse is like Parse but panics if the expression cannot be parsed.
// It simplifies safe initialization of global variables.
func MustParse(text string, mode types.Mode, opts ...Option) *types.Expression {
	expr, err := Parse(text, mode, opts...)
	if err != nil {
		panic(fmt.Sprintf("dhis2expr: Parse(%q): %v", text, err))
	}
	return expr
}

// Check parses text and type-checks it. A syntax error is returned as the
// error; type findings are returned as issues, which may contain warnings
// only.
func Check(text string, mode types.Mode, opts ...Option) (types.Issues, error) {
	o := newOptions(opts)
	expr, err := o.parse(text, mode)
	if err != nil {
		return nil, err
	}
	return checker.Check(expr,
		checker.WithVariableTypes(o.variableTypes),
		checker.WithLogger(o.logger)), nil
}

// Eval parses text and evaluates it against data.
func Eval(ctx context.Context, text string, mode types.Mode, data *evaluator.Data, opts ...Option) (interface{}, error) {
	o := newOptions(opts)
	expr, err := o.parse(text, mode)
	if err != nil {
		return nil, err
	}
	ev := evaluator.New(evaluator.WithFunctions(o.functions), evaluator.WithLogger(o.logger))
	return ev.Eval(ctx, expr, data)
}

// Normalise renders text in canonical form, or exactly as written when
// annotation is enabled.
func Normalise(text string, mode types.Mode, opts ...Option) (string, error) {
	expr, err := Parse(text, mode, opts...)
	if err != nil {
		return "", err
	}
	return render.Text(expr), nil
}

// Describe renders text with UIDs and variable names replaced by names.
func Describe(text string, mode types.Mode, names map[string]string, opts ...Option) (string, error) {
	expr, err := Parse(text, mode, opts...)
	if err != nil {
		return "", err
	}
	return render.Describe(expr, names), nil
}

// Regenerate renders text with constants and org unit group counts replaced
// by their values.
func Regenerate(text string, mode types.Mode, values types.DataItemValues, opts ...Option) (string, error) {
	expr, err := Parse(text, mode, opts...)
	if err != nil {
		return "", err
	}
	return render.Regenerate(expr, values), nil
}
