// Package evaluator implements the expression interpreter.
//
// The evaluator walks a parsed expression and computes its value from
// caller-supplied Data. It supports:
//   - three-valued boolean logic with null propagation
//   - decimal arithmetic with floating-point fallback for NaN, Infinity and
//     division by zero
//   - aggregate functions over per-period value vectors
//   - pluggable function implementations through functions.Backend
//
// # Example
//
//	ev := evaluator.New(evaluator.WithFunctions(builtin.New()))
//	result, err := ev.Eval(ctx, expr, &evaluator.Data{Items: values})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Concurrency
//
// An Evaluator holds no per-evaluation state and may be shared. The cursor
// used while evaluating aggregate functions lives in a per-call interpreter.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sandrolain/dhis2expr/pkg/functions"
	"github.com/sandrolain/dhis2expr/pkg/render"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

// Evaluator evaluates expressions against data.
type Evaluator struct {
	opts   EvalOptions
	logger *slog.Logger
}

// EvalOptions configures evaluator behavior.
type EvalOptions struct {
	// Functions resolves named functions. Without it every function call
	// fails as unsupported.
	Functions functions.Backend
	// Logger for structured logging.
	Logger *slog.Logger
}

// EvalOption configures evaluation behavior.
type EvalOption func(*EvalOptions)

// WithFunctions sets the function backend.
func WithFunctions(backend functions.Backend) EvalOption {
	return func(opts *EvalOptions) {
		opts.Functions = backend
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EvalOption {
	return func(opts *EvalOptions) {
		opts.Logger = logger
	}
}

// New creates a new Evaluator.
func New(opts ...EvalOption) *Evaluator {
	var options EvalOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Functions == nil {
		options.Functions = functions.NewRegistry()
	}
	return &Evaluator{opts: options, logger: options.Logger}
}

// Eval evaluates expr against data. data may be nil.
//
// The result is nil (null), float64, bool, string, time.Time or, for a bare
// array-valued item, []interface{}. Failures are *types.EvaluationError.
func (e *Evaluator) Eval(ctx context.Context, expr *types.Expression, data *Data) (interface{}, error) {
	if expr == nil || expr.AST() == nil {
		return nil, fmt.Errorf("invalid expression")
	}
	if data == nil {
		data = &Data{}
	}
	ctx = WithData(ctx, data)
	ctx = context.WithValue(ctx, modeKey{}, expr.Mode())

	in := &interp{
		e:      e,
		expr:   expr,
		data:   data,
		cursor: -1,
	}
	return in.eval(ctx, expr.AST())
}

// EvalNode evaluates the subtree n of expr. It serves callers that need the
// value of a part, such as the type checker folding literal arguments.
func (e *Evaluator) EvalNode(ctx context.Context, expr *types.Expression, n *types.Node, data *Data) (interface{}, error) {
	if data == nil {
		data = &Data{}
	}
	ctx = WithData(ctx, data)
	ctx = context.WithValue(ctx, modeKey{}, expr.Mode())
	in := &interp{e: e, expr: expr, data: data, cursor: -1}
	return in.eval(ctx, n)
}

// interp is the state of one evaluation.
type interp struct {
	e    *Evaluator
	expr *types.Expression
	data *Data
	// cursor is the index into array-valued items while an aggregate
	// function's argument is evaluated, -1 otherwise.
	cursor int
}

func (in *interp) eval(ctx context.Context, n *types.Node) (interface{}, error) {
	switch n.Type {
	case types.NodePar, types.NodeArgument:
		if len(n.Children) != 1 {
			return nil, in.fail(n, fmt.Errorf("expected a single value"))
		}
		return in.eval(ctx, n.Children[0])
	case types.NodeUnaryOperator:
		return in.evalUnary(ctx, n)
	case types.NodeBinaryOperator:
		return in.evalBinary(ctx, n)
	case types.NodeFunction:
		return in.evalFunction(ctx, n)
	case types.NodeModifier:
		return nil, in.fail(n, fmt.Errorf("modifier %s has no value", n.Raw))
	case types.NodeDataItem:
		return in.evalDataItem(n)
	case types.NodeVariable:
		return in.evalVariable(n)
	case types.NodeUid:
		return n.UID().Value, nil
	case types.NodeIdentifier:
		return n.Raw, nil
	case types.NodeNamedValue:
		v, ok := in.data.NamedValues[n.NamedValue()]
		if !ok {
			return nil, in.fail(n, fmt.Errorf("%w: [%s]", types.ErrUnknownConstant, n.NamedValue()))
		}
		return types.Unwrap(v), nil
	case types.NodeNumber:
		return n.Number(), nil
	case types.NodeInteger:
		return float64(n.Integer()), nil
	case types.NodeString:
		return n.Text(), nil
	case types.NodeDate:
		return n.Date(), nil
	case types.NodeBoolean:
		return n.Bool(), nil
	case types.NodeNull:
		return nil, nil
	default:
		panic(fmt.Sprintf("unhandled node type %s", n.Type))
	}
}

func (in *interp) evalDataItem(n *types.Node) (interface{}, error) {
	item, ok := in.expr.DataItemOf(n)
	if !ok {
		return nil, in.fail(n, fmt.Errorf("unresolved data item"))
	}
	if v, ok := in.data.RuleVariables[item.String()]; ok {
		return in.pick(v), nil
	}
	v, _ := in.data.Items.Get(item)
	return in.pick(v), nil
}

func (in *interp) evalVariable(n *types.Node) (interface{}, error) {
	name := types.VariableName(n)
	if v, ok := in.data.RuleVariables[name]; ok {
		return in.pick(v), nil
	}
	if v, ok := in.data.ProgramVariables[name]; ok {
		return in.pick(v), nil
	}
	return nil, in.fail(n, fmt.Errorf("%w: %s", types.ErrUnknownVariable, name))
}

// pick unwraps v and, inside an aggregate, selects the cursor element of an
// array value.
func (in *interp) pick(v interface{}) interface{} {
	v = types.Unwrap(v)
	arr, ok := asVector(v)
	if !ok {
		return v
	}
	if in.cursor < 0 {
		return arr
	}
	if in.cursor >= len(arr) {
		return nil
	}
	return types.Unwrap(arr[in.cursor])
}

// asVector returns v as a slice when it is one of the array forms callers
// supply.
func asVector(v interface{}) ([]interface{}, bool) {
	switch x := v.(type) {
	case []interface{}:
		return x, true
	case []float64:
		out := make([]interface{}, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, true
	case []string:
		out := make([]interface{}, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// fail wraps err into an EvaluationError naming the re-rendered node.
func (in *interp) fail(n *types.Node, err error) error {
	return types.NewEvaluationError(render.Normalise(n), err)
}
