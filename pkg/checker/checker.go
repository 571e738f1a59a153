// Package checker implements the static type checker.
//
// Check visits every operator, function and modifier of an expression and
// compares the static type of each argument with the declared parameter
// type. Findings are accumulated over the whole tree:
//   - a literal argument that cannot be converted is an error
//   - an argument that may be convertible at runtime is a warning
//   - an argument that can never be converted is an error
//
// # Example
//
//	issues := checker.Check(expr, checker.WithVariableTypes(vars))
//	if err := issues.Err(); err != nil {
//	    log.Fatal(err)
//	}
package checker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sandrolain/dhis2expr/pkg/evaluator"
	"github.com/sandrolain/dhis2expr/pkg/render"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

// CheckOption configures a check.
type CheckOption func(*CheckOptions)

// CheckOptions holds checker configuration.
type CheckOptions struct {
	// VariableTypes declares the value types of program rule variables.
	VariableTypes map[string]types.ValueType
	// Logger receives the summary record. Defaults to slog.Default().
	Logger *slog.Logger
}

// WithVariableTypes declares program rule variable types.
func WithVariableTypes(vars map[string]types.ValueType) CheckOption {
	return func(opts *CheckOptions) {
		opts.VariableTypes = vars
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CheckOption {
	return func(opts *CheckOptions) {
		opts.Logger = logger
	}
}

// Check type-checks expr and returns every issue found.
func Check(expr *types.Expression, opts ...CheckOption) types.Issues {
	var options CheckOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	c := &checker{expr: expr, vars: options.VariableTypes, eval: evaluator.New()}
	c.visit(expr.AST())

	options.Logger.Debug("type check completed",
		"errors", len(c.issues.Errors()),
		"warnings", len(c.issues.Warnings()))
	return c.issues
}

type checker struct {
	expr   *types.Expression
	vars   map[string]types.ValueType
	eval   *evaluator.Evaluator
	issues types.Issues
}

// slot is one argument position to check.
type slot struct {
	node     *types.Node
	expected types.ValueType
	where    string
}

func (c *checker) visit(n *types.Node) {
	switch n.Type {
	case types.NodeUnaryOperator:
		op := n.UnaryOp()
		c.checkSlots(op.String(), []slot{{n.Child(0), op.OperandType(), "operand"}})
	case types.NodeBinaryOperator:
		op := n.BinaryOp()
		t := op.OperandType()
		c.checkSlots(op.String(), []slot{
			{n.Child(0), t, "left operand"},
			{n.Child(1), t, "right operand"},
		})
	case types.NodeFunction:
		f := n.Function()
		c.checkSlots(f.Name, paramSlots(f.Params, n.Children))
	case types.NodeModifier:
		m := n.ModifierSpec()
		c.checkSlots(m.Name, paramSlots(m.Params, n.Children))
	}

	for _, child := range n.Children {
		c.visit(child)
	}
	for _, m := range n.Trailing {
		c.visit(m)
	}
}

// paramSlots pairs expression arguments with their declared parameters.
func paramSlots(params []types.Param, args []*types.Node) []slot {
	var slots []slot
	for i, arg := range args {
		p, ok := types.ParamAt(params, i)
		if !ok || p.Form != types.FormExpr {
			continue
		}
		slots = append(slots, slot{arg, p.Type, fmt.Sprintf("argument %d", i+1)})
	}
	return slots
}

func (c *checker) checkSlots(owner string, slots []slot) {
	var same []slot
	for _, s := range slots {
		if s.node == nil {
			continue
		}
		if s.expected == types.ValueSame {
			same = append(same, s)
			continue
		}
		c.checkSlot(owner, s)
	}
	c.checkSame(owner, same)
}

func (c *checker) checkSlot(owner string, s slot) {
	actual := types.InferType(s.node, c.vars)
	if actual.IsAssignableTo(s.expected) {
		return
	}
	if types.IsStatic(s.node) {
		v, err := c.eval.EvalNode(context.Background(), c.expr, s.node, nil)
		if err != nil {
			// The failing part is reported where it occurs.
			return
		}
		if _, err := types.Coerce(v, s.expected); err != nil {
			c.report(types.SeverityError, s.node, "Literal expression %s cannot be converted to type %s expected by %s",
				render.Normalise(s.node), s.expected, owner)
		}
		return
	}
	severity := types.SeverityError
	if actual.IsMaybeAssignableTo(s.expected) {
		severity = types.SeverityWarning
	}
	c.report(severity, s.node, "Incompatible type for %s of %s, expected %s but was: %s",
		s.where, owner, s.expected, actual)
}

// checkSame verifies that all SAME slots agree on one concrete type.
func (c *checker) checkSame(owner string, slots []slot) {
	var first *slot
	var want types.ValueType
	for i := range slots {
		s := &slots[i]
		t := types.InferType(s.node, c.vars)
		if t == types.ValueMixed {
			continue
		}
		if first == nil {
			first, want = s, t
			continue
		}
		if t == want {
			continue
		}
		severity := types.SeverityError
		if t.IsMaybeAssignableTo(want) {
			severity = types.SeverityWarning
		}
		c.report(severity, s.node, "Incompatible type for %s of %s, expected %s like %s but was: %s",
			s.where, owner, want, first.where, t)
	}
}

func (c *checker) report(severity types.Severity, n *types.Node, format string, args ...interface{}) {
	c.issues = append(c.issues, types.Issue{
		Severity: severity,
		Position: types.NewLazyText(func() string { return render.Normalise(n) }),
		Message:  fmt.Sprintf(format, args...),
	})
}
