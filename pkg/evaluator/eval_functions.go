package evaluator

import (
	"context"
	"fmt"
	"math"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

func (in *interp) evalFunction(ctx context.Context, n *types.Node) (interface{}, error) {
	f := n.Function()
	impl, ok := in.e.opts.Functions.Lookup(f.Name)
	if !ok {
		return nil, in.fail(n, fmt.Errorf("%w: %s", types.ErrUnsupportedFunction, f.Name))
	}

	var args []interface{}
	var err error
	if f.Aggregate {
		args, err = in.aggregateArgs(ctx, n, f)
	} else {
		args, err = in.args(ctx, n, f)
	}
	if err != nil {
		return nil, err
	}

	result, err := impl(ctx, args)
	if err != nil {
		return nil, in.fail(n, err)
	}
	return types.Unwrap(result), nil
}

// args evaluates and coerces the arguments of a scalar function call.
func (in *interp) args(ctx context.Context, n *types.Node, f *types.Function) ([]interface{}, error) {
	args := make([]interface{}, len(n.Children))
	for i, arg := range n.Children {
		p, ok := types.ParamAt(f.Params, i)
		if !ok {
			return nil, in.fail(n, fmt.Errorf("too many arguments for %s", f.Name))
		}
		v, err := in.arg(ctx, arg, p)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (in *interp) arg(ctx context.Context, arg *types.Node, p types.Param) (interface{}, error) {
	if p.Form == types.FormRuleVariable {
		if v := arg.Child(0); v != nil && v.Type == types.NodeVariable {
			if val, ok := in.data.RuleVariables[types.VariableName(v)]; ok {
				return val, nil
			}
			return nil, nil
		}
	}
	v, err := in.eval(ctx, arg)
	if err != nil {
		return nil, err
	}
	return in.coerce(arg, v, p.Type)
}

// aggregateArgs evaluates the leading arguments once and the last argument
// once per period, collecting its non-null values into a []float64.
func (in *interp) aggregateArgs(ctx context.Context, n *types.Node, f *types.Function) ([]interface{}, error) {
	if len(n.Children) == 0 {
		return nil, in.fail(n, fmt.Errorf("%s requires an argument", f.Name))
	}
	last := len(n.Children) - 1
	args := make([]interface{}, len(n.Children))
	for i := 0; i < last; i++ {
		p, _ := types.ParamAt(f.Params, i)
		v, err := in.arg(ctx, n.Children[i], p)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	subject := n.Children[last]
	size := in.vectorSize(subject)
	values := make([]float64, 0, size)

	saved := in.cursor
	defer func() { in.cursor = saved }()
	for i := 0; i < size; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in.cursor = i
		v, err := in.eval(ctx, subject)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		num, err := types.ToNumber(v)
		if err != nil {
			if p, _ := types.ParamAt(f.Params, last); p.Type == types.ValueNumber {
				return nil, in.fail(subject, err)
			}
			// Non-numeric values still count.
			num = math.NaN()
		}
		values = append(values, num.(float64))
	}
	args[last] = values

	in.e.logger.Debug("aggregate evaluated",
		"function", f.Name,
		"periods", size,
		"values", len(values))
	return args, nil
}

// vectorSize is the length of the longest array value among the data items
// of n. Without array values the argument is evaluated once.
func (in *interp) vectorSize(n *types.Node) int {
	size := -1
	n.Walk(func(c *types.Node) bool {
		var v interface{}
		switch c.Type {
		case types.NodeDataItem:
			item, ok := in.expr.DataItemOf(c)
			if !ok {
				return false
			}
			if rv, ok := in.data.RuleVariables[item.String()]; ok {
				v = rv
			} else {
				v, _ = in.data.Items.Get(item)
			}
		case types.NodeVariable:
			name := types.VariableName(c)
			if rv, ok := in.data.RuleVariables[name]; ok {
				v = rv
			} else {
				v = in.data.ProgramVariables[name]
			}
		default:
			return true
		}
		if arr, ok := asVector(types.Unwrap(v)); ok && len(arr) > size {
			size = len(arr)
		}
		return false
	})
	if size < 0 {
		return 1
	}
	return size
}
