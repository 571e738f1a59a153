package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

// decimalCtx carries 34 significant digits, the precision of IEEE decimal128.
var decimalCtx = apd.BaseContext.WithPrecision(34)

func (in *interp) evalUnary(ctx context.Context, n *types.Node) (interface{}, error) {
	op := n.UnaryOp()
	if op == types.OpDistinct {
		return nil, in.fail(n, fmt.Errorf("distinct cannot be evaluated"))
	}
	v, err := in.eval(ctx, n.Children[0])
	if err != nil {
		return nil, err
	}
	switch op {
	case types.OpNot:
		b, err := in.coerce(n.Children[0], v, types.ValueBoolean)
		if err != nil || b == nil {
			return nil, err
		}
		return !b.(bool), nil
	case types.OpPlus, types.OpMinus:
		f, err := in.coerce(n.Children[0], v, types.ValueNumber)
		if err != nil || f == nil {
			return nil, err
		}
		if op == types.OpMinus {
			return -f.(float64), nil
		}
		return f, nil
	default:
		panic(fmt.Sprintf("unhandled unary operator %s", op))
	}
}

func (in *interp) evalBinary(ctx context.Context, n *types.Node) (interface{}, error) {
	left, err := in.eval(ctx, n.Children[0])
	if err != nil {
		return nil, err
	}
	right, err := in.eval(ctx, n.Children[1])
	if err != nil {
		return nil, err
	}

	op := n.BinaryOp()
	switch op {
	case types.OpEq:
		return equal(left, right), nil
	case types.OpNeq:
		return !equal(left, right), nil
	case types.OpAnd, types.OpOr:
		l, err := in.coerce(n.Children[0], left, types.ValueBoolean)
		if err != nil {
			return nil, err
		}
		r, err := in.coerce(n.Children[1], right, types.ValueBoolean)
		if err != nil {
			return nil, err
		}
		if op == types.OpAnd {
			return and(l, r), nil
		}
		return or(l, r), nil
	case types.OpLt, types.OpGt, types.OpLe, types.OpGe:
		c, err := in.compare(n, left, right)
		if err != nil || c == nil {
			return nil, err
		}
		switch op {
		case types.OpLt:
			return *c < 0, nil
		case types.OpGt:
			return *c > 0, nil
		case types.OpLe:
			return *c <= 0, nil
		default:
			return *c >= 0, nil
		}
	}

	l, err := in.coerce(n.Children[0], left, types.ValueNumber)
	if err != nil {
		return nil, err
	}
	r, err := in.coerce(n.Children[1], right, types.ValueNumber)
	if err != nil {
		return nil, err
	}
	if l == nil || r == nil {
		return nil, nil
	}
	return arithmetic(op, l.(float64), r.(float64)), nil
}

// arithmetic computes with decimals. NaN or infinite operands, and a zero
// divisor for '/' and '%', use float64 semantics instead.
func arithmetic(op types.BinaryOperator, l, r float64) float64 {
	if math.IsNaN(l) || math.IsNaN(r) || math.IsInf(l, 0) || math.IsInf(r, 0) ||
		((op == types.OpDiv || op == types.OpMod) && r == 0) {
		return floatArithmetic(op, l, r)
	}

	var x, y, z apd.Decimal
	if _, err := x.SetFloat64(l); err != nil {
		return floatArithmetic(op, l, r)
	}
	if _, err := y.SetFloat64(r); err != nil {
		return floatArithmetic(op, l, r)
	}

	var err error
	switch op {
	case types.OpAdd:
		_, err = decimalCtx.Add(&z, &x, &y)
	case types.OpSub:
		_, err = decimalCtx.Sub(&z, &x, &y)
	case types.OpMul:
		_, err = decimalCtx.Mul(&z, &x, &y)
	case types.OpDiv:
		_, err = decimalCtx.Quo(&z, &x, &y)
	case types.OpMod:
		_, err = decimalCtx.Rem(&z, &x, &y)
	case types.OpExp:
		_, err = decimalCtx.Pow(&z, &x, &y)
	default:
		panic(fmt.Sprintf("unhandled arithmetic operator %s", op))
	}
	if err != nil {
		return floatArithmetic(op, l, r)
	}
	f, err := z.Float64()
	if err != nil {
		return floatArithmetic(op, l, r)
	}
	return f
}

func floatArithmetic(op types.BinaryOperator, l, r float64) float64 {
	switch op {
	case types.OpAdd:
		return l + r
	case types.OpSub:
		return l - r
	case types.OpMul:
		return l * r
	case types.OpDiv:
		return l / r
	case types.OpMod:
		return math.Mod(l, r)
	case types.OpExp:
		return math.Pow(l, r)
	default:
		panic(fmt.Sprintf("unhandled arithmetic operator %s", op))
	}
}

// and is three-valued conjunction; nil is unknown.
func and(l, r interface{}) interface{} {
	if l == false || r == false {
		return false
	}
	if l == nil || r == nil {
		return nil
	}
	return true
}

// or is three-valued disjunction; nil is unknown.
func or(l, r interface{}) interface{} {
	if l == true || r == true {
		return true
	}
	if l == nil || r == nil {
		return nil
	}
	return false
}

// equal compares two values, coercing across kinds: a boolean side compares
// as booleans, then a number side as numbers, otherwise as text. null equals
// only null.
func equal(l, r interface{}) bool {
	l, r = types.Unwrap(l), types.Unwrap(r)
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	_, lb := l.(bool)
	_, rb := r.(bool)
	if lb || rb {
		x, err1 := types.ToBoolean(l)
		y, err2 := types.ToBoolean(r)
		return err1 == nil && err2 == nil && x == y
	}
	_, lf := l.(float64)
	_, rf := r.(float64)
	if lf || rf {
		x, err1 := types.ToNumber(l)
		y, err2 := types.ToNumber(r)
		return err1 == nil && err2 == nil && x.(float64) == y.(float64)
	}
	lt, lok := l.(time.Time)
	rt, rok := r.(time.Time)
	if lok && rok {
		return lt.Equal(rt)
	}
	return types.FormatValue(l) == types.FormatValue(r)
}

// compare orders two values: as text when both are strings, as dates when
// both are dates, otherwise as numbers. It returns nil when either side is
// null.
func (in *interp) compare(n *types.Node, left, right interface{}) (*int, error) {
	left, right = types.Unwrap(left), types.Unwrap(right)
	if left == nil || right == nil {
		return nil, nil
	}
	var c int
	ls, lok := left.(string)
	rs, rok := right.(string)
	lt, ltok := left.(time.Time)
	rt, rtok := right.(time.Time)
	switch {
	case lok && rok:
		c = strings.Compare(ls, rs)
	case ltok && rtok:
		c = lt.Compare(rt)
	default:
		l, err := in.coerce(n.Children[0], left, types.ValueNumber)
		if err != nil {
			return nil, err
		}
		r, err := in.coerce(n.Children[1], right, types.ValueNumber)
		if err != nil {
			return nil, err
		}
		x, y := l.(float64), r.(float64)
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	}
	return &c, nil
}

// coerce converts v to t, failing with the rendered source of n.
func (in *interp) coerce(n *types.Node, v interface{}, t types.ValueType) (interface{}, error) {
	out, err := types.Coerce(v, t)
	if err != nil {
		return nil, in.fail(n, err)
	}
	return out, nil
}
