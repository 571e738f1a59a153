// Package builtin provides the default implementations of the registry
// functions: common functions, d2: program functions and the aggregate
// reducers.
//
// Arguments arrive already coerced to their declared types, so an
// implementation only deals with float64, bool, string, time.Time,
// types.VariableValue, []float64 and nil.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/sandrolain/dhis2expr/pkg/functions"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

// New returns a registry holding every builtin function.
func New() *functions.Registry {
	r := functions.NewRegistry()
	for name, fn := range common() {
		r.Register(name, fn)
	}
	for name, fn := range aggregates() {
		r.Register(name, fn)
	}
	for name, fn := range d2(r) {
		r.Register(name, fn)
	}
	return r
}

// nullSafe wraps fn so that it returns null when any of the first n
// arguments is null.
func nullSafe(n int, fn functions.Func) functions.Func {
	return func(ctx context.Context, args []interface{}) (interface{}, error) {
		for i := 0; i < n && i < len(args); i++ {
			if args[i] == nil {
				return nil, nil
			}
		}
		return fn(ctx, args)
	}
}

func num(v interface{}) float64 {
	f, ok := v.(float64)
	if !ok {
		panic(fmt.Sprintf("expected a number, got %T", v))
	}
	return f
}

func str(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		panic(fmt.Sprintf("expected a string, got %T", v))
	}
	return s
}

func date(v interface{}) time.Time {
	t, ok := v.(time.Time)
	if !ok {
		panic(fmt.Sprintf("expected a date, got %T", v))
	}
	return t
}

// optional returns args[i] or nil when absent.
func optional(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// variable returns the rule variable passed as args[i], or nil.
func variable(args []interface{}, i int) types.VariableValue {
	if i >= len(args) {
		return nil
	}
	v, _ := args[i].(types.VariableValue)
	return v
}
