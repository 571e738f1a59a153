// Package functions defines the contract between the evaluator and the
// implementations of named functions.
//
// The evaluator coerces every argument to the type declared in the function
// registry of package types and then calls the Func found in a Backend.
// Aggregate functions receive their per-period values as the last argument,
// a []float64.
//
// # Example
//
//	reg := functions.NewRegistry()
//	reg.Register("greatest", func(ctx context.Context, args []interface{}) (interface{}, error) {
//	    ...
//	})
//	ev := evaluator.New(evaluator.WithFunctions(reg))
package functions

import (
	"context"
	"sort"
	"sync"
)

// Func implements one named function. args holds the coerced arguments in
// order; a nil entry is a null value. Parameters declared as rule variable
// references receive a types.VariableValue or nil.
type Func func(ctx context.Context, args []interface{}) (interface{}, error)

// Backend resolves function names to implementations.
type Backend interface {
	Lookup(name string) (Func, bool)
}

// Registry is a Backend backed by a map. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds or replaces the implementation of name.
func (r *Registry) Register(name string, fn Func) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	return r
}

// Lookup returns the implementation of name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain is a Backend that consults each backend in order.
type Chain []Backend

// Lookup returns the first implementation found.
func (c Chain) Lookup(name string) (Func, bool) {
	for _, b := range c {
		if b == nil {
			continue
		}
		if fn, ok := b.Lookup(name); ok {
			return fn, true
		}
	}
	return nil, false
}
