// Package types defines the core model of the expression language.
//
// This package contains type definitions for:
//   - Expression: a parsed, transformed and resolved expression
//   - Node: AST nodes with their NodeArena
//   - ValueType: the static type lattice and value coercion
//   - DataItem, Variable, QueryModifiers: resolved identities of references
//   - the data-driven registry of functions, modifiers and named values
//   - ParseError, EvaluationError, Issues: structured errors
package types

import "sort"

// Expression is a parsed expression.
//
// The tree is read-only once the Expression is constructed. An Expression can
// be checked, evaluated and rendered any number of times and is safe for
// concurrent use by multiple goroutines.
type Expression struct {
	root      *Node
	wrapper   *Node
	source    string
	mode      Mode
	annotated bool
	nodes     int

	items map[int]DataItem
	vars  map[int]Variable
}

// ExpressionConfig carries the parts an Expression is built from.
type ExpressionConfig struct {
	Root      *Node
	Wrapper   *Node
	Source    string
	Mode      Mode
	Annotated bool
	Nodes     int
	Items     map[int]DataItem
	Variables map[int]Variable
}

// NewExpression creates an Expression.
func NewExpression(cfg ExpressionConfig) *Expression {
	return &Expression{
		root:      cfg.Root,
		wrapper:   cfg.Wrapper,
		source:    cfg.Source,
		mode:      cfg.Mode,
		annotated: cfg.Annotated,
		nodes:     cfg.Nodes,
		items:     cfg.Items,
		vars:      cfg.Variables,
	}
}

// AST returns the root node. When the source is a single expression this is
// that expression's node, never the synthetic wrapper.
func (e *Expression) AST() *Node { return e.root }

// Wrapper returns the synthetic root that owns leading and trailing
// whitespace. Its only child is AST().
func (e *Expression) Wrapper() *Node { return e.wrapper }

// Source returns the original text.
func (e *Expression) Source() string { return e.source }

// Mode returns the grammar subset the expression was parsed with.
func (e *Expression) Mode() Mode { return e.mode }

// Annotated reports whether whitespace and comments were captured.
func (e *Expression) Annotated() bool { return e.annotated }

// NodeCount returns the number of nodes created by the parse.
func (e *Expression) NodeCount() int { return e.nodes }

// DataItemOf returns the resolved identity of a DataItem node.
func (e *Expression) DataItemOf(n *Node) (DataItem, bool) {
	d, ok := e.items[n.Seq]
	return d, ok
}

// VariableOf returns the resolved identity of a Variable node.
func (e *Expression) VariableOf(n *Node) (Variable, bool) {
	v, ok := e.vars[n.Seq]
	return v, ok
}

// DataItems returns the distinct data items referenced by the expression,
// in source order.
func (e *Expression) DataItems() []DataItem {
	var out []DataItem
	seen := make(map[string]bool)
	for _, seq := range sortedKeys(e.items) {
		d := e.items[seq]
		if k := d.Key(); !seen[k] {
			seen[k] = true
			out = append(out, d)
		}
	}
	return out
}

// Variables returns the distinct variables referenced by the expression,
// in source order.
func (e *Expression) Variables() []Variable {
	var out []Variable
	seen := make(map[string]bool)
	for _, seq := range sortedKeys(e.vars) {
		v := e.vars[seq]
		if k := v.Key(); !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

// UIDs returns the distinct IDs used by the expression's data items, in
// source order. Wildcards and reporting-rate metric names are skipped.
func (e *Expression) UIDs() []ID {
	var out []ID
	seen := make(map[ID]bool)
	for _, d := range e.DataItems() {
		for _, id := range d.IDs() {
			if id.IsWildcard() || id.Kind == IDReportingRateMetric {
				continue
			}
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// String returns the original source.
func (e *Expression) String() string {
	return e.source
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
