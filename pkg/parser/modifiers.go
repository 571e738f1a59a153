package parser

import (
	"github.com/sandrolain/dhis2expr/pkg/render"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

// propagate attaches modifiers to the data items and program variables they
// govern, top-down:
//   - inside an aggregate function every item receives an implicit
//     periodAggregation modifier
//   - inside subExpression every item is tagged with the argument's text
//   - a Modifier sibling is moved onto the items of the nearest preceding
//     non-modifier sibling, which keeps it as Trailing for rendering
func (p *parser) propagate(n *types.Node) {
	if n.Type == types.NodeFunction && n.Function().Aggregate {
		m := p.implicitModifier(types.ModPeriodAggregation)
		forEachTarget(n.Children, func(t *types.Node) { t.AddModifier(m) })
	}

	if len(n.Children) > 0 {
		kept := n.Children[:0:0]
		for _, c := range n.Children {
			if c.Type != types.NodeModifier || len(kept) == 0 {
				kept = append(kept, c)
				continue
			}
			target := kept[len(kept)-1]
			forEachTarget([]*types.Node{target}, func(t *types.Node) { t.AddModifier(c) })
			target.Trailing = append(target.Trailing, c)
		}
		n.Children = kept
	}

	for _, c := range n.Children {
		p.propagate(c)
	}

	if n.Type == types.NodeFunction && n.Function().IsSubExpression() && len(n.Children) == 1 {
		m := p.implicitModifier(types.ModSubExpression)
		text := render.Normalise(n.Children[0])
		arg := p.arena.Alloc(types.NodeArgument, "")
		arg.Implicit = true
		leaf := p.arena.Alloc(types.NodeString, text)
		leaf.Value = text
		leaf.Implicit = true
		arg.Children = []*types.Node{leaf}
		m.Children = []*types.Node{arg}
		forEachTarget(n.Children, func(t *types.Node) { t.AddModifier(m) })
	}
}

func (p *parser) implicitModifier(kind types.ModifierKind) *types.Node {
	def := types.ModifierOf(kind)
	m := p.arena.Alloc(types.NodeModifier, def.Name)
	m.Value = def
	m.Implicit = true
	return m
}

// forEachTarget calls fn for every DataItem and program Variable in the
// given subtrees.
func forEachTarget(nodes []*types.Node, fn func(*types.Node)) {
	for _, n := range nodes {
		n.Walk(func(d *types.Node) bool {
			if isTarget(d) {
				fn(d)
			}
			return true
		})
	}
}

func isTarget(n *types.Node) bool {
	switch n.Type {
	case types.NodeDataItem:
		return true
	case types.NodeVariable:
		return n.VariableKind() == types.VarProgram
	}
	return false
}
