package parser

import "github.com/sandrolain/dhis2expr/pkg/types"

// unit is one operand or operator of a flat sibling run together with the
// modifiers written directly after it.
type unit []*types.Node

func (u unit) head() *types.Node { return u[0] }

func (u unit) end() types.Position { return u[len(u)-1].OuterEnd() }

func (u unit) isBare(kind types.NodeType) bool {
	return u.head().Type == kind && len(u.head().Children) == 0
}

// group turns every flat operand/operator run in the tree into a
// precedence-correct operator tree. Grouped operators have children, so
// running it again is a no-op.
func group(n *types.Node) {
	for _, c := range n.Children {
		group(c)
	}
	if len(n.Children) < 2 {
		return
	}

	units := toUnits(n.Children)
	units = groupExp(units)
	units = groupUnary(units)
	for _, level := range types.PrecedenceLevels() {
		units = groupBinary(units, level)
	}

	children := make([]*types.Node, 0, len(n.Children))
	for _, u := range units {
		children = append(children, u...)
	}
	n.Children = children
}

func toUnits(nodes []*types.Node) []unit {
	var units []unit
	for _, c := range nodes {
		if c.Type == types.NodeModifier && len(units) > 0 {
			units[len(units)-1] = append(units[len(units)-1], c)
			continue
		}
		units = append(units, unit{c})
	}
	return units
}

// attach makes op the parent of the nodes of its operand units.
func attach(op *types.Node, operands ...unit) unit {
	for _, u := range operands {
		op.Children = append(op.Children, u...)
	}
	op.End = operands[len(operands)-1].end()
	return unit{op}
}

// groupExp groups '^' left to right. The right operand absorbs the prefix
// operators written before it, so 2^-2 is 2^(-2).
func groupExp(units []unit) []unit {
	for i := 1; i < len(units); i++ {
		if !units[i].isBare(types.NodeBinaryOperator) || units[i].head().BinaryOp() != types.OpExp {
			continue
		}
		j := i + 1
		for j < len(units) && units[j].isBare(types.NodeUnaryOperator) {
			j++
		}
		if j >= len(units) {
			continue
		}
		right := foldUnary(units[i+1 : j+1])
		op := units[i].head()
		op.Start = units[i-1].head().Start
		grouped := attach(op, units[i-1], right)
		units = splice(units, i-1, j+1, grouped)
		i--
	}
	return units
}

// foldUnary nests a run of prefix operators around the final operand.
func foldUnary(run []unit) unit {
	cur := run[len(run)-1]
	for k := len(run) - 2; k >= 0; k-- {
		cur = attach(run[k].head(), cur)
	}
	return cur
}

// groupUnary attaches every prefix operator to the unit after it, right to left.
func groupUnary(units []unit) []unit {
	for i := len(units) - 2; i >= 0; i-- {
		if !units[i].isBare(types.NodeUnaryOperator) {
			continue
		}
		grouped := attach(units[i].head(), units[i+1])
		units = splice(units, i, i+2, grouped)
	}
	return units
}

// groupBinary groups the operators of one precedence level left to right.
func groupBinary(units []unit, level []types.BinaryOperator) []unit {
	for i := 1; i+1 < len(units); i++ {
		if !units[i].isBare(types.NodeBinaryOperator) || !containsOp(level, units[i].head().BinaryOp()) {
			continue
		}
		op := units[i].head()
		op.Start = units[i-1].head().Start
		grouped := attach(op, units[i-1], units[i+1])
		units = splice(units, i-1, i+2, grouped)
		i--
	}
	return units
}

func containsOp(level []types.BinaryOperator, op types.BinaryOperator) bool {
	for _, o := range level {
		if o == op {
			return true
		}
	}
	return false
}

// splice replaces units[from:to] with u, returning a new slice.
func splice(units []unit, from, to int, u unit) []unit {
	out := make([]unit, 0, len(units)-(to-from)+1)
	out = append(out, units[:from]...)
	out = append(out, u)
	return append(out, units[to:]...)
}
