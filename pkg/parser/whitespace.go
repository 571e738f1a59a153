package parser

import "github.com/sandrolain/dhis2expr/pkg/types"

// redistribute hands every captured whitespace token to the innermost node
// whose extent contains it and that has no rendered slot (child or trailing
// modifier) covering it. Node extents are half-open token index ranges taken
// from Start.Space and OuterEnd().Space.
func redistribute(n *types.Node, tokens []types.Whitespace) {
	slots := renderSlots(n)
	from, to := n.Start.Space, n.OuterEnd().Space
	n.Spaces = nil
	i := from
	for _, s := range slots {
		for ; i < s.Start.Space && i < to; i++ {
			n.Spaces = append(n.Spaces, tokens[i])
		}
		if end := s.OuterEnd().Space; end > i {
			i = end
		}
	}
	for ; i < to; i++ {
		n.Spaces = append(n.Spaces, tokens[i])
	}

	for _, s := range slots {
		redistribute(s, tokens)
	}
}

// renderSlots are the nodes rendered inside n, in source order.
func renderSlots(n *types.Node) []*types.Node {
	if len(n.Trailing) == 0 {
		return n.Children
	}
	slots := make([]*types.Node, 0, len(n.Children)+len(n.Trailing))
	slots = append(slots, n.Children...)
	return append(slots, n.Trailing...)
}
