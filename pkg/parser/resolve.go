package parser

import (
	"fmt"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

// resolve computes the identity of every DataItem and Variable node after
// the transforms have run. The results are keyed by node sequence number.
func resolve(root *types.Node, mode types.Mode) (map[int]types.DataItem, map[int]types.Variable) {
	items := make(map[int]types.DataItem)
	vars := make(map[int]types.Variable)
	root.Walk(func(n *types.Node) bool {
		switch n.Type {
		case types.NodeDataItem:
			items[n.Seq] = resolveDataItem(n, mode)
			return false
		case types.NodeVariable:
			vars[n.Seq] = types.Variable{
				Kind:      n.VariableKind(),
				Name:      types.VariableName(n),
				Modifiers: foldModifiers(n.Modifiers),
			}
			return false
		}
		return true
	})
	return items, vars
}

func resolveDataItem(n *types.Node, mode types.Mode) types.DataItem {
	t := n.ItemType()
	item := types.DataItem{Type: t, Modifiers: foldModifiers(n.Modifiers)}

	var shape []types.IDKind
	if n.Raw == "PS_EVENTDATE" {
		shape = []types.IDKind{types.IDProgramStage}
	} else {
		for _, s := range t.Shapes(mode) {
			if len(s) == len(n.Children) {
				shape = s
				break
			}
		}
	}
	if shape == nil {
		panic(fmt.Sprintf("%s item with %d groups has no shape", t, len(n.Children)))
	}

	for i, arg := range n.Children {
		ids := make([]types.ID, 0, len(arg.Children))
		for _, leaf := range arg.Children {
			ids = append(ids, leafID(leaf, shape[i]))
		}
		switch i {
		case 0:
			item.UID0 = ids[0]
		case 1:
			item.UID1 = ids
		case 2:
			item.UID2 = ids
		}
	}
	return item
}

// leafID is the ID written by a UID or metric leaf. A tagged UID keeps the
// kind of its tag; an untagged one takes the kind of its position.
func leafID(leaf *types.Node, kind types.IDKind) types.ID {
	if leaf.Type == types.NodeIdentifier {
		return types.ID{Kind: types.IDReportingRateMetric, Value: leaf.Raw}
	}
	id := leaf.UID()
	if _, ok := types.LookupIDTag(tagPrefix(leaf.Raw)); !ok {
		id.Kind = kind
	}
	return id
}

func tagPrefix(raw string) string {
	for i, r := range raw {
		if r == ':' {
			return raw[:i]
		}
	}
	return ""
}

// foldModifiers applies modifiers in order, outermost first.
func foldModifiers(mods []*types.Node) types.QueryModifiers {
	var qm types.QueryModifiers
	for _, m := range mods {
		qm = qm.Apply(m.ModifierSpec().Kind, modifierArg(m))
	}
	return qm
}

func modifierArg(m *types.Node) interface{} {
	arg := m.Child(0)
	if arg == nil || len(arg.Children) == 0 {
		return nil
	}
	leaf := arg.Children[0]
	switch leaf.Type {
	case types.NodeIdentifier:
		return leaf.Raw
	case types.NodeDate:
		return leaf.Date().Format(types.DateLayout)
	case types.NodeInteger:
		return leaf.Integer()
	case types.NodeString:
		return leaf.Text()
	default:
		panic(fmt.Sprintf("unexpected modifier argument %s", leaf))
	}
}
