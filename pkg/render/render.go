// Package render turns expression trees back into text.
//
// One walker serves three outputs:
//   - Normalise: canonical text without substitution
//   - Describe: UIDs and variable names replaced by display names
//   - Regenerate: constant and org unit group items replaced by their values
//
// When the expression was parsed with annotation the captured whitespace and
// comments are reproduced exactly; otherwise canonical spacing is used.
package render

import (
	"fmt"
	"strings"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

// Normalise renders n in canonical form.
func Normalise(n *types.Node) string {
	w := &walker{}
	w.node(n)
	return w.sb.String()
}

// Text renders expr without substitution. An annotated expression renders as
// its exact source.
func Text(expr *types.Expression) string {
	return render(expr, &walker{annotate: expr.Annotated(), expr: expr})
}

// Describe renders expr with UIDs and variable names replaced by the display
// names found in names. Unknown names are left as written.
func Describe(expr *types.Expression, names map[string]string) string {
	return render(expr, &walker{annotate: expr.Annotated(), expr: expr, names: names})
}

// Regenerate renders expr with constant and org unit group items replaced by
// their values in values.
func Regenerate(expr *types.Expression, values types.DataItemValues) string {
	return render(expr, &walker{annotate: expr.Annotated(), expr: expr, values: values})
}

func render(expr *types.Expression, w *walker) string {
	if w.annotate {
		w.node(expr.Wrapper())
	} else {
		w.node(expr.AST())
	}
	return w.sb.String()
}

type walker struct {
	sb       strings.Builder
	annotate bool
	expr     *types.Expression
	names    map[string]string
	values   types.DataItemValues
}

// node renders n and the modifiers written after it.
func (w *walker) node(n *types.Node) {
	if text, ok := w.substitute(n); ok {
		w.sb.WriteString(text)
		return
	}

	slots := n.Children
	if len(n.Trailing) > 0 {
		slots = append(append([]*types.Node(nil), n.Children...), n.Trailing...)
	}
	pieces := w.pieces(n)
	// Trailing modifiers are separated from each other and from n by nothing.
	for range n.Trailing {
		pieces = append(pieces, "")
	}

	if !w.annotate {
		for i, s := range slots {
			w.sb.WriteString(pieces[i])
			w.node(s)
		}
		w.sb.WriteString(pieces[len(slots)])
		return
	}

	spaces := n.Spaces
	gapStart := n.Start.Char
	for i := 0; i <= len(slots); i++ {
		gapEnd := n.OuterEnd().Char
		if i < len(slots) {
			gapEnd = slots[i].Start.Char
		}
		spaces = w.gap(pieces[i], gapStart, gapEnd, spaces)
		if i < len(slots) {
			w.node(slots[i])
			gapStart = slots[i].OuterEnd().Char
		}
	}
}

// gap writes the fixed text piece interleaved with the whitespace tokens that
// fall inside [start, end). It returns the tokens not yet written.
func (w *walker) gap(piece string, start, end int, spaces []types.Whitespace) []types.Whitespace {
	text := []rune(piece)
	pos, used := start, 0
	for len(spaces) > 0 && spaces[0].Start < end {
		tok := spaces[0]
		spaces = spaces[1:]
		take := min(tok.Start-pos, len(text)-used)
		if take > 0 {
			w.sb.WriteString(string(text[used : used+take]))
			used += take
		}
		w.sb.WriteString(tok.Text)
		pos = tok.End
	}
	w.sb.WriteString(string(text[used:]))
	return spaces
}

// pieces returns the fixed text around and between the children of n:
// one more piece than n has children.
func (w *walker) pieces(n *types.Node) []string {
	canonical := !w.annotate
	k := len(n.Children)
	switch n.Type {
	case types.NodePar:
		if n.Implicit {
			return around(k, "", "", "")
		}
		return around(k, "(", "", ")")
	case types.NodeArgument:
		return around(k, "", "&", "")
	case types.NodeUnaryOperator:
		op := n.Raw
		if canonical && n.UnaryOp().Keyword() == op {
			op += " "
		}
		return around(k, op, "", "")
	case types.NodeBinaryOperator:
		op := n.Raw
		if canonical {
			op = " " + op + " "
		}
		return around(k, "", op, "")
	case types.NodeFunction:
		return around(k, n.Raw+"(", w.comma(), ")")
	case types.NodeModifier:
		return around(k, "."+n.Raw+"(", w.comma(), ")")
	case types.NodeDataItem:
		if n.Raw == "PS_EVENTDATE" {
			return around(k, "PS_EVENTDATE:", "", "")
		}
		return around(k, n.Raw+"{", ".", "}")
	case types.NodeVariable:
		switch n.Raw {
		case "", "'", `"`:
			return around(k, n.Raw, "", n.Raw)
		default:
			return around(k, n.Raw+"{", "", "}")
		}
	case types.NodeUid, types.NodeIdentifier, types.NodeNamedValue, types.NodeNumber,
		types.NodeInteger, types.NodeString, types.NodeDate, types.NodeBoolean, types.NodeNull:
		return []string{n.Raw}
	default:
		panic(fmt.Sprintf("unhandled node type %s", n.Type))
	}
}

func (w *walker) comma() string {
	if w.annotate {
		return ","
	}
	return ", "
}

// around builds the pieces of a node with k children. Without children the
// open and close pieces are joined.
func around(k int, open, sep, close string) []string {
	if k == 0 {
		return []string{open + close}
	}
	pieces := make([]string, k+1)
	pieces[0] = open
	for i := 1; i < k; i++ {
		pieces[i] = sep
	}
	pieces[k] = close
	return pieces
}

// substitute returns replacement text for n when a substitution map applies.
func (w *walker) substitute(n *types.Node) (string, bool) {
	switch n.Type {
	case types.NodeDataItem:
		if w.values == nil || w.expr == nil {
			return "", false
		}
		item, ok := w.expr.DataItemOf(n)
		if !ok || (item.Type != types.ItemConstant && item.Type != types.ItemOrgUnitGroup) {
			return "", false
		}
		if v, ok := w.values.Get(item); ok {
			return types.FormatValue(v), true
		}
	case types.NodeUid:
		if name, ok := w.names[n.UID().Value]; ok {
			return name, true
		}
	case types.NodeVariable:
		if w.names == nil {
			return "", false
		}
		if name, ok := w.names[types.VariableName(n)]; ok {
			return w.renameVariable(n, name), true
		}
	}
	return "", false
}

// renameVariable renders a variable reference with its name replaced, keeping
// the reference form and any trailing modifiers.
func (w *walker) renameVariable(n *types.Node, name string) string {
	var sb strings.Builder
	switch n.Raw {
	case "", "'", `"`:
		sb.WriteString(n.Raw + name + n.Raw)
	default:
		sb.WriteString(n.Raw + "{" + name + "}")
	}
	for _, m := range n.Trailing {
		sb.WriteString(Normalise(m))
	}
	return sb.String()
}
