package types

import (
	"fmt"
	"time"
)

// NodeType identifies the kind of an AST node.
//
// The declaration order is significant: the classification predicates compare
// ranges instead of storing per-kind flags.
type NodeType uint8

// AST node kinds.
const (
	// Structural
	NodePar      NodeType = iota // ( ... ) and the synthetic root wrapper
	NodeArgument                 // one argument of a function, modifier or data item

	// Operators
	NodeUnaryOperator  // ! + - not distinct
	NodeBinaryOperator // ^ * / % + - < > <= >= == != && ||

	// Named
	NodeFunction // name(args)
	NodeModifier // .name(args)
	NodeDataItem // #{..} A{..} C{..} D{..} I{..} N{..} OUG{..} R{..}
	NodeVariable // V{..}, rule variables

	// Simple
	NodeUid        // abcdefghijk, *, deGroup:abcdefghijk
	NodeIdentifier // enum-backed names (SUM, event_date, REPORTING_RATE)
	NodeNamedValue // [days]

	// Value literals
	NodeNumber
	NodeInteger
	NodeString
	NodeDate
	NodeBoolean
	NodeNull

	nodeTypeCount
)

var nodeTypeNames = [...]string{
	NodePar:            "Par",
	NodeArgument:       "Argument",
	NodeUnaryOperator:  "UnaryOperator",
	NodeBinaryOperator: "BinaryOperator",
	NodeFunction:       "Function",
	NodeModifier:       "Modifier",
	NodeDataItem:       "DataItem",
	NodeVariable:       "Variable",
	NodeUid:            "Uid",
	NodeIdentifier:     "Identifier",
	NodeNamedValue:     "NamedValue",
	NodeNumber:         "Number",
	NodeInteger:        "Integer",
	NodeString:         "String",
	NodeDate:           "Date",
	NodeBoolean:        "Boolean",
	NodeNull:           "Null",
}

// String returns the name of the node type.
func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return fmt.Sprintf("NodeType(%d)", uint8(t))
}

// NodeTypes returns every node type in declaration order.
func NodeTypes() []NodeType {
	all := make([]NodeType, nodeTypeCount)
	for i := range all {
		all[i] = NodeType(i)
	}
	return all
}

// IsOperator reports whether the type is a unary or binary operator.
func (t NodeType) IsOperator() bool {
	return t == NodeUnaryOperator || t == NodeBinaryOperator
}

// IsSimple reports whether nodes of this type never have children.
func (t NodeType) IsSimple() bool { return t >= NodeUid && t < nodeTypeCount }

// IsConstant reports whether the node denotes a fixed value that needs no data.
func (t NodeType) IsConstant() bool { return t >= NodeNamedValue && t < nodeTypeCount }

// IsValueLiteral reports whether the node is a literal written in the source.
func (t NodeType) IsValueLiteral() bool { return t >= NodeNumber && t < nodeTypeCount }

// Position marks a point of the source: the character (rune) index and the
// number of whitespace tokens captured before it.
type Position struct {
	Char  int
	Space int
}

// Whitespace is one maximal run of whitespace and comments, captured verbatim
// in annotate mode. Start and End are character indexes.
type Whitespace struct {
	Start int
	End   int
	Text  string
}

// Node is one node of the expression tree.
//
// Children are only used by complex kinds. Modifiers holds the modifiers that
// govern a DataItem or Variable (explicit and implicit); Trailing holds the
// modifiers written directly after this node, kept only for rendering.
type Node struct {
	Seq   int // arena sequence number, stable key for side tables
	Type  NodeType
	Raw   string
	Value interface{}

	Children  []*Node
	Modifiers []*Node
	Trailing  []*Node

	// Implicit marks nodes injected by a transform rather than parsed.
	Implicit bool

	Start Position
	End   Position

	// Spaces are the whitespace tokens inside this node that belong to no child.
	Spaces []Whitespace
}

// String returns a short description of the node.
func (n *Node) String() string {
	return n.Type.String() + "(" + n.Raw + ")"
}

// Child returns the i-th child or nil.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// AddModifier attaches a modifier to a DataItem or Variable node.
func (n *Node) AddModifier(m *Node) {
	n.Modifiers = append(n.Modifiers, m)
}

// OuterEnd is the end of the node including the modifiers written after it.
func (n *Node) OuterEnd() Position {
	if len(n.Trailing) > 0 {
		return n.Trailing[len(n.Trailing)-1].OuterEnd()
	}
	return n.End
}

// Walk visits n and its children depth-first. Returning false from visit
// skips the children of that node.
func (n *Node) Walk(visit func(*Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(visit)
	}
}

// Typed payload accessors. Each panics if used on the wrong node kind, which
// only happens on a programming error: the parser sets Value from the kind.

func (n *Node) BinaryOp() BinaryOperator   { return n.Value.(BinaryOperator) }
func (n *Node) UnaryOp() UnaryOperator     { return n.Value.(UnaryOperator) }
func (n *Node) Function() *Function        { return n.Value.(*Function) }
func (n *Node) ModifierSpec() *Modifier    { return n.Value.(*Modifier) }
func (n *Node) ItemType() DataItemType     { return n.Value.(DataItemType) }
func (n *Node) VariableKind() VariableKind { return n.Value.(VariableKind) }
func (n *Node) UID() ID                    { return n.Value.(ID) }
func (n *Node) NamedValue() NamedValue     { return n.Value.(NamedValue) }
func (n *Node) Number() float64            { return n.Value.(float64) }
func (n *Node) Integer() int               { return n.Value.(int) }
func (n *Node) Text() string               { return n.Value.(string) }
func (n *Node) Date() time.Time            { return n.Value.(time.Time) }
func (n *Node) Bool() bool                 { return n.Value.(bool) }

// arenaChunkSize is the number of Node values pre-allocated per arena chunk.
const arenaChunkSize = 64

// NodeArena is a bump-pointer allocator for Node values.
//
// Every node of one expression comes from the same arena and receives a
// sequence number, which side tables (resolved data items, variables) use as
// key so the tree itself stays read-only after construction.
//
// NodeArena is NOT thread-safe. Each parse owns its own arena.
type NodeArena struct {
	chunks [][]Node
	pos    int
	count  int
}

// NewNodeArena allocates an arena pre-warmed with one initial chunk.
func NewNodeArena() *NodeArena {
	return &NodeArena{
		chunks: [][]Node{make([]Node, arenaChunkSize)},
	}
}

// Alloc returns a pointer to a zero-valued Node inside the arena with Type,
// Raw and Seq set.
func (a *NodeArena) Alloc(nodeType NodeType, raw string) *Node {
	if a.pos >= arenaChunkSize {
		a.chunks = append(a.chunks, make([]Node, arenaChunkSize))
		a.pos = 0
	}
	n := &a.chunks[len(a.chunks)-1][a.pos]
	a.pos++
	n.Seq = a.count
	a.count++
	n.Type = nodeType
	n.Raw = raw
	return n
}

// Len returns the number of nodes allocated so far.
func (a *NodeArena) Len() int {
	return a.count
}
