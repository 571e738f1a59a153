package types

import "fmt"

// VariableName returns the name referenced by a Variable node.
func VariableName(n *Node) string {
	leaf := n.Child(0)
	if leaf != nil && leaf.Type == NodeArgument {
		leaf = leaf.Child(0)
	}
	if leaf == nil {
		return ""
	}
	if leaf.Type == NodeString {
		return leaf.Text()
	}
	return leaf.Raw
}

// InferType returns the static value type of n. ruleVars supplies the
// declared types of program-rule variables; unknown ones are MIXED.
func InferType(n *Node, ruleVars map[string]ValueType) ValueType {
	switch n.Type {
	case NodePar, NodeArgument:
		if len(n.Children) != 1 {
			if n.Type == NodeArgument && len(n.Children) > 1 {
				return ValueString
			}
			return ValueMixed
		}
		return InferType(n.Children[0], ruleVars)
	case NodeUnaryOperator:
		if n.UnaryOp() == OpDistinct && len(n.Children) == 1 {
			return InferType(n.Children[0], ruleVars)
		}
		return n.UnaryOp().ReturnType()
	case NodeBinaryOperator:
		return n.BinaryOp().ReturnType()
	case NodeFunction:
		f := n.Function()
		if f.Returns != ValueSame {
			return f.Returns
		}
		for i, arg := range n.Children {
			if p, ok := ParamAt(f.Params, i); ok && p.Type == ValueSame {
				if t := InferType(arg, ruleVars); t != ValueMixed {
					return t
				}
			}
		}
		return ValueMixed
	case NodeModifier:
		return ValueMixed
	case NodeDataItem:
		return n.ItemType().ValueType()
	case NodeVariable:
		name := VariableName(n)
		if n.VariableKind() == VarProgram {
			if pv, ok := LookupProgramVariable(name); ok {
				return pv.Type
			}
			return ValueMixed
		}
		if t, ok := ruleVars[name]; ok {
			return t
		}
		return ValueMixed
	case NodeUid, NodeIdentifier, NodeString:
		return ValueString
	case NodeNamedValue, NodeNumber, NodeInteger:
		return ValueNumber
	case NodeDate:
		return ValueDate
	case NodeBoolean:
		return ValueBoolean
	case NodeNull:
		return ValueMixed
	default:
		panic(fmt.Sprintf("unhandled node type %s", n.Type))
	}
}

// IsStatic reports whether n is composed only of literals, parentheses and
// operators over literals, so that its value is known without data.
func IsStatic(n *Node) bool {
	switch n.Type {
	case NodePar, NodeArgument, NodeUnaryOperator, NodeBinaryOperator:
		for _, c := range n.Children {
			if !IsStatic(c) {
				return false
			}
		}
		return len(n.Children) > 0
	case NodeNumber, NodeInteger, NodeString, NodeDate, NodeBoolean, NodeNull:
		return true
	case NodeFunction, NodeModifier, NodeDataItem, NodeVariable, NodeUid, NodeIdentifier, NodeNamedValue:
		return false
	default:
		panic(fmt.Sprintf("unhandled node type %s", n.Type))
	}
}
