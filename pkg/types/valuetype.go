package types

import "fmt"

// ValueType is the static type of an expression node.
//
// NUMBER, BOOLEAN, DATE and STRING are concrete. MIXED is the top type.
// SAME is only valid as a declared parameter or return type and means "must
// equal whatever the other SAME slots resolve to".
type ValueType uint8

// Value types.
const (
	ValueNumber ValueType = iota
	ValueBoolean
	ValueDate
	ValueString
	ValueMixed
	ValueSame
)

var valueTypeNames = [...]string{
	ValueNumber:  "NUMBER",
	ValueBoolean: "BOOLEAN",
	ValueDate:    "DATE",
	ValueString:  "STRING",
	ValueMixed:   "MIXED",
	ValueSame:    "SAME",
}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("ValueType(%d)", uint8(t))
}

// ParseValueType maps a name such as "NUMBER" to its ValueType.
// Unknown names map to MIXED.
func ParseValueType(name string) ValueType {
	for i, n := range valueTypeNames {
		if n == name && ValueType(i) != ValueSame {
			return ValueType(i)
		}
	}
	switch name {
	case "TEXT", "LONG_TEXT", "LETTER", "EMAIL", "PHONE_NUMBER", "USERNAME", "URL":
		return ValueString
	case "INTEGER", "INTEGER_POSITIVE", "INTEGER_NEGATIVE", "INTEGER_ZERO_OR_POSITIVE", "PERCENTAGE", "UNIT_INTERVAL":
		return ValueNumber
	case "TRUE_ONLY":
		return ValueBoolean
	case "DATETIME", "AGE":
		return ValueDate
	}
	return ValueMixed
}

// IsAssignableTo reports whether a value of type t can be used where target is
// declared without any conversion.
func (t ValueType) IsAssignableTo(target ValueType) bool {
	return t == target || t == ValueMixed || target == ValueMixed || target == ValueSame
}

// IsMaybeAssignableTo reports whether a value of type t may be converted to
// target at runtime.
func (t ValueType) IsMaybeAssignableTo(target ValueType) bool {
	if t.IsAssignableTo(target) {
		return true
	}
	if t == ValueString || target == ValueString {
		return true
	}
	return (t == ValueNumber && target == ValueBoolean) || (t == ValueBoolean && target == ValueNumber)
}
