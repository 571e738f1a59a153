package types

// BinaryOperator identifies a binary operator.
type BinaryOperator uint8

// Binary operators, ordered by precedence (highest first).
const (
	OpExp BinaryOperator = iota
	OpMul
	OpDiv
	OpMod
	OpAdd
	OpSub
	OpLt
	OpGt
	OpLe
	OpGe
	OpEq
	OpNeq
	OpAnd
	OpOr
)

type binaryInfo struct {
	symbol  string
	keyword string
	level   int
	operand ValueType
	returns ValueType
}

var binaryOperators = [...]binaryInfo{
	OpExp: {"^", "", 0, ValueNumber, ValueNumber},
	OpMul: {"*", "", 1, ValueNumber, ValueNumber},
	OpDiv: {"/", "", 1, ValueNumber, ValueNumber},
	OpMod: {"%", "", 1, ValueNumber, ValueNumber},
	OpAdd: {"+", "", 2, ValueNumber, ValueNumber},
	OpSub: {"-", "", 2, ValueNumber, ValueNumber},
	OpLt:  {"<", "", 3, ValueSame, ValueBoolean},
	OpGt:  {">", "", 3, ValueSame, ValueBoolean},
	OpLe:  {"<=", "", 3, ValueSame, ValueBoolean},
	OpGe:  {">=", "", 3, ValueSame, ValueBoolean},
	OpEq:  {"==", "", 4, ValueMixed, ValueBoolean},
	OpNeq: {"!=", "", 4, ValueMixed, ValueBoolean},
	OpAnd: {"&&", "and", 5, ValueBoolean, ValueBoolean},
	OpOr:  {"||", "or", 6, ValueBoolean, ValueBoolean},
}

// BinaryOperators returns all binary operators in precedence order.
func BinaryOperators() []BinaryOperator {
	ops := make([]BinaryOperator, len(binaryOperators))
	for i := range ops {
		ops[i] = BinaryOperator(i)
	}
	return ops
}

// PrecedenceLevels returns the binary operators below EXP grouped by
// precedence level, highest level first. Operators of one level associate
// left to right.
func PrecedenceLevels() [][]BinaryOperator {
	var levels [][]BinaryOperator
	for _, op := range BinaryOperators()[1:] {
		l := binaryOperators[op].level - 1
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], op)
	}
	return levels
}

// Symbol returns the canonical symbol of the operator.
func (op BinaryOperator) Symbol() string { return binaryOperators[op].symbol }

// Keyword returns the keyword spelling of the operator, if any.
func (op BinaryOperator) Keyword() string { return binaryOperators[op].keyword }

// Level returns the precedence level; lower binds tighter.
func (op BinaryOperator) Level() int { return binaryOperators[op].level }

// OperandType is the declared type of both operands.
func (op BinaryOperator) OperandType() ValueType { return binaryOperators[op].operand }

// ReturnType is the static type of the result.
func (op BinaryOperator) ReturnType() ValueType { return binaryOperators[op].returns }

func (op BinaryOperator) String() string { return op.Symbol() }

// IsComparison reports whether op is one of < > <= >=.
func (op BinaryOperator) IsComparison() bool { return op >= OpLt && op <= OpGe }

// IsArithmetic reports whether op is one of ^ * / % + -.
func (op BinaryOperator) IsArithmetic() bool { return op <= OpSub }

// LookupBinary finds the operator spelled by raw, by symbol or keyword.
// The keyword match is exact; "AND" is not an operator.
func LookupBinary(raw string) (BinaryOperator, bool) {
	for i, info := range binaryOperators {
		if raw == info.symbol || (info.keyword != "" && raw == info.keyword) {
			return BinaryOperator(i), true
		}
	}
	return 0, false
}

// UnaryOperator identifies a prefix operator.
type UnaryOperator uint8

// Unary operators.
const (
	OpNot UnaryOperator = iota
	OpPlus
	OpMinus
	OpDistinct
)

type unaryInfo struct {
	symbol  string
	keyword string
	operand ValueType
	returns ValueType
}

var unaryOperators = [...]unaryInfo{
	OpNot:      {"!", "not", ValueBoolean, ValueBoolean},
	OpPlus:     {"+", "", ValueNumber, ValueNumber},
	OpMinus:    {"-", "", ValueNumber, ValueNumber},
	OpDistinct: {"", "distinct", ValueMixed, ValueMixed},
}

// UnaryOperators returns all unary operators.
func UnaryOperators() []UnaryOperator {
	ops := make([]UnaryOperator, len(unaryOperators))
	for i := range ops {
		ops[i] = UnaryOperator(i)
	}
	return ops
}

// Symbol returns the symbol spelling, empty for keyword-only operators.
func (op UnaryOperator) Symbol() string { return unaryOperators[op].symbol }

// Keyword returns the keyword spelling, if any.
func (op UnaryOperator) Keyword() string { return unaryOperators[op].keyword }

// OperandType is the declared type of the operand.
func (op UnaryOperator) OperandType() ValueType { return unaryOperators[op].operand }

// ReturnType is the static type of the result.
func (op UnaryOperator) ReturnType() ValueType { return unaryOperators[op].returns }

func (op UnaryOperator) String() string {
	if s := op.Symbol(); s != "" {
		return s
	}
	return op.Keyword()
}

// LookupUnary finds the unary operator spelled by raw.
func LookupUnary(raw string) (UnaryOperator, bool) {
	for i, info := range unaryOperators {
		if (info.symbol != "" && raw == info.symbol) || (info.keyword != "" && raw == info.keyword) {
			return UnaryOperator(i), true
		}
	}
	return 0, false
}
