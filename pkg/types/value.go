package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// VariableValue is the value of a rule-engine variable. Besides the current
// value it carries every candidate value seen across events, the date of the
// event that provided the value and the declared value type.
type VariableValue interface {
	Value() interface{}
	Candidates() []string
	EventDate() string
	ValueType() ValueType
}

type variableValue struct {
	value      interface{}
	valueType  ValueType
	candidates []string
	eventDate  string
}

// NewVariableValue creates a VariableValue.
func NewVariableValue(value interface{}, valueType ValueType, candidates []string, eventDate string) VariableValue {
	return &variableValue{value: value, valueType: valueType, candidates: candidates, eventDate: eventDate}
}

func (v *variableValue) Value() interface{} { return v.value }
func (v *variableValue) Candidates() []string { return v.candidates }
func (v *variableValue) EventDate() string { return v.eventDate }
func (v *variableValue) ValueType() ValueType { return v.valueType }
func (v *variableValue) String() string { return fmt.Sprint(v.value) }

// DateLayout is the canonical date format.
const DateLayout = "2006-01-02"

// ParseDate parses YYYY-M?M-D?D. A full timestamp is accepted and truncated
// to its date.
func ParseDate(s string) (time.Time, error) {
	parts := strings.Split(s, "-")
	if len(parts) == 3 && len(parts[0]) == 4 && len(parts[1]) >= 1 && len(parts[1]) <= 2 &&
		len(parts[2]) >= 1 && len(parts[2]) <= 2 {
		y, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		d, err3 := strconv.Atoi(parts[2])
		if err1 == nil && err2 == nil && err3 == nil && m >= 1 && m <= 12 && d >= 1 && d <= 31 {
			t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
			if t.Day() == d {
				return t, nil
			}
		}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// FormatNumber renders a number the way it appears in messages and output.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatValue renders any runtime value as text.
func FormatValue(v interface{}) string {
	switch x := Unwrap(v).(type) {
	case nil:
		return "null"
	case float64:
		return FormatNumber(x)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case time.Time:
		return x.Format(DateLayout)
	case []interface{}:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

// KindOf names the runtime kind of a value as used in coercion messages.
func KindOf(v interface{}) string {
	switch Unwrap(v).(type) {
	case nil:
		return "Null"
	case float64:
		return "Double"
	case bool:
		return "Boolean"
	case string:
		return "String"
	case time.Time:
		return "Date"
	case []interface{}:
		return "List"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func targetName(t ValueType) string {
	switch t {
	case ValueNumber:
		return "Double"
	case ValueBoolean:
		return "Boolean"
	case ValueDate:
		return "Date"
	case ValueString:
		return "String"
	default:
		return "Object"
	}
}

// Unwrap returns the plain value of a VariableValue and normalises integer
// kinds to float64. Other values are returned unchanged.
func Unwrap(v interface{}) interface{} {
	switch x := v.(type) {
	case VariableValue:
		if x == nil {
			return nil
		}
		return Unwrap(x.Value())
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case uint:
		return float64(x)
	case uint64:
		return float64(x)
	}
	return v
}

// ToNumber coerces v to a float64. nil stays nil.
func ToNumber(v interface{}) (interface{}, error) {
	switch x := Unwrap(v).(type) {
	case nil:
		return nil, nil
	case float64:
		return x, nil
	case bool:
		if x {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, &CoercionError{Value: x, Target: ValueNumber}
		}
		return f, nil
	default:
		return nil, &CoercionError{Value: x, Target: ValueNumber}
	}
}

// ToBoolean coerces v to a bool. Numbers must be integral; any non-zero
// integer is true. nil stays nil.
func ToBoolean(v interface{}) (interface{}, error) {
	switch x := Unwrap(v).(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case float64:
		if math.Mod(x, 1.0) != 0 {
			return nil, &CoercionError{Value: x, Target: ValueBoolean}
		}
		return x != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && math.Mod(f, 1.0) == 0 {
			return f != 0, nil
		}
		return nil, &CoercionError{Value: x, Target: ValueBoolean}
	default:
		return nil, &CoercionError{Value: x, Target: ValueBoolean}
	}
}

// ToDate coerces v to a time.Time. nil stays nil.
func ToDate(v interface{}) (interface{}, error) {
	switch x := Unwrap(v).(type) {
	case nil:
		return nil, nil
	case time.Time:
		return x, nil
	case string:
		t, err := ParseDate(strings.TrimSpace(x))
		if err != nil {
			return nil, &CoercionError{Value: x, Target: ValueDate}
		}
		return t, nil
	default:
		return nil, &CoercionError{Value: x, Target: ValueDate}
	}
}

// ToString coerces v to its text form. nil stays nil.
func ToString(v interface{}) (interface{}, error) {
	switch x := Unwrap(v).(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case []interface{}:
		return nil, &CoercionError{Value: x, Target: ValueString}
	default:
		return FormatValue(x), nil
	}
}

// ToMixed returns the plain value of v without converting it.
func ToMixed(v interface{}) (interface{}, error) {
	return Unwrap(v), nil
}

// Coerce converts v to the runtime representation of t.
func Coerce(v interface{}, t ValueType) (interface{}, error) {
	switch t {
	case ValueNumber:
		return ToNumber(v)
	case ValueBoolean:
		return ToBoolean(v)
	case ValueDate:
		return ToDate(v)
	case ValueString:
		return ToString(v)
	case ValueMixed, ValueSame:
		return ToMixed(v)
	default:
		panic(fmt.Sprintf("unhandled value type %s", t))
	}
}
