package types

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseSignature(t *testing.T) {
	tests := []struct {
		sig      string
		params   int
		min      int
		returns  ValueType
		variadic bool
	}{
		{"<nn?:n>", 2, 1, ValueNumber, false},
		{"<ss+:b>", 2, 2, ValueBoolean, true},
		{"<a*>", 1, 0, ValueMixed, true},
		{"<:d>", 0, 0, ValueDate, false},
		{"<vs:s>", 2, 2, ValueString, false},
	}
	for _, tt := range tests {
		t.Run(tt.sig, func(t *testing.T) {
			s, err := ParseSignature(tt.sig)
			if err != nil {
				t.Fatalf("ParseSignature(%q) error: %v", tt.sig, err)
			}
			if len(s.Params) != tt.params {
				t.Errorf("params = %d, want %d", len(s.Params), tt.params)
			}
			if got := MinArgs(s.Params); got != tt.min {
				t.Errorf("MinArgs = %d, want %d", got, tt.min)
			}
			if s.Returns != tt.returns {
				t.Errorf("Returns = %s, want %s", s.Returns, tt.returns)
			}
			if tt.params > 0 && s.Params[len(s.Params)-1].Variadic != tt.variadic {
				t.Errorf("last param variadic = %v, want %v", !tt.variadic, tt.variadic)
			}
		})
	}
}

func TestParseSignatureErrors(t *testing.T) {
	for _, sig := range []string{"nn:n", "<q:n>", "<n?n:n>", "<n:nn>", "<n:u>"} {
		if _, err := ParseSignature(sig); err == nil {
			t.Errorf("ParseSignature(%q) expected error", sig)
		}
	}
}

func TestParamAt(t *testing.T) {
	s := MustParseSignature("<sn+:n>")
	for i, want := range []ValueType{ValueString, ValueNumber, ValueNumber, ValueNumber} {
		p, ok := ParamAt(s.Params, i)
		if !ok || p.Type != want {
			t.Errorf("ParamAt(%d) = %v, %v; want %s", i, p.Type, ok, want)
		}
	}
	fixed := MustParseSignature("<n:n>")
	if _, ok := ParamAt(fixed.Params, 1); ok {
		t.Error("ParamAt past a fixed signature should fail")
	}
	if _, ok := ParamAt(nil, 0); ok {
		t.Error("ParamAt on no params should fail")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name string
		want Mode
	}{
		{"VALIDATION_RULE", ModeValidationRule},
		{"program-indicator", ModeProgramIndicator},
		{"Rule_Engine_Action", ModeRuleEngineAction},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.name)
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", tt.name, got, err, tt.want)
		}
		if got.String() != ModeNames()[indexOf(tt.want)] {
			t.Errorf("String() = %q", got.String())
		}
	}
	if _, err := ParseMode("nope"); err == nil {
		t.Error("ParseMode(nope) expected error")
	}
	if got := (ModeValidationRule | ModeIndicator).String(); got != "VALIDATION_RULE|INDICATOR" {
		t.Errorf("combined String() = %q", got)
	}
	if !ModeRuleEngineCondition.IsRuleEngine() || ModeProgramIndicator.IsRuleEngine() {
		t.Error("IsRuleEngine mismatch")
	}
	if !modesAggregate.Accepts(ModeIndicator) || modesAggregate.Accepts(ModeProgramIndicator) {
		t.Error("Accepts mismatch")
	}
	if len(Modes()) != 7 {
		t.Errorf("Modes() = %d entries", len(Modes()))
	}
}

func indexOf(m Mode) int {
	for i, mode := range Modes() {
		if mode == m {
			return i
		}
	}
	return -1
}

func TestParseValueType(t *testing.T) {
	tests := map[string]ValueType{
		"NUMBER":           ValueNumber,
		"TEXT":             ValueString,
		"INTEGER_POSITIVE": ValueNumber,
		"TRUE_ONLY":        ValueBoolean,
		"AGE":              ValueDate,
		"SAME":             ValueMixed,
		"FILE_RESOURCE":    ValueMixed,
	}
	for name, want := range tests {
		if got := ParseValueType(name); got != want {
			t.Errorf("ParseValueType(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestAssignability(t *testing.T) {
	tests := []struct {
		from, to      ValueType
		assign, maybe bool
	}{
		{ValueNumber, ValueNumber, true, true},
		{ValueMixed, ValueDate, true, true},
		{ValueDate, ValueSame, true, true},
		{ValueString, ValueNumber, false, true},
		{ValueNumber, ValueString, false, true},
		{ValueBoolean, ValueNumber, false, true},
		{ValueDate, ValueNumber, false, false},
		{ValueNumber, ValueDate, false, false},
	}
	for _, tt := range tests {
		if got := tt.from.IsAssignableTo(tt.to); got != tt.assign {
			t.Errorf("%s.IsAssignableTo(%s) = %v", tt.from, tt.to, got)
		}
		if got := tt.from.IsMaybeAssignableTo(tt.to); got != tt.maybe {
			t.Errorf("%s.IsMaybeAssignableTo(%s) = %v", tt.from, tt.to, got)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-02-29", "2024-02-29", true},
		{"2024-1-5", "2024-01-05", true},
		{"2024-03-01T10:30:00Z", "2024-03-01", true},
		{"2024-03-01T10:30:00.000", "2024-03-01", true},
		{"2023-02-29", "", false},
		{"2024-13-01", "", false},
		{"20240101", "", false},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseDate(%q) error = %v", tt.in, err)
			continue
		}
		if tt.ok && got.Format(DateLayout) != tt.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got.Format(DateLayout), tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	a, b := 0.1, 0.2
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "null"},
		{3.0, "3"},
		{a + b, "0.30000000000000004"},
		{7, "7"},
		{math.Inf(-1), "-Infinity"},
		{math.NaN(), "NaN"},
		{true, "true"},
		{"abc", "abc"},
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "2024-03-01"},
		{[]interface{}{1, 2.5, nil}, "[1, 2.5, null]"},
		{NewVariableValue(4, ValueNumber, nil, ""), "4"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		in     interface{}
		target ValueType
		want   interface{}
		err    string
	}{
		{"12.5", ValueNumber, 12.5, ""},
		{true, ValueNumber, 1.0, ""},
		{nil, ValueNumber, nil, ""},
		{"abc", ValueNumber, nil, "Could not coerce String 'abc' to Double"},
		{2.0, ValueBoolean, true, ""},
		{0.0, ValueBoolean, false, ""},
		{"TRUE", ValueBoolean, true, ""},
		{"0", ValueBoolean, false, ""},
		{1.1, ValueBoolean, nil, "Could not coerce Double '1.1' to Boolean"},
		{"2024-1-5", ValueDate, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), ""},
		{1.0, ValueDate, nil, "Could not coerce Double '1' to Date"},
		{1.5, ValueString, "1.5", ""},
		{false, ValueString, "false", ""},
		{[]interface{}{1.0}, ValueString, nil, "Could not coerce List '[1]' to String"},
		{int64(3), ValueMixed, 3.0, ""},
	}
	for _, tt := range tests {
		got, err := Coerce(tt.in, tt.target)
		if tt.err != "" {
			var cerr *CoercionError
			if !errors.As(err, &cerr) || err.Error() != tt.err {
				t.Errorf("Coerce(%#v, %s) error = %v, want %q", tt.in, tt.target, err, tt.err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Coerce(%#v, %s) error: %v", tt.in, tt.target, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Coerce(%#v, %s) = %#v, want %#v", tt.in, tt.target, got, tt.want)
		}
	}
}

func TestQueryModifiers(t *testing.T) {
	m := QueryModifiers{}.
		Apply(ModPeriodOffset, -1).
		Apply(ModPeriodOffset, -2).
		Apply(ModAggregationType, "MAX").
		Apply(ModMinDate, "2024-01-01").
		Apply(ModYearToDate, nil)
	if m.PeriodOffset != -3 {
		t.Errorf("PeriodOffset = %d, want -3", m.PeriodOffset)
	}
	want := ".aggregationType(MAX).minDate(2024-01-01).periodOffset(-3).yearToDate()"
	if m.String() != want {
		t.Errorf("String() = %q, want %q", m.String(), want)
	}

	item := DataItem{
		Type:      ItemDataElement,
		UID0:      ID{Kind: IDDataElement, Value: "FTRrcoaog83"},
		Modifiers: QueryModifiers{}.Apply(ModPeriodAggregation, nil).Apply(ModSubExpression, "1"),
	}
	if item.String() != "#{FTRrcoaog83}" {
		t.Errorf("String() = %q", item.String())
	}
	if item.Key() != "#{FTRrcoaog83}|periodAggregation|subExpression:1" {
		t.Errorf("Key() = %q", item.Key())
	}
	plain := item
	plain.Modifiers = QueryModifiers{}
	if item.Equal(plain) {
		t.Error("items with different implicit modifiers must not be equal")
	}
}

func TestLookupDataItemType(t *testing.T) {
	for _, dt := range DataItemTypes() {
		got, ok := LookupDataItemType(dt.Sigil())
		if !ok || got != dt {
			t.Errorf("LookupDataItemType(%q) = %v, %v", dt.Sigil(), got, ok)
		}
	}
	if _, ok := LookupDataItemType("Z"); ok {
		t.Error("unknown sigil resolved")
	}
	if got := ItemDataElement.Shapes(ModeProgramIndicator); len(got) != 1 || got[0][0] != IDProgramStage {
		t.Errorf("program indicator shape = %v", got)
	}
}

func TestIssues(t *testing.T) {
	issues := Issues{
		{Severity: SeverityWarning, Message: "w"},
		{Severity: SeverityError, Message: "e1"},
		{Severity: SeverityError, Message: "e2"},
	}
	err := issues.Err()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Err() = %v, want *ValidationError", err)
	}
	if err.Error() != "2 error(s), 1 warning(s): e1; e2" {
		t.Errorf("Error() = %q", err.Error())
	}
	if Issues(issues[:1]).Err() != nil {
		t.Error("warnings alone must not fail")
	}
	if issues[0].String() != "warning: w" {
		t.Errorf("Issue.String() = %q", issues[0].String())
	}
}

func TestEvaluationError(t *testing.T) {
	err := NewEvaluationError("1 / x", ErrUnknownVariable)
	if err.Error() != "unknown variable in expression: 1 / x" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrUnknownVariable) {
		t.Error("errors.Is(ErrUnknownVariable) failed")
	}
	if (&EvaluationError{Message: "boom"}).Error() != "boom" {
		t.Error("message without expression")
	}
}

func TestParseErrorPointer(t *testing.T) {
	err := NewParseError("abc\ndef ghi", 8, 11, "bad %s", "token")
	line, col := err.Line()
	if line != 2 || col != 4 {
		t.Errorf("Line() = %d, %d", line, col)
	}
	if err.Excerpt() != "def ghi" {
		t.Errorf("Excerpt() = %q", err.Excerpt())
	}
	if err.Pointer() != "    ^-^" {
		t.Errorf("Pointer() = %q", err.Pointer())
	}
}

func TestLazyText(t *testing.T) {
	calls := 0
	l := NewLazyText(func() string {
		calls++
		return "x"
	})
	if l.String() != "x" || l.String() != "x" || calls != 1 {
		t.Errorf("LazyText rendered %d times", calls)
	}
}
