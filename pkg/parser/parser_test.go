package parser

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/dhis2expr/pkg/render"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

func mustParse(t *testing.T, text string, mode types.Mode, opts ...CompileOption) *types.Expression {
	t.Helper()
	expr, err := Parse(text, mode, opts...)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", text, err)
	}
	return expr
}

// shape renders the operator structure of n as an s-expression.
func shape(n *types.Node) string {
	switch n.Type {
	case types.NodeBinaryOperator:
		return "(" + n.Raw + " " + shape(n.Children[0]) + " " + shape(n.Children[1]) + ")"
	case types.NodeUnaryOperator:
		return "(" + n.Raw + " " + shape(n.Children[0]) + ")"
	case types.NodePar:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = shape(c)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case types.NodeFunction:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = shape(c.Children[0])
		}
		return n.Raw + "(" + strings.Join(parts, " ") + ")"
	default:
		return render.Normalise(n)
	}
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1+2*3", "(+ 1 (* 2 3))"},
		{"1-2-3", "(- (- 1 2) 3)"},
		{"8/4/2", "(/ (/ 8 4) 2)"},
		{"2^-2", "(^ 2 (- 2))"},
		{"2^--2", "(^ 2 (- (- 2)))"},
		{"-2^2", "(- (^ 2 2))"},
		{"2^3^2", "(^ (^ 2 3) 2)"},
		{"1+2*-3^9*4*5+6", "(+ (+ 1 (* (* (* 2 (- (^ 3 9))) 4) 5)) 6)"},
		{"(1+2)*3", "(* [(+ 1 2)] 3)"},
		{"1 < 2 and 3 >= 4 or !true", "(or (and (< 1 2) (>= 3 4)) (! true))"},
		{"1 == 2 && 3 != 4 || false", "(|| (&& (== 1 2) (!= 3 4)) false)"},
		{"not true == false", "(== (not true) false)"},
		{"1 % 2 + 3", "(+ (% 1 2) 3)"},
		{"if(1 + 2 > 3, 4, 5 * 6)", "if((> (+ 1 2) 3) 4 (* 5 6))"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr := mustParse(t, tt.expr, types.ModeValidationRule)
			assert.Equal(t, tt.want, shape(expr.AST()))
		})
	}
}

func TestGroupIsIdempotent(t *testing.T) {
	for _, text := range []string{"1+2*-3^9*4*5+6", "2^--2", "(1+2)*-3^(9*4)*5+6", "!true || false && true"} {
		expr := mustParse(t, text, types.ModeValidationRule)
		before := shape(expr.AST())
		group(expr.Wrapper())
		assert.Equal(t, before, shape(expr.AST()), text)
	}
}

func TestParseRootIsSingleChild(t *testing.T) {
	expr := mustParse(t, "1 + 2", types.ModeValidationRule)
	require.Len(t, expr.Wrapper().Children, 1)
	assert.Same(t, expr.Wrapper().Children[0], expr.AST())
	assert.True(t, expr.Wrapper().Implicit)
	assert.Equal(t, types.NodeBinaryOperator, expr.AST().Type)
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		expr  string
		kind  types.NodeType
		value interface{}
	}{
		{"12", types.NodeNumber, 12.0},
		{"12.", types.NodeNumber, 12.0},
		{".5", types.NodeNumber, 0.5},
		{"1e3", types.NodeNumber, 1000.0},
		{"1.5E-2", types.NodeNumber, 0.015},
		{"1e400", types.NodeNumber, math.Inf(1)},
		{"'a\\tb'", types.NodeString, "a\tb"},
		{`"Abc"`, types.NodeString, "Abc"},
		{`'\101'`, types.NodeString, "A"},
		{`'it\'s'`, types.NodeString, "it's"},
		{"true", types.NodeBoolean, true},
		{"false", types.NodeBoolean, false},
		{"null", types.NodeNull, nil},
		{"[days]", types.NodeNamedValue, types.NamedValueDays},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			n := mustParse(t, tt.expr, types.ModeValidationRule).AST()
			assert.Equal(t, tt.kind, n.Type)
			assert.Equal(t, tt.value, n.Value)
			assert.Equal(t, tt.expr, n.Raw)
		})
	}
}

func TestParseDataItems(t *testing.T) {
	tests := []struct {
		name string
		expr string
		mode types.Mode
		want string
		ids  []types.ID
	}{
		{
			name: "data element",
			expr: "#{FTRrcoaog83}",
			mode: types.ModeValidationRule,
			want: "#{FTRrcoaog83}",
			ids:  []types.ID{{Kind: types.IDDataElement, Value: "FTRrcoaog83"}},
		},
		{
			name: "category option combos",
			expr: "#{FTRrcoaog83.Uid00000001&Uid00000002.*}",
			mode: types.ModeValidationRule,
			want: "#{FTRrcoaog83.Uid00000001&Uid00000002.*}",
			ids: []types.ID{
				{Kind: types.IDDataElement, Value: "FTRrcoaog83"},
				{Kind: types.IDCategoryOptionCombo, Value: "Uid00000001"},
				{Kind: types.IDCategoryOptionCombo, Value: "Uid00000002"},
				{Kind: types.IDAttributeOptionCombo, Value: "*"},
			},
		},
		{
			name: "tagged",
			expr: "#{deGroup:Jtf34kNZhzP.co:Uid00000001}",
			mode: types.ModeValidationRule,
			want: "#{deGroup:Jtf34kNZhzP.co:Uid00000001}",
			ids: []types.ID{
				{Kind: types.IDDataElementGroup, Value: "Jtf34kNZhzP"},
				{Kind: types.IDCategoryOption, Value: "Uid00000001"},
			},
		},
		{
			name: "reporting rate",
			expr: "R{BfMAe6Itzgt.REPORTING_RATE}",
			mode: types.ModeValidationRule,
			want: "R{BfMAe6Itzgt.REPORTING_RATE}",
			ids: []types.ID{
				{Kind: types.IDDataSet, Value: "BfMAe6Itzgt"},
				{Kind: types.IDReportingRateMetric, Value: "REPORTING_RATE"},
			},
		},
		{
			name: "constant",
			expr: "C{Gfd3ppDfq8E}",
			mode: types.ModeIndicator,
			want: "C{Gfd3ppDfq8E}",
			ids:  []types.ID{{Kind: types.IDConstant, Value: "Gfd3ppDfq8E"}},
		},
		{
			name: "program stage data element",
			expr: "#{A03MvHHogjR.a3kGcGDCuk6}",
			mode: types.ModeProgramIndicator,
			want: "#{A03MvHHogjR.a3kGcGDCuk6}",
			ids: []types.ID{
				{Kind: types.IDProgramStage, Value: "A03MvHHogjR"},
				{Kind: types.IDDataElement, Value: "a3kGcGDCuk6"},
			},
		},
		{
			name: "event date",
			expr: "PS_EVENTDATE:A03MvHHogjR",
			mode: types.ModeProgramIndicator,
			want: "PS_EVENTDATE:A03MvHHogjR",
			ids:  []types.ID{{Kind: types.IDProgramStage, Value: "A03MvHHogjR"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := mustParse(t, tt.expr, tt.mode)
			items := expr.DataItems()
			require.Len(t, items, 1)
			assert.Equal(t, tt.want, items[0].String())
			assert.Equal(t, tt.ids, items[0].IDs())

			item, ok := expr.DataItemOf(expr.AST())
			require.True(t, ok)
			assert.True(t, item.Equal(items[0]))
		})
	}
}

func TestParseVariables(t *testing.T) {
	expr := mustParse(t, "V{event_count} + V{current_date}", types.ModeProgramIndicator)
	vars := expr.Variables()
	require.Len(t, vars, 2)
	assert.Equal(t, "V{event_count}", vars[0].String())
	assert.Equal(t, types.VarProgram, vars[0].Kind)
	assert.Equal(t, "current_date", vars[1].Name)

	expr = mustParse(t, "#{age} > 3 && A{weight} < 80", types.ModeRuleEngineCondition)
	vars = expr.Variables()
	require.Len(t, vars, 2)
	assert.Equal(t, types.Variable{Kind: types.VarProgramRule, Name: "age"}, vars[0])
	assert.Equal(t, "weight", vars[1].Name)
	assert.Empty(t, expr.DataItems())
}

func TestParseRuleVariableArguments(t *testing.T) {
	for _, text := range []string{"d2:hasValue(#{age})", "d2:hasValue('age')", "d2:hasValue(\"age\")", "d2:hasValue(age)"} {
		t.Run(text, func(t *testing.T) {
			expr := mustParse(t, text, types.ModeRuleEngineAction)
			vars := expr.Variables()
			require.Len(t, vars, 1)
			assert.Equal(t, "age", vars[0].Name)
		})
	}
}

func TestCollectDeduplicates(t *testing.T) {
	expr := mustParse(t, "#{FTRrcoaog83} + #{FTRrcoaog83} * #{FTRrcoaog83.Uid00000001} + C{Gfd3ppDfq8E}", types.ModeValidationRule)
	items := expr.DataItems()
	require.Len(t, items, 3)
	assert.Equal(t, "#{FTRrcoaog83}", items[0].String())
	assert.Equal(t, "#{FTRrcoaog83.Uid00000001}", items[1].String())
	assert.Equal(t, "C{Gfd3ppDfq8E}", items[2].String())

	var uids []string
	for _, id := range expr.UIDs() {
		uids = append(uids, id.Value)
	}
	assert.Equal(t, []string{"FTRrcoaog83", "Uid00000001", "Gfd3ppDfq8E"}, uids)
}

func TestParseModes(t *testing.T) {
	_, err := Parse("d2:floor(1.5)", types.ModeValidationRule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown function or constant: 'd2:floor'")

	mustParse(t, "d2:floor(1.5)", types.ModeProgramIndicator)
	mustParse(t, "orgUnit.group(CXw2yu5fodb, Uid00000001)", types.ModePredictorGenerator)

	_, err = Parse("N{Uid00000001}", types.ModeValidationRule)
	require.Error(t, err)
	mustParse(t, "N{Uid00000001}", types.ModeIndicator)

	_, err = Parse("1", types.ModeValidationRule|types.ModeIndicator)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one mode")
}

func TestParseMaxDepth(t *testing.T) {
	_, err := Parse("((((1))))", types.ModeValidationRule, WithMaxDepth(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expression nesting exceeds maximum depth of 3")

	mustParse(t, "((((1))))", types.ModeValidationRule)

	deep := strings.Repeat("(", DefaultMaxDepth+1) + "1" + strings.Repeat(")", DefaultMaxDepth+1)
	_, err = Parse(deep, types.ModeValidationRule)
	require.Error(t, err)

	_, err = Parse(strings.Repeat("-", DefaultMaxDepth+1)+"1", types.ModeValidationRule)
	require.Error(t, err)
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("1 +", types.ModeValidationRule) })
	assert.NotPanics(t, func() { MustParse("1 + 1", types.ModeValidationRule) })
}
