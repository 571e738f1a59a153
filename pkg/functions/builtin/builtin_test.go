package builtin_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/dhis2expr/pkg/evaluator"
	"github.com/sandrolain/dhis2expr/pkg/functions/builtin"
	"github.com/sandrolain/dhis2expr/pkg/parser"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

type evalCase struct {
	expr string
	want interface{}
}

func run(t *testing.T, mode types.Mode, data *evaluator.Data, tests []evalCase) {
	t.Helper()
	ev := evaluator.New(evaluator.WithFunctions(builtin.New()))
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := parser.Parse(tt.expr, mode)
			require.NoError(t, err)
			got, err := ev.Eval(context.Background(), expr, data)
			require.NoError(t, err)
			if want, ok := tt.want.(string); ok {
				// dates and strings compare through their text form
				assert.Equal(t, want, types.FormatValue(got))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommonFunctions(t *testing.T) {
	run(t, types.ModeValidationRule, nil, []evalCase{
		{"firstNonNull(null, 2, 3)", 2.0},
		{"firstNonNull(null, null)", nil},
		{"greatest(1, 5, 3)", 5.0},
		{"least(4, null, 2)", 2.0},
		{"if(false, 1, 2)", 2.0},
		{"if(null, 1, 2)", 2.0},
		{"isNull(null)", true},
		{"isNotNull(1)", true},
		{"removeZeros(0)", nil},
		{"removeZeros(3)", 3.0},
		{"contains('abcdef', 'bc', 'ef')", true},
		{"contains('abcdef', 'bc', 'x')", false},
		{"containsItems('a,b, c', 'c')", true},
		{"containsItems('a,b', 'ab')", false},
		{"log(null)", nil},
	})
}

func TestLogFunctions(t *testing.T) {
	ev := evaluator.New(evaluator.WithFunctions(builtin.New()))
	for expr, want := range map[string]float64{
		"log(100, 10)": 2,
		"log10(1000)":  3,
		"log(1)":       0,
	} {
		e, err := parser.Parse(expr, types.ModeValidationRule)
		require.NoError(t, err)
		got, err := ev.Eval(context.Background(), e, nil)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-9, expr)
	}
}

func TestOrgUnitFunctions(t *testing.T) {
	data := &evaluator.Data{OrgUnit: &evaluator.OrgUnit{
		UID:       "DiszpKrYNg8",
		Ancestors: []string{"ImspTQPwCqd"},
		Groups:    []string{"CXw2yu5fodb"},
		DataSets:  []string{"BfMAe6Itzgt"},
		Programs:  []string{"IpHINAT79UW"},
	}}
	run(t, types.ModePredictorGenerator, data, []evalCase{
		{"orgUnit.group(Uid00000001, CXw2yu5fodb)", true},
		{"orgUnit.group(Uid00000001)", false},
		{"orgUnit.ancestor(ImspTQPwCqd)", true},
		{"orgUnit.dataSet(BfMAe6Itzgt)", true},
		{"orgUnit.program(IpHINAT79UW)", true},
	})

	expr, err := parser.Parse("orgUnit.group(CXw2yu5fodb)", types.ModePredictorGenerator)
	require.NoError(t, err)
	_, err = evaluator.New(evaluator.WithFunctions(builtin.New())).Eval(context.Background(), expr, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no org unit to evaluate against")
}

func TestProgramFunctions(t *testing.T) {
	data := &evaluator.Data{
		ProgramVariables: map[string]interface{}{"event_count": 5},
		Supplementary:    map[string][]string{"RELATIONSHIPS": {"Uid00000001", "Uid00000002", "Uid00000001"}},
	}
	run(t, types.ModeProgramIndicator, data, []evalCase{
		{"d2:addDays('2024-01-30', 3)", "2024-02-02"},
		{"d2:addDays(null, 3)", nil},
		{"d2:daysBetween('2024-01-01', '2024-03-01')", 60.0},
		{"d2:weeksBetween('2024-01-01', '2024-01-15')", 2.0},
		{"d2:monthsBetween('2024-01-31', '2024-03-01')", 1.0},
		{"d2:monthsBetween('2024-03-01', '2024-01-01')", -2.0},
		{"d2:yearsBetween('2020-06-15', '2024-06-14')", 3.0},
		{"d2:minutesBetween('2024-01-01', '2024-01-02')", 1440.0},
		{"d2:ceil(1.2)", 2.0},
		{"d2:floor(-1.5)", -2.0},
		{"d2:round(2.5)", 3.0},
		{"d2:round(1.2345, 2)", 1.23},
		{"d2:concatenate('a', 1, null, true)", "a1true"},
		{"d2:left('hello', 2)", "he"},
		{"d2:right('hello', 3)", "llo"},
		{"d2:right('hi', 5)", "hi"},
		{"d2:substring('hello', 1, 3)", "el"},
		{"d2:length('héllo')", 5.0},
		{"d2:split('a,b,c', ',', 1)", "b"},
		{"d2:split('a,b,c', ',', 7)", ""},
		{"d2:modulus(7, 3)", 1.0},
		{"d2:oizp(-1)", 0.0},
		{"d2:oizp(0)", 1.0},
		{"d2:zing(-3)", 0.0},
		{"d2:zing(4)", 4.0},
		{"d2:zpvc(1, -2, 0, null)", 2.0},
		{"d2:validatePattern('123', '[0-9]+')", true},
		{"d2:validatePattern('12a', '[0-9]+')", false},
		{"d2:condition('V{event_count} > 3', 1, 0)", 1.0},
		{"d2:condition('V{event_count} > 9', 1, 0)", 0.0},
		{"d2:relationshipCount()", 3.0},
		{"d2:relationshipCount(Uid00000001)", 2.0},
	})
}

func TestRuleVariableFunctions(t *testing.T) {
	data := &evaluator.Data{
		RuleVariables: map[string]types.VariableValue{
			"age":   types.NewVariableValue(5.0, types.ValueNumber, []string{"4", "5", "-1", "5"}, "2024-03-01"),
			"empty": types.NewVariableValue(nil, types.ValueString, nil, ""),
		},
		Supplementary: map[string][]string{"USER": {"admin"}},
		OrgUnit:       &evaluator.OrgUnit{UID: "DiszpKrYNg8", Groups: []string{"CXw2yu5fodb"}},
	}
	run(t, types.ModeRuleEngineCondition, data, []evalCase{
		{"d2:hasValue(age)", true},
		{"d2:hasValue('empty')", false},
		{"d2:hasValue(#{missing})", false},
		{"d2:count(#{age})", 4.0},
		{"d2:countIfValue(#{age}, 5)", 2.0},
		{"d2:countIfCondition(#{age}, '> 4')", 2.0},
		{"d2:countIfZeroPos(#{age})", 3.0},
		{"d2:maxValue(#{age})", 5.0},
		{"d2:minValue(#{age})", -1.0},
		{"d2:minValue(#{empty})", nil},
		{"d2:lastEventDate(#{age})", "2024-03-01"},
		{"d2:lastEventDate(#{empty})", nil},
		{"d2:hasUserRole('admin')", true},
		{"d2:hasUserRole('nurse')", false},
		{"d2:inOrgUnitGroup('CXw2yu5fodb')", true},
		{"d2:inOrgUnitGroup('Uid00000001')", false},
	})
}

func TestAggregateFunctions(t *testing.T) {
	data := &evaluator.Data{Items: types.DataItemValues{
		"#{FTRrcoaog83}": []float64{2, 4, 4, 4, 5, 5, 7, 9},
		"#{Uid00000001}": []interface{}{nil, nil},
	}}
	run(t, types.ModePredictorGenerator, data, []evalCase{
		{"avg(#{FTRrcoaog83})", 5.0},
		{"stddevPop(#{FTRrcoaog83})", 2.0},
		{"stddev(#{FTRrcoaog83})", math.Sqrt(32.0 / 7)},
		{"percentileCont(0.25, #{FTRrcoaog83})", 4.0},
		{"percentileCont(1, #{FTRrcoaog83})", 9.0},
		{"sum(#{Uid00000001})", nil},
		{"count(#{Uid00000001})", 0.0},
		{"variance(5)", nil},
	})

	expr, err := parser.Parse("percentileCont(1.5, #{FTRrcoaog83})", types.ModePredictorGenerator)
	require.NoError(t, err)
	_, err = evaluator.New(evaluator.WithFunctions(builtin.New())).Eval(context.Background(), expr, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "percentileCont fraction must be between 0 and 1")
}

func TestNewRegistersEveryEvaluableFunction(t *testing.T) {
	reg := builtin.New()
	for _, name := range []string{"avg", "if", "orgUnit.group", "d2:condition", "d2:zpvc"} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, name)
	}
	_, ok := reg.Lookup("d2:zScoreWFA")
	assert.False(t, ok)
}
