package datactx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/dhis2expr/pkg/evaluator"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

func TestLoadYAML(t *testing.T) {
	c, err := Load("testdata/context.yaml", types.ModeValidationRule)
	require.NoError(t, err)

	assert.Equal(t, types.DataItemValues{
		"#{FTRrcoaog83}":             12.0,
		"#{FTRrcoaog83.Uid00000001}": []interface{}{1.0, 2.5, nil},
		"C{Gfd3ppDfq8E}":             "3.14",
	}, c.Data.Items)

	require.Len(t, c.Items, 3)
	var keys []string
	for _, iv := range c.Items {
		keys = append(keys, iv.Item.Key())
	}
	assert.Equal(t, []string{"#{FTRrcoaog83.Uid00000001}", "#{FTRrcoaog83}", "C{Gfd3ppDfq8E}"}, keys)
	assert.Equal(t, types.ItemConstant, c.Items[2].Item.Type)

	assert.Equal(t, 4.0, c.Data.ProgramVariables["event_count"])
	assert.Equal(t, 31.0, c.Data.NamedValues[types.NamedValueDays])

	age := c.Data.RuleVariables["age"]
	require.NotNil(t, age)
	assert.Equal(t, 3.0, age.Value())
	assert.Equal(t, types.ValueNumber, age.ValueType())
	assert.Equal(t, []string{"3", "2"}, age.Candidates())
	assert.Equal(t, "2024-01-10", age.EventDate())
	assert.Equal(t, map[string]types.ValueType{"age": types.ValueNumber}, c.VariableTypes)

	assert.Equal(t, "ANC 1st visit", c.DisplayNames["FTRrcoaog83"])
	assert.Equal(t, "Caf\u00e9", c.DisplayNames["Uid00000001"], "display names are NFC normalised")

	assert.Equal(t, []string{"Role1"}, c.Data.Supplementary["USER"])
	assert.Equal(t, &evaluator.OrgUnit{UID: "DiszpKrYNg8", Groups: []string{"CXw2yu5fodb"}}, c.Data.OrgUnit)
}

func TestLoadCUE(t *testing.T) {
	c, err := Load("testdata/context.cue", types.ModeValidationRule)
	require.NoError(t, err)

	require.Len(t, c.Items, 2)
	assert.Equal(t, "#{FTRrcoaog83}", c.Items[0].Item.Key())
	assert.Equal(t, "12", types.FormatValue(c.Items[0].Value))
	assert.Equal(t, "#{FTRrcoaog83}.periodOffset(-1)", c.Items[1].Item.Key())
	assert.Equal(t, -1, c.Items[1].Item.Modifiers.PeriodOffset)
	assert.Equal(t, "[3, 4, 5]", types.FormatValue(c.Items[1].Value))

	assert.Equal(t, "2024-01-15", c.Data.ProgramVariables["current_date"])
	assert.Equal(t, "ANC 1st visit", c.DisplayNames["FTRrcoaog83"])
	require.NotNil(t, c.Data.OrgUnit)
	assert.Equal(t, []string{"CXw2yu5fodb"}, c.Data.OrgUnit.Groups)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"testdata/unknown_key.yaml", "field valuez not found"},
		{"testdata/not_an_item.yaml", `value key "1 + 2" is not a data item`},
		{"testdata/bad_item.yaml", "Invalid UID: 'abc'"},
		{"testdata/context.json", `unsupported context file extension ".json"`},
		{"testdata/missing.yaml", "read context"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := Load(tt.path, types.ModeValidationRule)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildModeDependentKeys(t *testing.T) {
	f := &File{Values: map[string]interface{}{"#{A03MvHHogjR.a3kGcGDCuk6}": 2}}

	c, err := Build(f, types.ModeProgramIndicator)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, types.IDProgramStage, c.Items[0].Item.UID0.Kind)

	c, err = Build(f, types.ModeValidationRule)
	require.NoError(t, err)
	assert.Equal(t, types.IDCategoryOptionCombo, c.Items[0].Item.UID1[0].Kind)
}

func TestBuildEmpty(t *testing.T) {
	c, err := Build(&File{}, types.ModeValidationRule)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.NotNil(t, c.Data.Items)
	assert.Nil(t, c.Data.OrgUnit)
}
