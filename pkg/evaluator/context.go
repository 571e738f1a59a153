package evaluator

import (
	"context"
	"fmt"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

// Data is the caller-supplied input of one evaluation. The evaluator never
// fetches data itself.
type Data struct {
	// Items holds data item values keyed by DataItem.Key. A slice value is
	// the per-period vector consumed by aggregate functions.
	Items types.DataItemValues
	// RuleVariables holds program rule variable values by name.
	RuleVariables map[string]types.VariableValue
	// ProgramVariables holds V{name} values by name.
	ProgramVariables map[string]interface{}
	// NamedValues holds the values of bracketed named values such as [days].
	NamedValues map[types.NamedValue]interface{}
	// Supplementary holds lookup tables such as user roles ("USER") or org
	// unit group members keyed by group UID.
	Supplementary map[string][]string
	// OrgUnit describes the org unit the expression is evaluated for.
	OrgUnit *OrgUnit
}

// OrgUnit is the org unit context used by the orgUnit.* functions.
type OrgUnit struct {
	UID       string
	Ancestors []string
	Groups    []string
	DataSets  []string
	Programs  []string
}

// String returns a short description of the data.
func (d *Data) String() string {
	if d == nil {
		return "Data{}"
	}
	return fmt.Sprintf("Data{items=%d, ruleVariables=%d, programVariables=%d}",
		len(d.Items), len(d.RuleVariables), len(d.ProgramVariables))
}

type dataKey struct{}

// WithData returns a context carrying data, for functions that need the
// evaluation input.
func WithData(ctx context.Context, data *Data) context.Context {
	return context.WithValue(ctx, dataKey{}, data)
}

// DataFrom returns the data of the evaluation running in ctx, or nil.
func DataFrom(ctx context.Context) *Data {
	d, _ := ctx.Value(dataKey{}).(*Data)
	return d
}

type modeKey struct{}

// ModeFrom returns the mode of the expression being evaluated in ctx.
func ModeFrom(ctx context.Context) (types.Mode, bool) {
	m, ok := ctx.Value(modeKey{}).(types.Mode)
	return m, ok
}
