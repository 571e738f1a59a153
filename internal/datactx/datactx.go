// Package datactx loads evaluation contexts from files.
//
// A context file is YAML (.yaml, .yml) or CUE (.cue) with these top-level
// keys, all optional:
//
//	values:            # data item text -> number, string or list of them
//	  "#{FTRrcoaog83}": 12
//	  "#{FTRrcoaog83}.periodOffset(-1)": [3, 4, 5]
//	programVariables:  # V{name} -> value
//	  current_date: "2024-01-15"
//	ruleVariables:     # program rule variables by name
//	  age: {value: 3, valueType: NUMBER, candidates: ["3", "2"], eventDate: "2024-01-10"}
//	namedValues:
//	  days: 31
//	displayNames:      # UID or variable name -> display name
//	  FTRrcoaog83: ANC 1st visit
//	supplementary:     # lookup tables such as USER roles or group members
//	  USER: [Role1]
//	orgUnit:
//	  uid: DiszpKrYNg8
//	  groups: [CXw2yu5fodb]
//
// Data item keys are parsed in the mode the context is loaded for, so they
// resolve to exactly the items an expression in that mode references.
package datactx

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sandrolain/dhis2expr/pkg/evaluator"
	"github.com/sandrolain/dhis2expr/pkg/parser"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

// File is the on-disk shape of a context file.
type File struct {
	Values           map[string]interface{}  `yaml:"values" json:"values"`
	ProgramVariables map[string]interface{}  `yaml:"programVariables" json:"programVariables"`
	RuleVariables    map[string]RuleVariable `yaml:"ruleVariables" json:"ruleVariables"`
	NamedValues      map[string]interface{}  `yaml:"namedValues" json:"namedValues"`
	DisplayNames     map[string]string       `yaml:"displayNames" json:"displayNames"`
	Supplementary    map[string][]string     `yaml:"supplementary" json:"supplementary"`
	OrgUnit          *OrgUnit                `yaml:"orgUnit" json:"orgUnit"`
}

// RuleVariable is one program rule variable value.
type RuleVariable struct {
	Value      interface{} `yaml:"value" json:"value"`
	ValueType  string      `yaml:"valueType" json:"valueType"`
	Candidates []string    `yaml:"candidates" json:"candidates"`
	EventDate  string      `yaml:"eventDate" json:"eventDate"`
}

// OrgUnit is the org unit an expression is evaluated for.
type OrgUnit struct {
	UID       string   `yaml:"uid" json:"uid"`
	Ancestors []string `yaml:"ancestors" json:"ancestors"`
	Groups    []string `yaml:"groups" json:"groups"`
	DataSets  []string `yaml:"dataSets" json:"dataSets"`
	Programs  []string `yaml:"programs" json:"programs"`
}

// Context is a loaded context ready for use.
type Context struct {
	Data          *evaluator.Data
	DisplayNames  map[string]string
	VariableTypes map[string]types.ValueType
	// Items lists the resolved data items of Data.Items with their values,
	// in key order.
	Items []ItemValue
}

// ItemValue is one data item value of a context.
type ItemValue struct {
	Item  types.DataItem
	Value interface{}
}

// Load reads the context file at path for expressions in mode.
func Load(path string, mode types.Mode) (*Context, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context: %w", err)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(raw, &f)
	case ".cue":
		err = decodeCUE(raw, path, &f)
	default:
		return nil, fmt.Errorf("unsupported context file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode context %s: %w", path, err)
	}
	return Build(&f, mode)
}

// decodeYAML rejects unknown keys so that typos do not silently drop data.
func decodeYAML(raw []byte, f *File) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		return err
	}
	return nil
}

func decodeCUE(raw []byte, path string, f *File) error {
	v := cuecontext.New().CompileBytes(raw, cue.Filename(path))
	if err := v.Err(); err != nil {
		return err
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return v.Decode(f)
}

// Build converts a decoded file into a Context.
func Build(f *File, mode types.Mode) (*Context, error) {
	c := &Context{
		Data: &evaluator.Data{
			Items:            types.DataItemValues{},
			RuleVariables:    map[string]types.VariableValue{},
			ProgramVariables: map[string]interface{}{},
			NamedValues:      map[types.NamedValue]interface{}{},
			Supplementary:    map[string][]string{},
		},
		DisplayNames:  map[string]string{},
		VariableTypes: map[string]types.ValueType{},
	}

	keys := make([]string, 0, len(f.Values))
	for k := range f.Values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, text := range keys {
		item, err := itemOf(text, mode)
		if err != nil {
			return nil, err
		}
		v := value(f.Values[text])
		c.Data.Items.Put(item, v)
		c.Items = append(c.Items, ItemValue{Item: item, Value: v})
	}
	for name, v := range f.ProgramVariables {
		c.Data.ProgramVariables[name] = value(v)
	}
	for name, rv := range f.RuleVariables {
		t := types.ParseValueType(rv.ValueType)
		c.Data.RuleVariables[name] = types.NewVariableValue(value(rv.Value), t, nfcAll(rv.Candidates), rv.EventDate)
		c.VariableTypes[name] = t
	}
	for name, v := range f.NamedValues {
		c.Data.NamedValues[types.NamedValue(name)] = value(v)
	}
	for id, name := range f.DisplayNames {
		c.DisplayNames[id] = norm.NFC.String(name)
	}
	for key, vs := range f.Supplementary {
		c.Data.Supplementary[key] = nfcAll(vs)
	}
	if ou := f.OrgUnit; ou != nil {
		c.Data.OrgUnit = &evaluator.OrgUnit{
			UID:       ou.UID,
			Ancestors: ou.Ancestors,
			Groups:    ou.Groups,
			DataSets:  ou.DataSets,
			Programs:  ou.Programs,
		}
	}
	return c, nil
}

// itemOf parses text as a single data item reference.
func itemOf(text string, mode types.Mode) (types.DataItem, error) {
	expr, err := parser.Parse(text, mode)
	if err != nil {
		return types.DataItem{}, fmt.Errorf("value key %q: %w", text, err)
	}
	item, ok := expr.DataItemOf(expr.AST())
	if !ok {
		return types.DataItem{}, fmt.Errorf("value key %q is not a data item", text)
	}
	return item, nil
}

// value normalises decoded scalars: integers become float64 and strings are
// NFC normalised. Lists are converted element-wise.
func value(v interface{}) interface{} {
	switch x := v.(type) {
	case string:
		return norm.NFC.String(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = value(e)
		}
		return out
	default:
		return types.Unwrap(x)
	}
}

func nfcAll(ss []string) []string {
	if ss == nil {
		return nil
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = norm.NFC.String(s)
	}
	return out
}
