package types

import (
	"fmt"
	"strconv"
	"strings"
)

// IDKind is the kind of object a UID (or symbolic name) inside a data item
// refers to.
type IDKind uint8

// ID kinds.
const (
	IDDataElement IDKind = iota
	IDCategoryOptionCombo
	IDAttributeOptionCombo
	IDDataElementGroup
	IDCategoryOptionGroup
	IDCategoryOption
	IDProgram
	IDProgramStage
	IDAttribute
	IDConstant
	IDProgramIndicator
	IDIndicator
	IDOrgUnitGroup
	IDDataSet
	IDReportingRateMetric
	IDOrgUnit
)

var idKindNames = [...]string{
	IDDataElement:          "DATA_ELEMENT",
	IDCategoryOptionCombo:  "CATEGORY_OPTION_COMBO",
	IDAttributeOptionCombo: "ATTRIBUTE_OPTION_COMBO",
	IDDataElementGroup:     "DATA_ELEMENT_GROUP",
	IDCategoryOptionGroup:  "CATEGORY_OPTION_GROUP",
	IDCategoryOption:       "CATEGORY_OPTION",
	IDProgram:              "PROGRAM",
	IDProgramStage:         "PROGRAM_STAGE",
	IDAttribute:            "ATTRIBUTE",
	IDConstant:             "CONSTANT",
	IDProgramIndicator:     "PROGRAM_INDICATOR",
	IDIndicator:            "INDICATOR",
	IDOrgUnitGroup:         "ORG_UNIT_GROUP",
	IDDataSet:              "DATA_SET",
	IDReportingRateMetric:  "REPORTING_RATE_METRIC",
	IDOrgUnit:              "ORG_UNIT",
}

func (k IDKind) String() string {
	if int(k) < len(idKindNames) {
		return idKindNames[k]
	}
	return fmt.Sprintf("IDKind(%d)", uint8(k))
}

// idTags are the leading "tag:" prefixes that override the kind of a UID.
var idTags = map[string]IDKind{
	"deGroup":      IDDataElementGroup,
	"coGroup":      IDCategoryOptionGroup,
	"co":           IDCategoryOption,
	"PS_EVENTDATE": IDProgramStage,
}

// LookupIDTag returns the kind selected by a UID tag.
func LookupIDTag(tag string) (IDKind, bool) {
	k, ok := idTags[tag]
	return k, ok
}

// IDTags returns the known tag names, sorted.
func IDTags() []string {
	return []string{"PS_EVENTDATE", "co", "coGroup", "deGroup"}
}

// tagOf returns the tag that spells kind, if kind is only reachable by a tag.
func tagOf(kind IDKind) string {
	switch kind {
	case IDDataElementGroup:
		return "deGroup"
	case IDCategoryOptionGroup:
		return "coGroup"
	case IDCategoryOption:
		return "co"
	}
	return ""
}

// ID is one typed identifier inside a data item.
type ID struct {
	Kind  IDKind
	Value string
}

// IsWildcard reports whether the ID is the "*" placeholder.
func (id ID) IsWildcard() bool { return id.Value == "*" }

func (id ID) String() string {
	if tag := tagOf(id.Kind); tag != "" {
		return tag + ":" + id.Value
	}
	return id.Value
}

// DataItemType is the kind of external value a data item refers to.
type DataItemType uint8

// Data item types.
const (
	ItemDataElement DataItemType = iota
	ItemAttribute
	ItemConstant
	ItemProgramDataElement
	ItemProgramIndicator
	ItemIndicator
	ItemOrgUnitGroup
	ItemReportingRate
)

type itemInfo struct {
	sigil  string
	name   string
	value  ValueType
	shapes [][]IDKind
	modes  Mode
}

var dataItemTypes = [...]itemInfo{
	ItemDataElement: {"#", "DATA_ELEMENT", ValueNumber, [][]IDKind{
		{IDDataElement},
		{IDDataElement, IDCategoryOptionCombo},
		{IDDataElement, IDCategoryOptionCombo, IDAttributeOptionCombo},
	}, modesAggregate | ModeProgramIndicator},
	ItemAttribute: {"A", "ATTRIBUTE", ValueMixed, [][]IDKind{
		{IDAttribute},
		{IDProgram, IDAttribute},
	}, modesAggregate | ModeProgramIndicator},
	ItemConstant: {"C", "CONSTANT", ValueNumber, [][]IDKind{
		{IDConstant},
	}, modesAggregate | ModeProgramIndicator},
	ItemProgramDataElement: {"D", "PROGRAM_DATA_ELEMENT", ValueMixed, [][]IDKind{
		{IDProgram, IDDataElement},
	}, modesAggregate},
	ItemProgramIndicator: {"I", "PROGRAM_INDICATOR", ValueNumber, [][]IDKind{
		{IDProgramIndicator},
	}, modesAggregate},
	ItemIndicator: {"N", "INDICATOR", ValueNumber, [][]IDKind{
		{IDIndicator},
	}, ModeIndicator},
	ItemOrgUnitGroup: {"OUG", "ORG_UNIT_GROUP", ValueNumber, [][]IDKind{
		{IDOrgUnitGroup},
	}, modesAggregate},
	ItemReportingRate: {"R", "REPORTING_RATE", ValueNumber, [][]IDKind{
		{IDDataSet, IDReportingRateMetric},
	}, modesAggregate},
}

// programStageShape is how #{..} reads in program indicators.
var programStageShape = [][]IDKind{
	{IDProgramStage, IDDataElement},
}

// DataItemTypes returns all data item types.
func DataItemTypes() []DataItemType {
	all := make([]DataItemType, len(dataItemTypes))
	for i := range all {
		all[i] = DataItemType(i)
	}
	return all
}

// LookupDataItemType finds a data item type by its sigil.
func LookupDataItemType(sigil string) (DataItemType, bool) {
	for i, info := range dataItemTypes {
		if info.sigil == sigil {
			return DataItemType(i), true
		}
	}
	return 0, false
}

// Sigil returns the prefix written before the braces, e.g. "#" or "OUG".
func (t DataItemType) Sigil() string { return dataItemTypes[t].sigil }

// ValueType is the static type of the item's value.
func (t DataItemType) ValueType() ValueType { return dataItemTypes[t].value }

// Modes returns the modes in which the item type is allowed.
func (t DataItemType) Modes() Mode { return dataItemTypes[t].modes }

// Shapes returns the accepted ID kind sequences for mode, shortest first.
func (t DataItemType) Shapes(mode Mode) [][]IDKind {
	if t == ItemDataElement && mode == ModeProgramIndicator {
		return programStageShape
	}
	return dataItemTypes[t].shapes
}

func (t DataItemType) String() string { return dataItemTypes[t].name }

// AggregationType is the value of an aggregationType modifier.
type AggregationType string

// AggregationTypes lists the valid aggregationType options.
func AggregationTypes() []string {
	return []string{
		"SUM", "AVERAGE", "AVERAGE_SUM_ORG_UNIT", "LAST", "LAST_AVERAGE_ORG_UNIT",
		"LAST_LAST_ORG_UNIT", "LAST_IN_PERIOD", "LAST_IN_PERIOD_AVERAGE_ORG_UNIT",
		"FIRST", "FIRST_AVERAGE_ORG_UNIT", "FIRST_FIRST_ORG_UNIT", "COUNT", "STDDEV",
		"VARIANCE", "MIN", "MAX", "MIN_SUM_ORG_UNIT", "MAX_SUM_ORG_UNIT", "NONE",
		"CUSTOM", "DEFAULT",
	}
}

// ReportingRateMetrics lists the valid metrics of an R{dataSet.METRIC} item.
func ReportingRateMetrics() []string {
	return []string{
		"REPORTING_RATE", "REPORTING_RATE_ON_TIME", "ACTUAL_REPORTS",
		"ACTUAL_REPORTS_ON_TIME", "EXPECTED_REPORTS",
	}
}

// QueryModifiers are the refinements accumulated on a data item or variable.
//
// The zero value means "no modifiers". Offsets add up across applications,
// flags and dates are overwritten, and PeriodAggregation is never cleared.
type QueryModifiers struct {
	PeriodAggregation bool
	AggregationType   AggregationType
	MinDate           string // canonical YYYY-MM-DD, empty when unset
	MaxDate           string
	PeriodOffset      int
	StageOffset       int
	YearToDate        bool
	SubExpression     string
}

// Apply returns m refined by one modifier. arg is the modifier's argument:
// a string for aggregationType and subExpression, a date string for the date
// bounds, an int for offsets and nil for flags.
func (m QueryModifiers) Apply(kind ModifierKind, arg interface{}) QueryModifiers {
	switch kind {
	case ModAggregationType:
		m.AggregationType = AggregationType(arg.(string))
	case ModMaxDate:
		m.MaxDate = arg.(string)
	case ModMinDate:
		m.MinDate = arg.(string)
	case ModPeriodAggregation:
		m.PeriodAggregation = true
	case ModPeriodOffset:
		m.PeriodOffset += arg.(int)
	case ModStageOffset:
		m.StageOffset += arg.(int)
	case ModYearToDate:
		m.YearToDate = true
	case ModSubExpression:
		m.SubExpression = arg.(string)
	default:
		panic(fmt.Sprintf("unhandled modifier kind %d", kind))
	}
	return m
}

// String renders the modifiers that have a source syntax, in registry order.
func (m QueryModifiers) String() string {
	var sb strings.Builder
	if m.AggregationType != "" {
		sb.WriteString(".aggregationType(" + string(m.AggregationType) + ")")
	}
	if m.MaxDate != "" {
		sb.WriteString(".maxDate(" + m.MaxDate + ")")
	}
	if m.MinDate != "" {
		sb.WriteString(".minDate(" + m.MinDate + ")")
	}
	if m.PeriodOffset != 0 {
		sb.WriteString(".periodOffset(" + strconv.Itoa(m.PeriodOffset) + ")")
	}
	if m.StageOffset != 0 {
		sb.WriteString(".stageOffset(" + strconv.Itoa(m.StageOffset) + ")")
	}
	if m.YearToDate {
		sb.WriteString(".yearToDate()")
	}
	return sb.String()
}

func (m QueryModifiers) keySuffix() string {
	s := ""
	if m.PeriodAggregation {
		s += "|periodAggregation"
	}
	if m.SubExpression != "" {
		s += "|subExpression:" + m.SubExpression
	}
	return s
}

// DataItem is the resolved identity of a DataItem node.
type DataItem struct {
	Type      DataItemType
	UID0      ID
	UID1      []ID
	UID2      []ID
	Modifiers QueryModifiers
}

// String renders the item canonically, including explicit modifiers but not
// the implicit ones.
func (d DataItem) String() string {
	if d.Type == ItemDataElement && d.UID0.Kind == IDProgramStage && len(d.UID1) == 0 {
		return "PS_EVENTDATE:" + d.UID0.Value + d.Modifiers.String()
	}
	var sb strings.Builder
	sb.WriteString(d.Type.Sigil())
	sb.WriteByte('{')
	sb.WriteString(d.UID0.String())
	for _, group := range [][]ID{d.UID1, d.UID2} {
		if len(group) == 0 {
			continue
		}
		sb.WriteByte('.')
		for i, id := range group {
			if i > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(id.String())
		}
	}
	sb.WriteByte('}')
	sb.WriteString(d.Modifiers.String())
	return sb.String()
}

// Key identifies the item for value lookup, including implicit modifiers.
func (d DataItem) Key() string {
	return d.String() + d.Modifiers.keySuffix()
}

// IDs returns every ID of the item in order.
func (d DataItem) IDs() []ID {
	ids := make([]ID, 0, 1+len(d.UID1)+len(d.UID2))
	ids = append(ids, d.UID0)
	ids = append(ids, d.UID1...)
	return append(ids, d.UID2...)
}

// Equal reports whether both items denote the same lookup.
func (d DataItem) Equal(o DataItem) bool {
	return d.Key() == o.Key()
}

// VariableKind distinguishes program-rule variables from program variables.
type VariableKind uint8

// Variable kinds.
const (
	VarProgramRule VariableKind = iota
	VarProgram
)

func (k VariableKind) String() string {
	if k == VarProgram {
		return "PROGRAM_VARIABLE"
	}
	return "PROGRAM_RULE_VARIABLE"
}

// Variable is the resolved identity of a Variable node.
type Variable struct {
	Kind      VariableKind
	Name      string
	Modifiers QueryModifiers
}

func (v Variable) String() string {
	if v.Kind == VarProgram {
		return "V{" + v.Name + "}" + v.Modifiers.String()
	}
	return "#{" + v.Name + "}" + v.Modifiers.String()
}

// Key identifies the variable for value lookup, including implicit modifiers.
func (v Variable) Key() string {
	return v.String() + v.Modifiers.keySuffix()
}

// DataItemValues holds the caller-supplied values of data items, keyed by
// DataItem.Key. A value is a scalar or, for period-aggregated items, a slice.
type DataItemValues map[string]interface{}

// Put stores the value of item.
func (v DataItemValues) Put(item DataItem, value interface{}) {
	v[item.Key()] = value
}

// Get returns the value of item. When no value was stored for the exact key,
// the key without implicit modifiers is tried.
func (v DataItemValues) Get(item DataItem) (interface{}, bool) {
	if val, ok := v[item.Key()]; ok {
		return val, true
	}
	val, ok := v[item.String()]
	return val, ok
}
