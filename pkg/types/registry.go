package types

import "sort"

// Function is one entry of the function registry.
type Function struct {
	Name      string
	Params    []Param
	Returns   ValueType
	Modes     Mode
	Aggregate bool
}

// IsSubExpression reports whether the function tags its data items with
// their rendered sub-expression.
func (f *Function) IsSubExpression() bool { return f.Name == "subExpression" }

// ModifierKind identifies a query modifier.
type ModifierKind uint8

// Modifier kinds.
const (
	ModAggregationType ModifierKind = iota
	ModMaxDate
	ModMinDate
	ModPeriodAggregation
	ModPeriodOffset
	ModStageOffset
	ModYearToDate
	ModSubExpression
)

// Modifier is one entry of the modifier registry. Implicit modifiers have no
// source syntax and are only injected by the parser.
type Modifier struct {
	Kind     ModifierKind
	Name     string
	Params   []Param
	Modes    Mode
	Implicit bool
}

// NamedValue is the name of a bracketed named value such as [days].
type NamedValue string

// ProgramVariable is one V{name} variable.
type ProgramVariable struct {
	Name string
	Type ValueType
}

func fn(name, sig string, modes Mode, names ...string) *Function {
	s := MustParseSignature(sig)
	for i, n := range names {
		s.Params[i].Name = n
	}
	return &Function{Name: name, Params: s.Params, Returns: s.Returns, Modes: modes}
}

func aggregate(name, sig string, names ...string) *Function {
	f := fn(name, sig, modesAggregate, names...)
	f.Aggregate = true
	return f
}

// functionTable is the ordered function registry. The aggregate functions
// form one contiguous block.
var functionTable = []*Function{
	fn("firstNonNull", "<a+:a>", modesAggregate|ModeProgramIndicator),
	fn("greatest", "<n+:n>", modesAggregate|ModeProgramIndicator),
	fn("if", "<baa:a>", modesAggregate|ModeProgramIndicator, "condition", "true value", "false value"),
	fn("isNotNull", "<x:b>", modesAggregate|ModeProgramIndicator),
	fn("isNull", "<x:b>", modesAggregate|ModeProgramIndicator),
	fn("least", "<n+:n>", modesAggregate|ModeProgramIndicator),
	fn("log", "<nn?:n>", modesAggregate|ModeProgramIndicator, "number", "base"),
	fn("log10", "<n:n>", modesAggregate|ModeProgramIndicator),
	fn("removeZeros", "<n:n>", modesAggregate|ModeProgramIndicator),
	fn("contains", "<ss+:b>", modesAggregate|ModeProgramIndicator, "text", "part"),
	fn("containsItems", "<ss+:b>", modesAggregate|ModeProgramIndicator, "text", "item"),
	fn("subExpression", "<x:x>", ModeValidationRule|ModeIndicator),
	fn("orgUnit.ancestor", "<u+:b>", modesPredictor|ModeIndicator),
	fn("orgUnit.dataSet", "<u+:b>", modesPredictor|ModeIndicator),
	fn("orgUnit.group", "<u+:b>", modesPredictor|ModeIndicator),
	fn("orgUnit.program", "<u+:b>", modesPredictor|ModeIndicator),

	aggregate("avg", "<n:n>"),
	aggregate("count", "<x:n>"),
	aggregate("max", "<n:n>"),
	aggregate("median", "<n:n>"),
	aggregate("min", "<n:n>"),
	aggregate("percentileCont", "<nn:n>", "fraction", "number"),
	aggregate("stddev", "<n:n>"),
	aggregate("stddevPop", "<n:n>"),
	aggregate("stddevSamp", "<n:n>"),
	aggregate("sum", "<n:n>"),
	aggregate("variance", "<n:n>"),

	fn("d2:addDays", "<dn:d>", modesProgram, "date", "days"),
	fn("d2:ceil", "<n:n>", modesProgram),
	fn("d2:concatenate", "<x*:s>", modesProgram),
	fn("d2:condition", "<sxx:x>", ModeProgramIndicator, "condition", "true value", "false value"),
	fn("d2:count", "<v:n>", modesProgram),
	fn("d2:countIfCondition", "<vs:n>", modesProgram, "variable", "condition"),
	fn("d2:countIfValue", "<vx:n>", modesProgram, "variable", "value"),
	fn("d2:countIfZeroPos", "<v:n>", modesProgram),
	fn("d2:daysBetween", "<dd:n>", modesProgram, "start date", "end date"),
	fn("d2:extractDataMatrixValue", "<ss:s>", modesRuleEngine, "key", "value"),
	fn("d2:floor", "<n:n>", modesProgram),
	fn("d2:hasUserRole", "<s:b>", modesRuleEngine, "role"),
	fn("d2:hasValue", "<v:b>", modesProgram),
	fn("d2:inOrgUnitGroup", "<s:b>", modesRuleEngine, "group"),
	fn("d2:lastEventDate", "<v:d>", modesRuleEngine),
	fn("d2:left", "<sn:s>", modesProgram, "text", "length"),
	fn("d2:length", "<s:n>", modesProgram),
	fn("d2:maxValue", "<v:n>", modesProgram),
	fn("d2:minValue", "<v:n>", modesProgram),
	fn("d2:minutesBetween", "<dd:n>", modesProgram, "start date", "end date"),
	fn("d2:modulus", "<nn:n>", modesProgram, "dividend", "divisor"),
	fn("d2:monthsBetween", "<dd:n>", modesProgram, "start date", "end date"),
	fn("d2:oizp", "<n:n>", modesProgram),
	fn("d2:relationshipCount", "<u?:n>", ModeProgramIndicator, "relationship type"),
	fn("d2:right", "<sn:s>", modesProgram, "text", "length"),
	fn("d2:round", "<nn?:n>", modesProgram, "number", "decimals"),
	fn("d2:split", "<ssn:s>", modesProgram, "text", "delimiter", "index"),
	fn("d2:substring", "<snn:s>", modesProgram, "text", "start", "end"),
	fn("d2:validatePattern", "<ss:b>", modesProgram, "text", "pattern"),
	fn("d2:weeksBetween", "<dd:n>", modesProgram, "start date", "end date"),
	fn("d2:yearsBetween", "<dd:n>", modesProgram, "start date", "end date"),
	fn("d2:zing", "<n:n>", modesProgram),
	fn("d2:zpvc", "<n+:n>", modesProgram),
	fn("d2:zScoreHFA", "<nns:n>", modesProgram, "age", "height", "gender"),
	fn("d2:zScoreWFA", "<nns:n>", modesProgram, "age", "weight", "gender"),
	fn("d2:zScoreWFH", "<nns:n>", modesProgram, "height", "weight", "gender"),
}

var functionIndex = func() map[string]*Function {
	idx := make(map[string]*Function, len(functionTable))
	first, last := -1, -1
	for i, f := range functionTable {
		idx[f.Name] = f
		if f.Aggregate {
			if first < 0 {
				first = i
			}
			if last >= 0 && last != i-1 {
				panic("aggregate functions must be contiguous in the registry")
			}
			last = i
		}
	}
	return idx
}()

// Functions returns the full function registry in declaration order.
func Functions() []*Function { return functionTable }

// LookupFunction finds a function by name, including the "d2:" or "orgUnit."
// prefix, that is usable in mode.
func LookupFunction(name string, mode Mode) (*Function, bool) {
	f, ok := functionIndex[name]
	if !ok || !f.Modes.Accepts(mode) {
		return nil, false
	}
	return f, true
}

// FunctionNames returns the sorted names of the functions usable in mode.
func FunctionNames(mode Mode) []string {
	var names []string
	for _, f := range functionTable {
		if f.Modes.Accepts(mode) {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

func mod(kind ModifierKind, name, sig string, modes Mode) *Modifier {
	s := MustParseSignature(sig)
	return &Modifier{Kind: kind, Name: name, Params: s.Params, Modes: modes}
}

var modifierTable = func() []*Modifier {
	aggType := mod(ModAggregationType, "aggregationType", "<e>", modesAggregate)
	aggType.Params[0].Name = "aggregation type"
	aggType.Params[0].Options = AggregationTypes()
	aggType.Params[0].OptionLabel = "aggregation type"
	return []*Modifier{
		aggType,
		mod(ModMaxDate, "maxDate", "<t>", modesAggregate),
		mod(ModMinDate, "minDate", "<t>", modesAggregate),
		{Kind: ModPeriodAggregation, Name: "periodAggregation", Implicit: true},
		mod(ModPeriodOffset, "periodOffset", "<i>", modesAggregate),
		mod(ModStageOffset, "stageOffset", "<i>", modesAggregate|ModeProgramIndicator),
		mod(ModYearToDate, "yearToDate", "<>", modesAggregate),
		{Kind: ModSubExpression, Name: "subExpression", Params: []Param{{Name: "text", Type: ValueString}}, Implicit: true},
	}
}()

// Modifiers returns the modifier registry indexed by ModifierKind.
func Modifiers() []*Modifier { return modifierTable }

// ModifierOf returns the registry entry of kind.
func ModifierOf(kind ModifierKind) *Modifier { return modifierTable[kind] }

// LookupModifier finds an explicit modifier by name that is usable in mode.
func LookupModifier(name string, mode Mode) (*Modifier, bool) {
	for _, m := range modifierTable {
		if m.Name == name && !m.Implicit && m.Modes.Accepts(mode) {
			return m, true
		}
	}
	return nil, false
}

// ModifierNames returns the sorted names of the explicit modifiers usable in mode.
func ModifierNames(mode Mode) []string {
	var names []string
	for _, m := range modifierTable {
		if !m.Implicit && m.Modes.Accepts(mode) {
			names = append(names, m.Name)
		}
	}
	sort.Strings(names)
	return names
}

// NamedValueDays is the number of days in the evaluated period.
const NamedValueDays NamedValue = "days"

var namedValues = map[NamedValue]Mode{
	NamedValueDays: modesAggregate,
}

// LookupNamedValue reports whether [name] is usable in mode.
func LookupNamedValue(name string, mode Mode) (NamedValue, bool) {
	m, ok := namedValues[NamedValue(name)]
	if !ok || !m.Accepts(mode) {
		return "", false
	}
	return NamedValue(name), true
}

// NamedValueNames returns the sorted names of the named values usable in mode.
func NamedValueNames(mode Mode) []string {
	var names []string
	for n, m := range namedValues {
		if m.Accepts(mode) {
			names = append(names, string(n))
		}
	}
	sort.Strings(names)
	return names
}

var programVariables = []ProgramVariable{
	{"analytics_period_end", ValueDate},
	{"analytics_period_start", ValueDate},
	{"completed_date", ValueDate},
	{"creation_date", ValueDate},
	{"current_date", ValueDate},
	{"due_date", ValueDate},
	{"enrollment_count", ValueNumber},
	{"enrollment_date", ValueDate},
	{"enrollment_id", ValueString},
	{"enrollment_status", ValueString},
	{"environment", ValueString},
	{"event_count", ValueNumber},
	{"event_date", ValueDate},
	{"event_id", ValueString},
	{"event_status", ValueString},
	{"incident_date", ValueDate},
	{"org_unit", ValueString},
	{"org_unit_count", ValueNumber},
	{"orgunit_code", ValueString},
	{"program_name", ValueString},
	{"program_stage_id", ValueString},
	{"program_stage_name", ValueString},
	{"scheduled_date", ValueDate},
	{"sync_date", ValueDate},
	{"tei_count", ValueNumber},
	{"value_count", ValueNumber},
	{"zero_pos_value_count", ValueNumber},
}

// ProgramVariables returns the V{name} variables, sorted by name.
func ProgramVariables() []ProgramVariable { return programVariables }

// LookupProgramVariable finds a V{name} variable.
func LookupProgramVariable(name string) (ProgramVariable, bool) {
	i := sort.Search(len(programVariables), func(i int) bool { return programVariables[i].Name >= name })
	if i < len(programVariables) && programVariables[i].Name == name {
		return programVariables[i], true
	}
	return ProgramVariable{}, false
}

// ProgramVariableNames returns the sorted V{name} variable names.
func ProgramVariableNames() []string {
	names := make([]string, len(programVariables))
	for i, v := range programVariables {
		names[i] = v.Name
	}
	return names
}
