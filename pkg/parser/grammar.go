package parser

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

// grammar holds the fragments of one mode, generated from the registry.
type grammar struct {
	mode      types.Mode
	expr      Fragment
	symbols   map[string]Fragment // functions and constants
	items     map[string]Fragment // data item and variable forms by sigil
	modifiers map[string]Fragment
	variable  Fragment // rule variable reference slot
}

var (
	grammarsMu sync.Mutex
	grammars   = map[types.Mode]*grammar{}
)

// grammarFor returns the grammar of mode, building it on first use.
func grammarFor(mode types.Mode) *grammar {
	grammarsMu.Lock()
	defer grammarsMu.Unlock()
	if g, ok := grammars[mode]; ok {
		return g
	}
	g := buildGrammar(mode)
	grammars[mode] = g
	return g
}

func buildGrammar(mode types.Mode) *grammar {
	g := &grammar{
		mode:      mode,
		symbols:   make(map[string]Fragment),
		items:     make(map[string]Fragment),
		modifiers: make(map[string]Fragment),
	}
	g.expr = newTerminal("expression", g.parseExpr)

	ruleEngine := mode.IsRuleEngine()
	if ruleEngine {
		for _, sigil := range []string{"#", "A"} {
			g.items[sigil] = newBlock(types.NodeVariable, sigil, types.VarProgramRule, '{', 0, '}',
				named("variable", ruleVariableName(is('}'))))
		}
	}
	if mode&(types.ModeProgramIndicator|types.ModeRuleEngineCondition|types.ModeRuleEngineAction) != 0 {
		g.items["V"] = newBlock(types.NodeVariable, "V", types.VarProgram, '{', 0, '}',
			named("program variable", option("program variable", types.ProgramVariableNames())))
	}
	for _, t := range types.DataItemTypes() {
		if t.Modes().Accepts(mode) {
			g.items[t.Sigil()] = newBlock(types.NodeDataItem, t.Sigil(), t, '{', '.', '}', g.itemArgs(t)...)
		}
	}
	g.variable = g.expr
	if ruleEngine {
		g.variable = g.ruleVariableRef()
	}

	for _, f := range types.Functions() {
		if f.Modes.Accepts(mode) {
			g.symbols[f.Name] = named(f.Name, newBlock(types.NodeFunction, f.Name, f, '(', ',', ')', g.params(f.Name, f.Params)...))
		}
	}
	for _, name := range []string{"true", "false"} {
		name := name
		g.symbols[name] = newTerminal(name, func(p *parser) error {
			p.leaf(p.takeMark(), types.NodeBoolean, name, name == "true")
			return nil
		})
	}
	g.symbols["null"] = newTerminal("null", func(p *parser) error {
		p.leaf(p.takeMark(), types.NodeNull, "null", nil)
		return nil
	})

	for _, m := range types.Modifiers() {
		if !m.Implicit && m.Modes.Accepts(mode) {
			g.modifiers[m.Name] = newBlock(types.NodeModifier, m.Name, m, '(', ',', ')', g.params(m.Name, m.Params)...)
		}
	}
	return g
}

// itemArgs builds the UID-group slots of a data item type.
func (g *grammar) itemArgs(t types.DataItemType) []Fragment {
	shapes := t.Shapes(g.mode)
	minLen := len(shapes[0])
	longest := shapes[len(shapes)-1]
	args := make([]Fragment, len(longest))
	for i, kind := range longest {
		var f Fragment
		switch {
		case kind == types.IDReportingRateMetric:
			f = option("reporting rate metric", types.ReportingRateMetrics())
		case i == 0:
			// the leading id names a single element or group
			f = uidLeaf(kind)
		default:
			f = uidGroup(kind)
		}
		f = named(kind.String(), f)
		if i >= minLen {
			f = maybe(f)
		}
		args[i] = f
	}
	return args
}

// params builds the argument slots of a function or modifier.
func (g *grammar) params(name string, params []types.Param) []Fragment {
	args := make([]Fragment, len(params))
	for i, prm := range params {
		var f Fragment
		switch prm.Form {
		case types.FormExpr:
			f = g.expr
		case types.FormUID:
			f = uidLeaf(uidKindOf(name))
		case types.FormInteger:
			f = integerLiteral
		case types.FormDate:
			f = dateLiteral
		case types.FormName:
			f = option(prm.OptionLabel, prm.Options)
		case types.FormRuleVariable:
			f = g.variable
		default:
			panic("unhandled parameter form")
		}
		f = named(prm.Name, f)
		switch {
		case prm.Variadic && prm.Optional:
			f = star(f)
		case prm.Variadic:
			f = plus(f)
		case prm.Optional:
			f = maybe(f)
		}
		args[i] = f
	}
	return args
}

// uidKindOf is the kind of the UID arguments of a function.
func uidKindOf(function string) types.IDKind {
	switch function {
	case "orgUnit.dataSet":
		return types.IDDataSet
	case "orgUnit.group":
		return types.IDOrgUnitGroup
	case "orgUnit.program":
		return types.IDProgram
	default:
		return types.IDOrgUnit
	}
}

func (g *grammar) symbolNames() []string {
	names := make([]string, 0, len(g.symbols)+len(g.items))
	for n := range g.symbols {
		names = append(names, n)
	}
	for n := range g.items {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// parseExpr parses operand (binary-operator operand)* as flat siblings of the
// current node. Precedence is applied later by the grouping transform.
func (g *grammar) parseExpr(p *parser) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	if err := g.parseOperand(p); err != nil {
		return err
	}
	for {
		if err := p.s.SkipWS(); err != nil {
			return err
		}
		op, width, ok := peekBinary(p.s)
		if !ok {
			return nil
		}
		mark := p.s.Begin()
		raw := p.s.TakeN(width)
		p.leaf(mark, types.NodeBinaryOperator, raw, op)
		if err := g.parseOperand(p); err != nil {
			return err
		}
	}
}

var binarySymbols2 = []string{"<=", ">=", "==", "!=", "&&", "||"}

func peekBinary(s *Scanner) (types.BinaryOperator, int, bool) {
	for _, sym := range binarySymbols2 {
		if s.PeekLiteral(sym) {
			op, _ := types.LookupBinary(sym)
			return op, 2, true
		}
	}
	switch r := s.Peek(); r {
	case '^', '*', '/', '%', '+', '-', '<', '>':
		op, _ := types.LookupBinary(string(r))
		return op, 1, true
	}
	for _, kw := range []string{"and", "or"} {
		if s.PeekKeyword(kw) {
			op, _ := types.LookupBinary(kw)
			return op, len(kw), true
		}
	}
	return 0, 0, false
}

// parseOperand parses one operand followed by its dot-modifiers.
func (g *grammar) parseOperand(p *parser) error {
	if err := g.parseExpr1(p); err != nil {
		return err
	}
	for {
		if err := p.s.SkipWS(); err != nil {
			return err
		}
		if p.s.Peek() != '.' || !p.s.PeekAt(1, isIdentStart) {
			return nil
		}
		mark := p.s.Begin()
		p.s.Next()
		start := p.s.Pos()
		name := p.s.Take(isIdentChar)
		frag, ok := g.modifiers[name]
		if !ok {
			return unknownName(p, start, "Unknown modifier", name, types.ModifierNames(g.mode))
		}
		p.setMark(mark)
		if err := frag.Parse(p); err != nil {
			return err
		}
	}
}

// parseExpr1 parses a single operand: a prefix operator, a parenthesised
// expression, a literal or a name.
func (g *grammar) parseExpr1(p *parser) error {
	if err := p.s.SkipWS(); err != nil {
		return err
	}
	s := p.s
	r := s.Peek()
	switch {
	case r == '!' || r == '+' || r == '-':
		return g.parseUnary(p, 1)
	case s.PeekKeyword("not"):
		return g.parseUnary(p, len("not"))
	case s.PeekKeyword("distinct"):
		return g.parseUnary(p, len("distinct"))
	case r == '(':
		return g.parseGroup(p)
	case r == '[':
		return g.parseNamedValue(p)
	case r == '\'' || r == '"':
		return parseString(p)
	case isDigit(r) || (r == '.' && s.PeekAt(1, isDigit)):
		return parseNumber(p)
	case r == '#':
		mark := s.Begin()
		start := s.Pos()
		s.Next()
		frag, ok := g.items["#"]
		if !ok {
			return unknownName(p, start, "Unknown function or constant", "#", g.symbolNames())
		}
		p.setMark(mark)
		return frag.Parse(p)
	case isIdentStart(r):
		return g.parseName(p)
	default:
		return s.Unexpected()
	}
}

// parseUnary emits a childless prefix operator followed by its operand.
func (g *grammar) parseUnary(p *parser, width int) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	mark := p.s.Begin()
	raw := p.s.TakeN(width)
	op, _ := types.LookupUnary(raw)
	p.leaf(mark, types.NodeUnaryOperator, raw, op)
	return g.parseExpr1(p)
}

func (g *grammar) parseGroup(p *parser) error {
	p.begin(types.NodePar, "(", nil)
	p.s.Next()
	if err := g.expr.Parse(p); err != nil {
		return err
	}
	if err := p.s.SkipWS(); err != nil {
		return err
	}
	if err := p.s.Expect(')'); err != nil {
		return err
	}
	p.end()
	return nil
}

func (g *grammar) parseNamedValue(p *parser) error {
	s := p.s
	mark := s.Begin()
	start := s.Pos()
	s.Next()
	name := s.Take(isIdentChar)
	nv, ok := types.LookupNamedValue(name, g.mode)
	if !ok {
		if name == "" {
			return s.Unexpected()
		}
		return invalidOption(p, start+1, "named value", name, types.NamedValueNames(g.mode))
	}
	if err := s.Expect(']'); err != nil {
		return err
	}
	p.leaf(mark, types.NodeNamedValue, s.Slice(start, s.Pos()), nv)
	return nil
}

// parseName parses a function call, constant, data item or variable that
// starts with an identifier.
func (g *grammar) parseName(p *parser) error {
	s := p.s
	mark := s.Begin()
	start := s.Pos()
	name := s.Take(isIdentChar)
	switch {
	case name == "d2" && s.Peek() == ':' && s.PeekAt(1, isIdentStart):
		s.Next()
		name += ":" + s.Take(isIdentChar)
	case name == "orgUnit" && s.Peek() == '.' && s.PeekAt(1, isIdentStart):
		s.Next()
		name += "." + s.Take(isIdentChar)
	case name == "PS_EVENTDATE" && s.Peek() == ':' && g.mode == types.ModeProgramIndicator:
		return g.parseEventDate(p, mark)
	}

	if s.Peek() == '{' {
		if frag, ok := g.items[name]; ok {
			p.setMark(mark)
			return frag.Parse(p)
		}
	}
	if frag, ok := g.symbols[name]; ok {
		p.setMark(mark)
		return frag.Parse(p)
	}
	return unknownName(p, start, "Unknown function or constant", name, g.symbolNames())
}

// parseEventDate parses the PS_EVENTDATE:uid shorthand for the event date of
// a program stage.
func (g *grammar) parseEventDate(p *parser, mark types.Position) error {
	p.beginAt(mark, types.NodeDataItem, "PS_EVENTDATE", types.ItemDataElement)
	p.s.Next()
	p.begin(types.NodeArgument, "", nil)
	if err := uidLeaf(types.IDProgramStage).Parse(p); err != nil {
		return err
	}
	p.end()
	p.end()
	return nil
}

// ruleVariableRef accepts #{name}, A{name}, V{name} or a quoted name.
func (g *grammar) ruleVariableRef() Fragment {
	quotedName := quoted(types.NodeVariable, types.VarProgramRule, ruleVariableName(func(r rune) bool {
		return r == '\'' || r == '"'
	}))
	bareName := quoted(types.NodeVariable, types.VarProgramRule, ruleVariableName(func(r rune) bool {
		return !isIdentChar(r) && r != '.' && r != '-'
	}))
	return newTerminal("variable", func(p *parser) error {
		s := p.s
		switch {
		case s.Peek() == '#' || s.PeekLiteral("A{") || s.PeekLiteral("V{"):
			mark := s.Begin()
			sigil := string(s.Next())
			p.setMark(mark)
			return g.items[sigil].Parse(p)
		case s.Peek() == '\'' || s.Peek() == '"':
			return quotedName.Parse(p)
		default:
			return bareName.Parse(p)
		}
	})
}

// ruleVariableName reads a rule variable name up to a stop character.
func ruleVariableName(stop func(rune) bool) Fragment {
	return newTerminal("name", func(p *parser) error {
		mark := p.s.Begin()
		name := p.s.Take(func(r rune) bool { return !stop(r) && r != '\n' })
		if name == "" {
			return p.s.Unexpected()
		}
		p.leaf(mark, types.NodeIdentifier, name, name)
		return nil
	})
}

// option reads an identifier that must be one of options.
func option(label string, options []string) Fragment {
	valid := make(map[string]bool, len(options))
	for _, o := range options {
		valid[o] = true
	}
	return newTerminal("name", func(p *parser) error {
		mark := p.s.Begin()
		start := p.s.Pos()
		name := p.s.Take(isIdentChar)
		if name == "" {
			return p.s.Unexpected()
		}
		if !valid[name] {
			return invalidOption(p, start, label, name, options)
		}
		p.leaf(mark, types.NodeIdentifier, name, name)
		return nil
	})
}

// uidLeaf reads an optional tag followed by a UID or the '*' wildcard.
func uidLeaf(kind types.IDKind) Fragment {
	return newTerminal("uid", func(p *parser) error {
		s := p.s
		mark := s.Begin()
		start := s.Pos()
		idKind := kind

		n := 0
		for s.PeekAt(n, isIdentChar) {
			n++
		}
		if n > 0 && s.PeekAt(n, is(':')) {
			tag := s.Slice(start, start+n)
			k, ok := types.LookupIDTag(tag)
			if !ok {
				return invalidOption(p, start, "tag", tag, types.IDTags())
			}
			s.TakeN(n + 1)
			idKind = k
		}

		uidStart := s.Pos()
		switch {
		case s.Peek() == '*':
			s.Next()
		case isLetter(s.Peek()):
			uid := s.Take(isAlnum)
			if len(uid) != 11 {
				return s.ErrorAt(uidStart, s.Pos(), "Invalid UID: '%s'", uid)
			}
		default:
			return s.Unexpected()
		}
		p.leaf(mark, types.NodeUid, s.Slice(start, s.Pos()), types.ID{Kind: idKind, Value: s.Slice(uidStart, s.Pos())})
		return nil
	})
}

// uidGroup reads one or more UIDs joined by '&'.
func uidGroup(kind types.IDKind) Fragment {
	leaf := uidLeaf(kind)
	return newTerminal("uid", func(p *parser) error {
		if err := leaf.Parse(p); err != nil {
			return err
		}
		for p.s.Peek() == '&' {
			p.s.Next()
			if err := leaf.Parse(p); err != nil {
				return err
			}
		}
		return nil
	})
}

var integerLiteral = newTerminal("integer", func(p *parser) error {
	s := p.s
	mark := s.Begin()
	n := 0
	if s.Peek() == '+' || s.Peek() == '-' {
		n++
	}
	digits := 0
	for s.PeekAt(n+digits, isDigit) {
		digits++
	}
	if digits == 0 {
		return s.Unexpected()
	}
	start := s.Pos()
	raw := s.TakeN(n + digits)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return s.ErrorAt(start, s.Pos(), "Integer out of range: '%s'", raw)
	}
	p.leaf(mark, types.NodeInteger, raw, v)
	return nil
})

var dateLiteral = newTerminal("date", func(p *parser) error {
	s := p.s
	mark := s.Begin()
	start := s.Pos()
	n := 0
	for s.PeekAt(n, func(r rune) bool { return isDigit(r) || r == '-' }) {
		n++
	}
	if n == 0 {
		return s.Unexpected()
	}
	raw := s.TakeN(n)
	parts := strings.Split(raw, "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) < 1 || len(parts[1]) > 2 ||
		len(parts[2]) < 1 || len(parts[2]) > 2 {
		return s.ErrorAt(start, s.Pos(), "Invalid date: '%s', expected YYYY-MM-DD", raw)
	}
	t, err := types.ParseDate(raw)
	if err != nil {
		return s.ErrorAt(start, s.Pos(), "Invalid date: '%s'", raw)
	}
	p.leaf(mark, types.NodeDate, raw, t)
	return nil
})

// parseNumber reads digits [. digits] [e [sign] digits]. A '.' followed by a
// letter starts a modifier and is not part of the number.
func parseNumber(p *parser) error {
	s := p.s
	mark := s.Begin()
	start := s.Pos()
	n := 0
	for s.PeekAt(n, isDigit) {
		n++
	}
	if s.PeekAt(n, is('.')) && !s.PeekAt(n+1, isIdentStart) {
		n++
		for s.PeekAt(n, isDigit) {
			n++
		}
	}
	if s.PeekAt(n, func(r rune) bool { return r == 'e' || r == 'E' }) {
		k := n + 1
		if s.PeekAt(k, func(r rune) bool { return r == '+' || r == '-' }) {
			k++
		}
		if s.PeekAt(k, isDigit) {
			n = k
			for s.PeekAt(n, isDigit) {
				n++
			}
		}
	}
	raw := s.TakeN(n)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return s.ErrorAt(start, s.Pos(), "Invalid number: '%s'", raw)
	}
	p.leaf(mark, types.NodeNumber, raw, f)
	return nil
}

// parseString reads a quoted string literal with backslash escapes. A string
// may not span lines.
func parseString(p *parser) error {
	s := p.s
	mark := s.Begin()
	start := s.Pos()
	quote := s.Next()
	var sb strings.Builder
	for {
		r := s.Peek()
		switch {
		case r == eof || r == '\n' || r == '\r':
			return s.ErrorAt(start, s.Pos(), "Unterminated string literal")
		case r == quote:
			s.Next()
			p.leaf(mark, types.NodeString, s.Slice(start, s.Pos()), sb.String())
			return nil
		case r == '\\':
			escStart := s.Pos()
			s.Next()
			if err := unescape(s, escStart, &sb); err != nil {
				return err
			}
		default:
			sb.WriteRune(s.Next())
		}
	}
}

var simpleEscapes = map[rune]rune{
	'b': '\b', 't': '\t', 'n': '\n', 'f': '\f', 'r': '\r',
	'"': '"', '\'': '\'', '\\': '\\', '/': '/',
}

func unescape(s *Scanner, escStart int, sb *strings.Builder) error {
	r := s.Peek()
	if c, ok := simpleEscapes[r]; ok {
		s.Next()
		sb.WriteRune(c)
		return nil
	}
	switch {
	case r == 'u':
		s.Next()
		n := 0
		for n < 4 && s.PeekAt(n, isHex) {
			n++
		}
		if n != 4 {
			return s.ErrorAt(escStart, s.Pos()+n, "Invalid unicode escape: '%s'", s.Slice(escStart, s.Pos()+n))
		}
		v, _ := strconv.ParseUint(s.TakeN(4), 16, 32)
		sb.WriteRune(rune(v))
		return nil
	case r >= '0' && r <= '7':
		limit := 2
		if r <= '3' {
			limit = 3
		}
		n := 0
		for n < limit && s.PeekAt(n, func(c rune) bool { return c >= '0' && c <= '7' }) {
			n++
		}
		v, _ := strconv.ParseUint(s.TakeN(n), 8, 32)
		sb.WriteRune(rune(v))
		return nil
	case r == eof:
		return s.ErrorAt(escStart, s.Pos(), "Unterminated string literal")
	default:
		return s.ErrorAt(escStart, s.Pos()+1, "Invalid escape sequence: '\\%c'", r)
	}
}

func isHex(r rune) bool {
	return isDigit(r) || unicode.Is(unicode.ASCII_Hex_Digit, r)
}
