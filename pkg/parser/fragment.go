package parser

import (
	"fmt"
	"strings"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

// Fragment is one composable building block of the grammar. Fragments never
// backtrack: a fragment either consumes its input or fails.
type Fragment interface {
	Name() string
	Parse(p *parser) error
}

type terminal struct {
	name  string
	parse func(p *parser) error
}

func (t *terminal) Name() string          { return t.name }
func (t *terminal) Parse(p *parser) error { return t.parse(p) }

// newTerminal wraps a parse function as a Fragment.
func newTerminal(name string, parse func(p *parser) error) Fragment {
	return &terminal{name: name, parse: parse}
}

// wrapped decorates a fragment with a name or an arity flag.
type wrapped struct {
	Fragment
	name     string
	optional bool
	variadic bool
}

func (w *wrapped) Name() string {
	if w.name != "" {
		return w.name
	}
	return w.Fragment.Name()
}

func flagsOf(f Fragment) (optional, variadic bool) {
	for {
		w, ok := f.(*wrapped)
		if !ok {
			return optional, variadic
		}
		optional = optional || w.optional
		variadic = variadic || w.variadic
		f = w.Fragment
	}
}

// maybe makes f optional. It is only legal at the tail of an argument list
// because optionality is decided by peeking the list terminator.
func maybe(f Fragment) Fragment { return &wrapped{Fragment: f, optional: true} }

// plus repeats f one or more times.
func plus(f Fragment) Fragment { return &wrapped{Fragment: f, variadic: true} }

// star repeats f zero or more times.
func star(f Fragment) Fragment { return &wrapped{Fragment: f, optional: true, variadic: true} }

// named gives f the name it is listed under in errors and lookups.
func named(name string, f Fragment) Fragment { return &wrapped{Fragment: f, name: name} }

// quoted parses f into a node of kind, optionally surrounded by matching
// single or double quotes. The quote character becomes the node's Raw text.
func quoted(kind types.NodeType, value interface{}, f Fragment) Fragment {
	return newTerminal(f.Name(), func(p *parser) error {
		quote := ""
		if r := p.s.Peek(); r == '\'' || r == '"' {
			quote = string(r)
		}
		p.begin(kind, quote, value)
		if quote != "" {
			p.s.Next()
		}
		p.begin(types.NodeArgument, "", nil)
		if err := f.Parse(p); err != nil {
			return err
		}
		p.end()
		if quote != "" {
			if err := p.s.ExpectLiteral(quote); err != nil {
				return err
			}
		}
		p.end()
		return nil
	})
}

// block is the generic builder behind every function, modifier, data item and
// variable form: name open arg (sep arg)* close.
type block struct {
	kind  types.NodeType
	name  string
	value interface{}
	open  rune
	sep   rune
	close rune
	args  []Fragment
}

func newBlock(kind types.NodeType, name string, value interface{}, open, sep, close rune, args ...Fragment) Fragment {
	seenOptional := false
	for i, a := range args {
		optional, variadic := flagsOf(a)
		if seenOptional && !optional {
			panic(fmt.Sprintf("%s: required argument %q after an optional one", name, a.Name()))
		}
		if variadic && i != len(args)-1 {
			panic(fmt.Sprintf("%s: repeated argument %q must be last", name, a.Name()))
		}
		seenOptional = seenOptional || optional
	}
	return &block{kind: kind, name: name, value: value, open: open, sep: sep, close: close, args: args}
}

func (b *block) Name() string { return b.name }

// Parse expects the block name to be consumed already; p.mark holds its start.
func (b *block) Parse(p *parser) error {
	p.beginAt(p.takeMark(), b.kind, b.name, b.value)
	if err := p.s.SkipWS(); err != nil {
		return err
	}
	if err := p.s.Expect(b.open); err != nil {
		return err
	}
	for i := 0; ; i++ {
		if err := p.s.SkipWS(); err != nil {
			return err
		}
		if i == 0 && p.s.Peek() == b.close {
			if err := b.checkComplete(p, 0); err != nil {
				return err
			}
			p.s.Next()
			break
		}
		frag, ok := b.argAt(i)
		if !ok {
			return p.s.expected(string(b.close))
		}
		p.begin(types.NodeArgument, "", nil)
		if err := frag.Parse(p); err != nil {
			return err
		}
		p.end()
		if err := p.s.SkipWS(); err != nil {
			return err
		}
		if p.s.Peek() == b.close {
			if err := b.checkComplete(p, i+1); err != nil {
				return err
			}
			p.s.Next()
			break
		}
		if b.sep == 0 {
			return p.s.expected(string(b.close))
		}
		if _, more := b.argAt(i + 1); !more {
			return p.s.expected(string(b.close))
		}
		if err := p.s.Expect(b.sep); err != nil {
			return err
		}
	}
	p.end()
	return nil
}

func (b *block) argAt(i int) (Fragment, bool) {
	if len(b.args) == 0 {
		return nil, false
	}
	if i < len(b.args) {
		return b.args[i], true
	}
	last := b.args[len(b.args)-1]
	if _, variadic := flagsOf(last); variadic {
		return last, true
	}
	return nil, false
}

// checkComplete fails when a required argument from index from onwards is
// missing.
func (b *block) checkComplete(p *parser, from int) error {
	var missing []string
	for i := from; i < len(b.args); i++ {
		if optional, _ := flagsOf(b.args[i]); !optional {
			missing = append(missing, b.args[i].Name())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return p.s.ErrorAt(p.s.Pos(), p.s.Pos()+1, "expected more arguments: %s", strings.Join(missing, ", "))
}
