// Package parser implements the expression parser.
//
// Parsing runs in stages:
//   - Scanner: character cursor with whitespace/comment capture
//   - Grammar: composable fragments generated from the registry
//   - Tree builder: explicit stack of open nodes stamped with positions
//   - Transforms: operator-precedence grouping, then modifier propagation
//   - Whitespace redistribution and identity resolution
//
// # Example
//
//	expr, err := parser.Parse("#{FTRrcoaog83.qk6n4eMAdtK} + 2", types.ModeValidationRule)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	items := expr.DataItems()
package parser

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

// DefaultMaxDepth is the default limit on expression nesting.
const DefaultMaxDepth = 256

// CompileOption configures parsing.
type CompileOption func(*CompileOptions)

// CompileOptions holds parser configuration.
type CompileOptions struct {
	// Annotate captures whitespace and comments for lossless rendering.
	Annotate bool
	// MaxDepth limits nesting of parentheses, arguments and prefix operators.
	MaxDepth int
	// Logger receives debug records. Defaults to slog.Default().
	Logger *slog.Logger
}

// WithAnnotate enables whitespace-preserving mode.
func WithAnnotate(enable bool) CompileOption {
	return func(opts *CompileOptions) {
		opts.Annotate = enable
	}
}

// WithMaxDepth sets the maximum nesting depth.
func WithMaxDepth(depth int) CompileOption {
	return func(opts *CompileOptions) {
		opts.MaxDepth = depth
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CompileOption {
	return func(opts *CompileOptions) {
		opts.Logger = logger
	}
}

// Parse parses text in the grammar subset selected by mode.
//
// Parsing stops at the first syntax error, which is returned as a
// *types.ParseError.
func Parse(text string, mode types.Mode, opts ...CompileOption) (*types.Expression, error) {
	options := CompileOptions{MaxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if bits.OnesCount16(uint16(mode)) != 1 {
		return nil, fmt.Errorf("parse requires exactly one mode, got %s", mode)
	}

	p := newParser(text, mode, options)
	wrapper, err := p.parse()
	if err != nil {
		return nil, err
	}

	group(wrapper)
	p.propagate(wrapper)
	if options.Annotate {
		redistribute(wrapper, p.s.Tokens())
	}

	root := wrapper
	if len(wrapper.Children) == 1 {
		root = wrapper.Children[0]
	}
	items, vars := resolve(wrapper, mode)

	options.Logger.Debug("parsed expression",
		"mode", mode.String(),
		"nodes", p.arena.Len(),
		"tokens", len(p.s.Tokens()),
		"items", len(items),
		"variables", len(vars))

	return types.NewExpression(types.ExpressionConfig{
		Root:      root,
		Wrapper:   wrapper,
		Source:    text,
		Mode:      mode,
		Annotated: options.Annotate,
		Nodes:     p.arena.Len(),
		Items:     items,
		Variables: vars,
	}), nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string, mode types.Mode, opts ...CompileOption) *types.Expression {
	expr, err := Parse(text, mode, opts...)
	if err != nil {
		panic(err)
	}
	return expr
}

// parser is the state of one parse: scanner, node stack and grammar.
type parser struct {
	s        *Scanner
	arena    *types.NodeArena
	stack    []*types.Node
	g        *grammar
	mode     types.Mode
	depth    int
	maxDepth int
	mark     *types.Position
}

func newParser(text string, mode types.Mode, options CompileOptions) *parser {
	return &parser{
		s:        NewScanner(text, options.Annotate),
		arena:    types.NewNodeArena(),
		g:        grammarFor(mode),
		mode:     mode,
		maxDepth: options.MaxDepth,
	}
}

// parse builds the raw tree under a synthetic root.
func (p *parser) parse() (*types.Node, error) {
	wrapper := p.arena.Alloc(types.NodePar, "")
	wrapper.Implicit = true
	p.stack = []*types.Node{wrapper}

	if err := p.g.expr.Parse(p); err != nil {
		return nil, err
	}
	if err := p.s.SkipWS(); err != nil {
		return nil, err
	}
	if !p.s.AtEOF() {
		return nil, p.s.Unexpected()
	}
	wrapper.End = p.s.Finish()
	return wrapper, nil
}

// begin opens a node at the current position.
func (p *parser) begin(kind types.NodeType, raw string, value interface{}) *types.Node {
	return p.beginAt(p.s.Begin(), kind, raw, value)
}

// beginAt opens a node that started at mark, appending it to the stack top.
func (p *parser) beginAt(mark types.Position, kind types.NodeType, raw string, value interface{}) *types.Node {
	n := p.arena.Alloc(kind, raw)
	n.Value = value
	n.Start = mark
	top := p.stack[len(p.stack)-1]
	top.Children = append(top.Children, n)
	p.stack = append(p.stack, n)
	return n
}

// end closes the innermost open node.
func (p *parser) end() *types.Node {
	n := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	n.End = p.s.End()
	return n
}

// leaf adds a childless node that started at mark and ends here.
func (p *parser) leaf(mark types.Position, kind types.NodeType, raw string, value interface{}) *types.Node {
	p.beginAt(mark, kind, raw, value)
	return p.end()
}

// setMark records the start of a name consumed before its fragment runs.
func (p *parser) setMark(mark types.Position) {
	p.mark = &mark
}

func (p *parser) takeMark() types.Position {
	if p.mark == nil {
		return p.s.Begin()
	}
	m := *p.mark
	p.mark = nil
	return m
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > p.maxDepth {
		pos := p.s.Pos()
		return p.s.ErrorAt(pos, pos+1, "Expression nesting exceeds maximum depth of %d", p.maxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}
