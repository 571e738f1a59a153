package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandrolain/dhis2expr"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

// TreeNode is the printable form of a syntax tree node.
type TreeNode struct {
	Type     string      `json:"type"`
	Raw      string      `json:"raw,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

func treeOf(n *types.Node) *TreeNode {
	t := &TreeNode{Type: n.Type.String(), Raw: n.Raw}
	for _, c := range n.Children {
		t.Children = append(t.Children, treeOf(c))
	}
	for _, m := range n.Trailing {
		t.Children = append(t.Children, treeOf(m))
	}
	return t
}

func (t *TreeNode) write(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(t.Type)
	if t.Raw != "" {
		fmt.Fprintf(sb, " %q", t.Raw)
	}
	sb.WriteByte('\n')
	for _, c := range t.Children {
		c.write(sb, depth+1)
	}
}

// ParseResult is the output of the parse command.
type ParseResult struct {
	Normalised string    `json:"normalised"`
	Tree       *TreeNode `json:"tree"`
}

func (r *ParseResult) String() string {
	var sb strings.Builder
	sb.WriteString(r.Normalised)
	sb.WriteByte('\n')
	r.Tree.write(&sb, 0)
	return strings.TrimSuffix(sb.String(), "\n")
}

// IssueView is the printable form of a type check finding.
type IssueView struct {
	Severity string `json:"severity"`
	Position string `json:"position"`
	Message  string `json:"message"`
}

// CheckResult is the output of the check command.
type CheckResult struct {
	Valid  bool        `json:"valid"`
	Issues []IssueView `json:"issues,omitempty"`
}

func (r *CheckResult) String() string {
	if len(r.Issues) == 0 {
		return "✓ valid"
	}
	var lines []string
	if r.Valid {
		lines = append(lines, "✓ valid with warnings")
	}
	for _, i := range r.Issues {
		lines = append(lines, fmt.Sprintf("%s at %s: %s", i.Severity, i.Position, i.Message))
	}
	return strings.Join(lines, "\n")
}

// EvalResult is the output of the eval command.
type EvalResult struct {
	Value interface{} `json:"value"`
	Text  string      `json:"text"`
}

func (r *EvalResult) String() string { return r.Text }

// ItemsResult is the output of the items command.
type ItemsResult struct {
	DataItems []string `json:"data_items"`
	Variables []string `json:"variables"`
	UIDs      []string `json:"uids"`
}

func (r *ItemsResult) String() string {
	var sb strings.Builder
	section := func(title string, values []string) {
		fmt.Fprintf(&sb, "%s (%d)\n", title, len(values))
		for _, v := range values {
			sb.WriteString("  " + v + "\n")
		}
	}
	section("Data items", r.DataItems)
	section("Variables", r.Variables)
	section("UIDs", r.UIDs)
	return strings.TrimSuffix(sb.String(), "\n")
}

// LoadResult is the output of the load command.
type LoadResult struct {
	RunID        string `json:"run_id"`
	Values       int    `json:"values"`
	DisplayNames int    `json:"display_names"`
}

func (r *LoadResult) String() string {
	return fmt.Sprintf("✓ loaded %d value(s) and %d display name(s) (run %s)", r.Values, r.DisplayNames, r.RunID)
}

func expressionCommand(use, short string, run func(opts *RootOptions, f *OutputFormatter, cmd *cobra.Command, text string) error, opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           use + " <expression>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err := opts.init(cmd.ErrOrStderr()); err != nil {
				return f.failInit(err)
			}
			opts.logger.Debug("command started", "command", use, "trace_id", f.TraceID)
			return run(opts, f, cmd, args[0])
		},
	}
}

// NewParseCommand creates the parse command.
func NewParseCommand(opts *RootOptions) *cobra.Command {
	return expressionCommand("parse", "Parse an expression and print its syntax tree", runParse, opts)
}

// NewCheckCommand creates the check command.
func NewCheckCommand(opts *RootOptions) *cobra.Command {
	return expressionCommand("check", "Type-check an expression", runCheck, opts)
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(opts *RootOptions) *cobra.Command {
	return expressionCommand("eval", "Evaluate an expression against a context", runEval, opts)
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(opts *RootOptions) *cobra.Command {
	return expressionCommand("describe", "Render an expression with display names", runDescribe, opts)
}

// NewItemsCommand creates the items command.
func NewItemsCommand(opts *RootOptions) *cobra.Command {
	return expressionCommand("items", "List the data items, variables and UIDs of an expression", runItems, opts)
}

// NewLoadCommand creates the load command.
func NewLoadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Import a context file into a store",
		Long: `Import the data values and display names of a context file (--context)
into a SQLite store (--db). Later commands given the same --db read the
values and names an expression references from the store.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err := opts.init(cmd.ErrOrStderr()); err != nil {
				return f.failInit(err)
			}
			res, err := opts.load(cmd.Context())
			if err != nil {
				return f.failInput(err)
			}
			return f.Success(res)
		},
	}
}

func (f *OutputFormatter) failInit(err error) error {
	var ee *ExitError
	if errors.As(err, &ee) {
		return f.Fail(ee.Code, ee.Message, ee.Err, nil)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err, nil)
}

func (f *OutputFormatter) failInput(err error) error {
	var ie *inputError
	if errors.As(err, &ie) {
		return f.Fail(ExitCommandError, ie.code, ie.err, nil)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err, nil)
}

func (f *OutputFormatter) failParse(err error) error {
	var perr *types.ParseError
	if !errors.As(err, &perr) {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err, nil)
	}
	line, col := perr.Line()
	details := map[string]interface{}{"line": line, "column": col}
	if perr.Suggestion != "" {
		details["suggestion"] = perr.Suggestion
	}
	return f.Fail(ExitFailure, ErrCodeParse, err, details)
}

func runParse(opts *RootOptions, f *OutputFormatter, _ *cobra.Command, text string) error {
	expr, err := dhis2expr.Parse(text, opts.mode, opts.facade()...)
	if err != nil {
		return f.failParse(err)
	}
	normalised, err := dhis2expr.Normalise(text, opts.mode, opts.facade()...)
	if err != nil {
		return f.failParse(err)
	}
	return f.Success(&ParseResult{Normalised: normalised, Tree: treeOf(expr.AST())})
}

func runCheck(opts *RootOptions, f *OutputFormatter, cmd *cobra.Command, text string) error {
	in, err := opts.input(cmd.Context(), nil)
	if err != nil {
		return f.failInput(err)
	}
	issues, err := dhis2expr.Check(text, opts.mode,
		append(opts.facade(), dhis2expr.WithVariableTypes(in.VariableTypes))...)
	if err != nil {
		return f.failParse(err)
	}

	res := &CheckResult{Valid: issues.Err() == nil}
	for _, i := range issues {
		res.Issues = append(res.Issues, IssueView{
			Severity: i.Severity.String(),
			Position: i.Position.String(),
			Message:  i.Message,
		})
	}
	if !res.Valid {
		return f.Fail(ExitFailure, ErrCodeCheck, issues.Err(), res.Issues)
	}
	return f.Success(res)
}

func runEval(opts *RootOptions, f *OutputFormatter, cmd *cobra.Command, text string) error {
	expr, err := dhis2expr.Parse(text, opts.mode, opts.facade()...)
	if err != nil {
		return f.failParse(err)
	}
	in, err := opts.input(cmd.Context(), expr)
	if err != nil {
		return f.failInput(err)
	}
	v, err := dhis2expr.Eval(cmd.Context(), text, opts.mode, in.Data, opts.facade()...)
	if err != nil {
		var eerr *types.EvaluationError
		if errors.As(err, &eerr) {
			return f.Fail(ExitFailure, ErrCodeEval, err, map[string]string{"expression": eerr.Expression})
		}
		return f.Fail(ExitFailure, ErrCodeEval, err, nil)
	}
	return f.Success(&EvalResult{Value: v, Text: types.FormatValue(v)})
}

func runDescribe(opts *RootOptions, f *OutputFormatter, cmd *cobra.Command, text string) error {
	expr, err := dhis2expr.Parse(text, opts.mode, opts.facade()...)
	if err != nil {
		return f.failParse(err)
	}
	in, err := opts.input(cmd.Context(), expr)
	if err != nil {
		return f.failInput(err)
	}
	described, err := dhis2expr.Describe(text, opts.mode, in.DisplayNames, opts.facade()...)
	if err != nil {
		return f.failParse(err)
	}
	return f.Success(described)
}

func runItems(opts *RootOptions, f *OutputFormatter, _ *cobra.Command, text string) error {
	expr, err := dhis2expr.Parse(text, opts.mode, opts.facade()...)
	if err != nil {
		return f.failParse(err)
	}
	res := &ItemsResult{DataItems: []string{}, Variables: []string{}, UIDs: []string{}}
	for _, item := range expr.DataItems() {
		res.DataItems = append(res.DataItems, item.String())
	}
	for _, v := range expr.Variables() {
		res.Variables = append(res.Variables, v.String())
	}
	for _, id := range expr.UIDs() {
		res.UIDs = append(res.UIDs, id.String())
	}
	return f.Success(res)
}
