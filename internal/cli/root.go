// Package cli implements the dhis2expr command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sandrolain/dhis2expr"
	"github.com/sandrolain/dhis2expr/pkg/cache"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Mode     string
	Context  string
	DB       string
	Annotate bool

	mode   types.Mode
	logger *slog.Logger
	cache  *cache.Cache
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:          "dhis2expr",
		Short:        "Parse, check and evaluate DHIS2 expressions",
		Version:      dhis2expr.Version(),
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Mode, "mode", "m", "VALIDATION_RULE",
		fmt.Sprintf("expression mode (%v)", types.ModeNames()))
	cmd.PersistentFlags().StringVarP(&opts.Context, "context", "c", "", "context file (.yaml, .yml or .cue)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "SQLite store of data values and display names")
	cmd.PersistentFlags().BoolVar(&opts.Annotate, "annotate", false, "preserve whitespace and comments")

	cmd.AddCommand(NewParseCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewItemsCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))

	return cmd
}

// init validates the global flags and installs the logger. Every command
// calls it before doing any work.
func (o *RootOptions) init(errOut io.Writer) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return WrapExitError(ExitCommandError, ErrCodeGeneric,
			fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	if o.Mode == "" {
		o.Mode = types.ModeValidationRule.String()
	}
	mode, err := types.ParseMode(o.Mode)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeInvalidMode, err)
	}
	o.mode = mode

	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.Format == "json" {
		o.logger = slog.New(slog.NewJSONHandler(errOut, handlerOpts))
	} else {
		o.logger = slog.New(slog.NewTextHandler(errOut, handlerOpts))
	}
	if o.cache == nil {
		o.cache = cache.New(64)
	}
	return nil
}

// facade returns the options handed to the root package.
func (o *RootOptions) facade() []dhis2expr.Option {
	return []dhis2expr.Option{
		dhis2expr.WithAnnotate(o.Annotate),
		dhis2expr.WithLogger(o.logger),
		dhis2expr.WithCache(o.cache),
	}
}
