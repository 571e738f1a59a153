package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contextFile = "testdata/context.yaml"

// execute runs the root command with args and returns stdout and the
// command's exit code.
func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		return out.String(), GetExitCode(err)
	}
	return out.String(), ExitSuccess
}

func decode(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "dhis2expr", cmd.Use)

	for _, name := range []string{"parse", "check", "eval", "describe", "items", "load"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	mode := cmd.PersistentFlags().Lookup("mode")
	require.NotNil(t, mode)
	assert.Equal(t, "m", mode.Shorthand)
	assert.Equal(t, "VALIDATION_RULE", mode.DefValue)

	ctx := cmd.PersistentFlags().Lookup("context")
	require.NotNil(t, ctx)
	assert.Equal(t, "c", ctx.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("annotate"))
}

func TestParseJSON(t *testing.T) {
	out, code := execute(t, "parse", "--format", "json", "1+2")
	require.Equal(t, ExitSuccess, code, out)

	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.TraceID)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1 + 2", data["normalised"])
	tree, ok := data["tree"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "BinaryOperator", tree["type"])
	assert.Len(t, tree["children"], 2)
}

func TestParseText(t *testing.T) {
	out, code := execute(t, "parse", "1+2")
	require.Equal(t, ExitSuccess, code, out)
	golden(t).Assert(t, "parse_text", []byte(out))
}

func TestParseAnnotate(t *testing.T) {
	out, code := execute(t, "parse", "--annotate", "--format", "json", "1  +  2")
	require.Equal(t, ExitSuccess, code, out)
	data := decode(t, out).Data.(map[string]interface{})
	assert.Equal(t, "1  +  2", data["normalised"])
}

func TestParseError(t *testing.T) {
	out, code := execute(t, "parse", "--format", "json", "1 +")
	assert.Equal(t, ExitFailure, code)

	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParse, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "Unexpected end of input")
	details, ok := resp.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1.0, details["line"])
	assert.Equal(t, 3.0, details["column"])
}

func TestParseErrorSuggestion(t *testing.T) {
	out, code := execute(t, "parse", "--format", "json", "averag(#{FTRrcoaog83})")
	assert.Equal(t, ExitFailure, code)
	details := decode(t, out).Error.Details.(map[string]interface{})
	assert.Equal(t, "avg", details["suggestion"])
}

func TestParseErrorText(t *testing.T) {
	out, code := execute(t, "parse", "1 +\n  #{abc}")
	assert.Equal(t, ExitFailure, code)
	golden(t).Assert(t, "parse_error_text", []byte(out))
}

func TestCheck(t *testing.T) {
	out, code := execute(t, "check", "#{FTRrcoaog83} > 1")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "✓ valid\n", out)

	out, code = execute(t, "check", "--format", "json", "1 + 'a'")
	assert.Equal(t, ExitFailure, code)
	resp := decode(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCheck, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "1 error(s), 0 warning(s)")
	issues, ok := resp.Error.Details.([]interface{})
	require.True(t, ok)
	require.Len(t, issues, 1)
	issue := issues[0].(map[string]interface{})
	assert.Equal(t, "'a'", issue["position"])
}

func TestCheckWarningsOnly(t *testing.T) {
	out, code := execute(t, "check", "if(true, 1, 'x')")
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "✓ valid with warnings")
}

func TestEvalWithContext(t *testing.T) {
	out, code := execute(t, "eval", "--context", contextFile, "#{FTRrcoaog83} * 2")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "24\n", out)

	out, code = execute(t, "eval", "-c", contextFile, "--format", "json", "#{FTRrcoaog83.Uid00000001} + 1")
	require.Equal(t, ExitSuccess, code, out)
	data := decode(t, out).Data.(map[string]interface{})
	assert.Equal(t, 4.0, data["value"])
	assert.Equal(t, "4", data["text"])
}

func TestEvalMissingValue(t *testing.T) {
	out, code := execute(t, "eval", "#{FTRrcoaog83} * 2")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "null\n", out)
}

func TestEvalError(t *testing.T) {
	out, code := execute(t, "eval", "--format", "json", "if(1.1, 1, 2)")
	assert.Equal(t, ExitFailure, code)
	resp := decode(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeEval, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "Could not coerce Double '1.1' to Boolean")
}

func TestEvalMissingContextFile(t *testing.T) {
	out, code := execute(t, "eval", "--format", "json", "--context", "testdata/nope.yaml", "1")
	assert.Equal(t, ExitCommandError, code)
	assert.Equal(t, ErrCodeContext, decode(t, out).Error.Code)
}

func TestDescribe(t *testing.T) {
	out, code := execute(t, "describe", "-c", contextFile, "#{FTRrcoaog83.Uid00000001} + 1")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "#{ANC 1st visit.Fixed} + 1\n", out)
}

func TestItemsText(t *testing.T) {
	out, code := execute(t, "items", "#{FTRrcoaog83.Uid00000001} + #{FTRrcoaog83}")
	require.Equal(t, ExitSuccess, code, out)
	golden(t).Assert(t, "items_text", []byte(out))
}

func TestItemsJSONEmpty(t *testing.T) {
	out, code := execute(t, "items", "--format", "json", "1 + 2")
	require.Equal(t, ExitSuccess, code, out)
	data := decode(t, out).Data.(map[string]interface{})
	assert.Equal(t, []interface{}{}, data["data_items"])
	assert.Equal(t, []interface{}{}, data["variables"])
}

func TestInvalidMode(t *testing.T) {
	out, code := execute(t, "parse", "--format", "json", "--mode", "NOPE", "1")
	assert.Equal(t, ExitCommandError, code)
	resp := decode(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidMode, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "unknown mode")
}

func TestModeNames(t *testing.T) {
	out, code := execute(t, "parse", "--mode", "program-indicator", "d2:floor(1.5)")
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "d2:floor(1.5)")
}

func TestInvalidFormat(t *testing.T) {
	out, code := execute(t, "parse", "--format", "yaml", "1")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, "Error [E001]: invalid format")
}

func TestLoadRequiresFlags(t *testing.T) {
	out, code := execute(t, "load", "--format", "json", "--context", contextFile)
	assert.Equal(t, ExitCommandError, code)
	resp := decode(t, out)
	assert.Equal(t, ErrCodeGeneric, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "load requires --context and --db")
}

func TestLoadThenEvaluateFromStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "values.db")

	out, code := execute(t, "load", "--format", "json", "--context", contextFile, "--db", db)
	require.Equal(t, ExitSuccess, code, out)
	data := decode(t, out).Data.(map[string]interface{})
	assert.Equal(t, 2.0, data["values"])
	assert.Equal(t, 2.0, data["display_names"])
	assert.NotEmpty(t, data["run_id"])

	out, code = execute(t, "eval", "--db", db, "#{FTRrcoaog83} * 2")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "24\n", out)

	out, code = execute(t, "describe", "--db", db, "#{FTRrcoaog83} + 1")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "#{ANC 1st visit} + 1\n", out)
}

func TestContextOverridesStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "values.db")
	_, code := execute(t, "load", "--context", contextFile, "--db", db)
	require.Equal(t, ExitSuccess, code)

	out, code := execute(t, "eval", "--db", db, "--context", "../datactx/testdata/context.yaml", "#{FTRrcoaog83.Uid00000001}")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "[1, 2.5, null]\n", out)
}

func TestExitError(t *testing.T) {
	err := WrapExitError(ExitFailure, ErrCodeEval, assert.AnError)
	assert.Equal(t, "E012: "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(assert.AnError))
	assert.Equal(t, "E001", (&ExitError{Message: "E001"}).Error())
}
