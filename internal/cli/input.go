package cli

import (
	"context"
	"fmt"

	"github.com/sandrolain/dhis2expr/internal/datactx"
	"github.com/sandrolain/dhis2expr/internal/store"
	"github.com/sandrolain/dhis2expr/pkg/evaluator"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

// inputError is a failure to assemble the evaluation input.
type inputError struct {
	code string
	err  error
}

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

// input assembles the context for expr from the --context file and the
// --db store. Values and names from the context file take precedence.
func (o *RootOptions) input(ctx context.Context, expr *types.Expression) (*datactx.Context, error) {
	in := &datactx.Context{
		Data:          &evaluator.Data{Items: types.DataItemValues{}},
		DisplayNames:  map[string]string{},
		VariableTypes: map[string]types.ValueType{},
	}
	if o.Context != "" {
		loaded, err := datactx.Load(o.Context, o.mode)
		if err != nil {
			return nil, &inputError{ErrCodeContext, err}
		}
		in = loaded
	}
	if o.DB == "" || expr == nil {
		return in, nil
	}

	s, err := store.Open(o.DB)
	if err != nil {
		return nil, &inputError{ErrCodeStore, err}
	}
	defer s.Close()

	values, err := s.Values(ctx, expr.DataItems())
	if err != nil {
		return nil, &inputError{ErrCodeStore, err}
	}
	for key, v := range values {
		if _, ok := in.Data.Items[key]; !ok {
			in.Data.Items[key] = v
		}
	}

	names, err := s.DisplayNames(ctx, referencedNames(expr))
	if err != nil {
		return nil, &inputError{ErrCodeStore, err}
	}
	for id, name := range names {
		if _, ok := in.DisplayNames[id]; !ok {
			in.DisplayNames[id] = name
		}
	}
	o.logger.Debug("input assembled",
		"items", len(in.Data.Items),
		"display_names", len(in.DisplayNames))
	return in, nil
}

// referencedNames returns the UIDs and variable names of expr.
func referencedNames(expr *types.Expression) []string {
	var ids []string
	for _, id := range expr.UIDs() {
		ids = append(ids, id.Value)
	}
	for _, v := range expr.Variables() {
		ids = append(ids, v.Name)
	}
	return ids
}

// load imports the --context file into the --db store.
func (o *RootOptions) load(ctx context.Context) (*LoadResult, error) {
	if o.Context == "" || o.DB == "" {
		return nil, &inputError{ErrCodeGeneric, fmt.Errorf("load requires --context and --db")}
	}
	in, err := datactx.Load(o.Context, o.mode)
	if err != nil {
		return nil, &inputError{ErrCodeContext, err}
	}
	s, err := store.Open(o.DB)
	if err != nil {
		return nil, &inputError{ErrCodeStore, err}
	}
	defer s.Close()

	runID, err := s.BeginRun(ctx, o.Context)
	if err != nil {
		return nil, &inputError{ErrCodeStore, err}
	}
	for _, iv := range in.Items {
		if err := s.PutValue(ctx, runID, iv.Item, iv.Value); err != nil {
			return nil, &inputError{ErrCodeStore, err}
		}
	}
	for id, name := range in.DisplayNames {
		if err := s.PutDisplayName(ctx, id, name); err != nil {
			return nil, &inputError{ErrCodeStore, err}
		}
	}
	return &LoadResult{RunID: runID, Values: len(in.Items), DisplayNames: len(in.DisplayNames)}, nil
}
