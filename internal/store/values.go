package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

// PutValue stores the value of item for runID, replacing any earlier value.
// A slice is stored as one row per period in order.
func (s *Store) PutValue(ctx context.Context, runID string, item types.DataItem, value interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put value: %w", err)
	}
	defer tx.Rollback()

	key := item.Key()
	if _, err := tx.ExecContext(ctx, `DELETE FROM data_values WHERE item_key = ?`, key); err != nil {
		return fmt.Errorf("put value %s: %w", key, err)
	}

	periods, ok := value.([]interface{})
	if !ok {
		periods = []interface{}{value}
	}
	for i, v := range periods {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO data_values (item_key, period_index, value, run_id)
			VALUES (?, ?, ?, ?)
		`, key, i, column(v), runID)
		if err != nil {
			return fmt.Errorf("put value %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Values returns the stored values of items. Items without a stored value
// are absent from the result.
func (s *Store) Values(ctx context.Context, items []types.DataItem) (types.DataItemValues, error) {
	out := types.DataItemValues{}
	for _, item := range items {
		v, ok, err := s.value(ctx, item.Key())
		if err == nil && !ok && item.Key() != item.String() {
			v, ok, err = s.value(ctx, item.String())
		}
		if err != nil {
			return nil, err
		}
		if ok {
			out.Put(item, v)
		}
	}
	return out, nil
}

func (s *Store) value(ctx context.Context, key string) (interface{}, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM data_values
		WHERE item_key = ?
		ORDER BY period_index ASC
	`, key)
	if err != nil {
		return nil, false, fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	var periods []interface{}
	for rows.Next() {
		var v interface{}
		if err := rows.Scan(&v); err != nil {
			return nil, false, fmt.Errorf("scan value: %w", err)
		}
		periods = append(periods, fromColumn(v))
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate values: %w", err)
	}

	switch len(periods) {
	case 0:
		return nil, false, nil
	case 1:
		return periods[0], true, nil
	default:
		return periods, true, nil
	}
}

// PutDisplayName stores the display name of a UID or variable name.
func (s *Store) PutDisplayName(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO display_names (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, id, name)
	if err != nil {
		return fmt.Errorf("put display name %s: %w", id, err)
	}
	return nil
}

// DisplayNames returns the stored names of ids. Unknown ids are absent.
func (s *Store) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		var name string
		err := s.db.QueryRowContext(ctx, `SELECT name FROM display_names WHERE id = ?`, id).Scan(&name)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query display name %s: %w", id, err)
		}
		out[id] = name
	}
	return out, nil
}

// column maps a value to its SQLite representation. Dates are stored as
// text and read back as strings, which the evaluator coerces on demand.
func column(v interface{}) interface{} {
	switch x := types.Unwrap(v).(type) {
	case time.Time:
		return types.FormatValue(x)
	default:
		return x
	}
}

func fromColumn(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int64:
		return float64(x)
	default:
		return x
	}
}
