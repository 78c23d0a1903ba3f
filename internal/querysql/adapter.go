package querysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/syncframe/internal/frames"
	"github.com/roach88/syncframe/internal/ir"
	"github.com/roach88/syncframe/internal/queryir"
)

// Adapter turns a query into a where-clause query function over db.
//
// Each call compiles q against the call's args and returns one IRObject per
// row, keyed by the query's bound field names. NULL columns are left out of
// the row. The query is validated once here so rule registration fails
// early on a malformed query.
func Adapter(db *sql.DB, q queryir.Query) (frames.QueryFunc, error) {
	if err := queryir.Validate(q); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	return func(ctx context.Context, args ir.IRObject) ([]ir.IRObject, error) {
		stmt, params, err := Compile(q, args)
		if err != nil {
			return nil, err
		}

		rows, err := db.QueryContext(ctx, stmt, params...)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("columns: %w", err)
		}

		results := []ir.IRObject{}
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, fmt.Errorf("scan row: %w", err)
			}

			row := make(ir.IRObject, len(cols))
			for i, col := range cols {
				v, err := fromSQL(values[i])
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", col, err)
				}
				if v != nil {
					row[col] = v
				}
			}
			results = append(results, row)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate rows: %w", err)
		}
		return results, nil
	}, nil
}

// fromSQL converts a driver value to an IRValue. NULL returns nil.
func fromSQL(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return ir.IRInt(val), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("fractional value %v is not allowed", val)
		}
		return ir.IRInt(int64(val)), nil
	case bool:
		return ir.IRBool(val), nil
	case string:
		return ir.IRString(val), nil
	case []byte:
		return ir.IRString(val), nil
	case time.Time:
		return ir.IRString(val.UTC().Format(time.RFC3339Nano)), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", v)
	}
}
