package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncframe/internal/ir"
	"github.com/roach88/syncframe/internal/queryir"
)

func TestCompile_Select(t *testing.T) {
	q := queryir.Select{
		From: "pets",
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.ArgEquals{Field: "owner", Arg: "user"},
			queryir.Equals{Field: "status", Value: ir.IRString("active")},
		}},
		Bindings: map[string]string{"name": "name", "id": "pet"},
		OrderBy:  []string{"name"},
	}

	sql, params, err := Compile(q, ir.IRObject{"user": ir.IRString("u1")})
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT id AS "pet", name AS "name" FROM pets WHERE (owner = ? AND status = ?) ORDER BY name ASC, rowid ASC`,
		sql)
	assert.Equal(t, []any{"u1", "active"}, params)
}

func TestCompile_SelectNoFilter(t *testing.T) {
	sql, params, err := Compile(queryir.Select{
		From:     "pets",
		Bindings: map[string]string{"id": "pet"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, `SELECT id AS "pet" FROM pets ORDER BY rowid ASC`, sql)
	assert.Empty(t, params)
}

func TestCompile_ValuesAreParameters(t *testing.T) {
	sneaky := "x' OR '1'='1"
	sql, params, err := Compile(queryir.Select{
		From:     "pets",
		Filter:   queryir.ArgEquals{Field: "owner", Arg: "user"},
		Bindings: map[string]string{"id": "pet"},
	}, ir.IRObject{"user": ir.IRString(sneaky)})
	require.NoError(t, err)

	assert.NotContains(t, sql, sneaky)
	assert.Equal(t, []any{sneaky}, params)
}

func TestCompile_Join(t *testing.T) {
	q := queryir.Join{
		Left: queryir.Select{
			From:     "carts",
			Filter:   queryir.ArgEquals{Field: "carts.owner", Arg: "user"},
			Bindings: map[string]string{"carts.id": "cart"},
		},
		Right: queryir.Select{
			From:     "items",
			Filter:   queryir.Equals{Field: "items.qty", Value: ir.IRInt(1)},
			Bindings: map[string]string{"items.sku": "sku"},
		},
		On: queryir.FieldsEqual{Left: "carts.id", Right: "items.cart_id"},
	}

	sql, params, err := Compile(q, ir.IRObject{"user": ir.IRString("u1")})
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT carts.id AS "cart", items.sku AS "sku" FROM carts INNER JOIN items ON carts.id = items.cart_id`+
			` WHERE carts.owner = ? AND items.qty = ? ORDER BY carts.rowid ASC, items.rowid ASC`,
		sql)
	assert.Equal(t, []any{"u1", int64(1)}, params)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		query   queryir.Query
		args    ir.IRObject
		wantErr string
	}{
		{
			name:    "missing arg",
			query:   queryir.Select{From: "pets", Filter: queryir.ArgEquals{Field: "owner", Arg: "user"}, Bindings: map[string]string{"id": "pet"}},
			args:    ir.IRObject{},
			wantErr: `missing query arg "user"`,
		},
		{
			name:    "array arg",
			query:   queryir.Select{From: "pets", Filter: queryir.ArgEquals{Field: "owner", Arg: "user"}, Bindings: map[string]string{"id": "pet"}},
			args:    ir.IRObject{"user": ir.IRArray{}},
			wantErr: "IRArray cannot be used",
		},
		{
			name:    "invalid",
			query:   queryir.Select{From: "pets"},
			wantErr: "invalid query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Compile(tt.query, tt.args)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"user"`, quoteIdent("user"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}
