package querysql

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncframe/internal/frames"
	"github.com/roach88/syncframe/internal/ir"
	"github.com/roach88/syncframe/internal/queryir"
)

func openPetsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Each new connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE pets (id TEXT, owner TEXT, name TEXT, born INTEGER, weight REAL);
		INSERT INTO pets VALUES
			('p1', 'u1', 'rex', 10, 4.0),
			('p2', 'u1', 'tom', 20, NULL),
			('p3', 'u1', 'kit', NULL, 2.5),
			('p4', 'u2', 'max', 40, 1.0);
	`)
	require.NoError(t, err)
	return db
}

func petsByOwner() queryir.Select {
	return queryir.Select{
		From:     "pets",
		Filter:   queryir.ArgEquals{Field: "owner", Arg: "user"},
		Bindings: map[string]string{"id": "pet", "name": "name"},
	}
}

func TestAdapter_Rows(t *testing.T) {
	db := openPetsDB(t)
	fn, err := Adapter(db, petsByOwner())
	require.NoError(t, err)

	rows, err := fn(context.Background(), ir.IRObject{"user": ir.IRString("u1")})
	require.NoError(t, err)

	assert.Equal(t, []ir.IRObject{
		{"pet": ir.IRString("p1"), "name": ir.IRString("rex")},
		{"pet": ir.IRString("p2"), "name": ir.IRString("tom")},
		{"pet": ir.IRString("p3"), "name": ir.IRString("kit")},
	}, rows)
}

func TestAdapter_NoRows(t *testing.T) {
	db := openPetsDB(t)
	fn, err := Adapter(db, petsByOwner())
	require.NoError(t, err)

	rows, err := fn(context.Background(), ir.IRObject{"user": ir.IRString("nobody")})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestAdapter_NullColumnsOmitted(t *testing.T) {
	db := openPetsDB(t)
	fn, err := Adapter(db, queryir.Select{
		From:     "pets",
		Filter:   queryir.ArgEquals{Field: "owner", Arg: "user"},
		Bindings: map[string]string{"id": "pet", "born": "born"},
	})
	require.NoError(t, err)

	rows, err := fn(context.Background(), ir.IRObject{"user": ir.IRString("u1")})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ir.IRObject{"pet": ir.IRString("p3")}, rows[2])
}

func TestAdapter_FractionalColumn(t *testing.T) {
	db := openPetsDB(t)
	fn, err := Adapter(db, queryir.Select{
		From:     "pets",
		Filter:   queryir.Equals{Field: "id", Value: ir.IRString("p3")},
		Bindings: map[string]string{"weight": "weight"},
	})
	require.NoError(t, err)

	_, err = fn(context.Background(), nil)
	assert.ErrorContains(t, err, "fractional value")
}

func TestAdapter_InvalidQuery(t *testing.T) {
	_, err := Adapter(openPetsDB(t), queryir.Select{From: "pets"})
	assert.ErrorContains(t, err, "no bindings")
}

// TestAdapter_FrameJoin runs the adapter through a frame join: 0, 1 and 3
// rows per frame give 0, 1 and 3 output frames, and a NULL output column
// drops that row.
func TestAdapter_FrameJoin(t *testing.T) {
	db := openPetsDB(t)
	fn, err := Adapter(db, queryir.Select{
		From:     "pets",
		Filter:   queryir.ArgEquals{Field: "owner", Arg: "user"},
		Bindings: map[string]string{"name": "name", "born": "born"},
	})
	require.NoError(t, err)

	in := ir.Template{"user": ir.V("user")}
	out := map[string]ir.Var{"name": "name", "born": "born"}

	seed := frames.Frames{
		frames.FromObject(ir.IRObject{"user": ir.IRString("u1")}),
		frames.FromObject(ir.IRObject{"user": ir.IRString("u2")}),
		frames.FromObject(ir.IRObject{"user": ir.IRString("u3")}),
	}

	got := seed.Query(context.Background(), fn, in, out)
	require.Len(t, got, 3)

	names := make([]ir.IRValue, len(got))
	for i, f := range got {
		names[i], _ = f.Get("name")
	}
	// kit has no birth date and is dropped.
	assert.Equal(t, []ir.IRValue{ir.IRString("rex"), ir.IRString("tom"), ir.IRString("max")}, names)
}
