package queryir

import "github.com/roach88/syncframe/internal/ir"

// Query is a sealed interface over Select and Join.
type Query interface {
	queryNode()
}

// Predicate is a sealed interface over Equals, ArgEquals, FieldsEqual and And.
type Predicate interface {
	predicateNode()
}

// Select reads rows from one table.
//
//	Select{
//	  From:     "sessions",
//	  Filter:   ArgEquals{Field: "token", Arg: "session"},
//	  Bindings: map[string]string{"user_id": "user"},
//	}
//
// compiles to
//
//	SELECT user_id AS "user" FROM sessions WHERE token = ? ORDER BY rowid ASC
//
// and yields rows {"user": <user_id>}. Columns that are NULL are left out
// of the row, so a where clause expecting that field drops the row.
type Select struct {
	From     string
	Filter   Predicate
	Bindings map[string]string // column -> row field
	// OrderBy lists columns for a deterministic row order. Empty means
	// insertion order (rowid).
	OrderBy  []string
}

func (Select) queryNode() {}

// Join is an inner join of two Selects. Column references in Bindings,
// OrderBy and predicates may be qualified as table.column.
type Join struct {
	Left  Query
	Right Query
	On    Predicate // required
}

func (Join) queryNode() {}

// Equals compares a column to a literal.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// ArgEquals compares a column to a field of the args object the query is
// called with. A missing arg is an error at call time.
type ArgEquals struct {
	Field string
	Arg   string
}

func (ArgEquals) predicateNode() {}

// FieldsEqual compares two columns, typically the join key of a Join.
type FieldsEqual struct {
	Left  string
	Right string
}

func (FieldsEqual) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
