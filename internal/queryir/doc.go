// Package queryir is a small relational query IR for where-clause lookups
// backed by application tables.
//
// A where clause calls a query with an args object built from the frame
// (see frames.Query). Queries written in this IR read those args through
// ArgEquals predicates and return rows whose fields are named by
// Select.Bindings. querysql compiles the IR to parameterized SQLite and
// wraps it as a query adapter.
//
// Query and Predicate are sealed: only types in this package implement
// them, so backends can switch exhaustively.
//
//	switch q := query.(type) {
//	case Select:
//	case Join:
//	}
//
// The fragment is deliberately small:
//   - Select(from, filter, bindings, order)
//   - Join(left, right, on), inner only
//   - Predicates: Equals, ArgEquals, FieldsEqual, And
//   - Explicit bindings (no SELECT *)
//
// Literal values are ir.IRValue, so there are no floats.
package queryir
