// Package ir provides the value and rule types shared by every syncframe package.
//
// ir imports nothing internal. Frames, the engine, the compiler and the
// audit store all speak in these types:
//
//   - IRValue: a sealed value family (null, string, int, bool, array, object).
//     There is no float type; numbers are int64 so equality stays exact.
//   - ActionEntry: one completed concept-method invocation in a request's log.
//   - Var, Term, Pattern, ActionCall: the template language used by sync rules.
//   - SyncRule and WhereStep: the declarative, serializable form of a rule.
//
// All JSON tags use snake_case. Content hashes use RFC 8785 canonical JSON
// (see MarshalCanonical) so a binding produces the same hash on every run.
package ir
