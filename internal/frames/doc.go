// Package frames implements the binding algebra used by sync rules.
//
// A Frame is one consistent assignment of values to rule variables; Frames
// is the working relation that flows through a rule's evaluation. Every
// operation returns a new Frames value and never mutates its receiver.
//
// The operations are:
//
//   - Match / MatchLog: extend frames by matching action entries against a
//     pattern (equi-join on shared variables).
//   - Query / QueryOptional: join frames with rows returned by a lookup
//     function (inner join by default, left join on request).
//   - Filter, Dedupe, CoerceTime, Collect: pure transforms for where clauses.
package frames
