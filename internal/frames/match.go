package frames

import (
	"github.com/roach88/syncframe/internal/ir"
)

// Match extends incoming frames by matching entry against p.
//
// The entry must have p's concept and method, and every template field must
// exist in the entry. Literal fields must equal the entry's value exactly,
// regardless of frames. For variable fields, a frame without a binding is
// extended; a frame whose binding differs from the entry's value is dropped.
// Surviving frames record entry.Index in their trail.
func Match(entry ir.ActionEntry, p ir.Pattern, incoming Frames) Frames {
	if entry.Concept != p.Concept || entry.Method != p.Method {
		return nil
	}
	if !literalsMatch(entry.Input, p.Input) || !literalsMatch(entry.Output, p.Output) {
		return nil
	}

	var out Frames
	for _, f := range incoming {
		next, ok := bindTemplate(f, entry.Input, p.Input)
		if !ok {
			continue
		}
		next, ok = bindTemplate(next, entry.Output, p.Output)
		if !ok {
			continue
		}
		out = append(out, next.withTrail(entry.Index))
	}
	return out
}

// MatchLog matches each incoming frame against every entry appended after
// the frame's last matched entry. Starting from Seed, the first clause of a
// when chain therefore scans the whole log and later clauses only see
// entries that came after the one matched before them.
//
// Output order is frame-major, then log order.
func MatchLog(entries []ir.ActionEntry, p ir.Pattern, incoming Frames) Frames {
	var out Frames
	for _, f := range incoming {
		after := f.LastIndex()
		for _, entry := range entries {
			if entry.Index <= after {
				continue
			}
			out = append(out, Match(entry, p, Frames{f})...)
		}
	}
	return out
}

func literalsMatch(fields ir.IRObject, tpl ir.Template) bool {
	for name, term := range tpl {
		actual, ok := fields[name]
		if !ok {
			return false
		}
		if !term.IsVar() && !ir.Equal(term.Value, actual) {
			return false
		}
	}
	return true
}

func bindTemplate(f Frame, fields ir.IRObject, tpl ir.Template) (Frame, bool) {
	next := f.clone()
	for name, term := range tpl {
		if !term.IsVar() {
			continue
		}
		actual := fields[name]
		if bound, ok := next.bindings[term.Var]; ok {
			if !ir.Equal(bound, actual) {
				return Frame{}, false
			}
			continue
		}
		next.bindings[term.Var] = actual
	}
	return next, true
}
