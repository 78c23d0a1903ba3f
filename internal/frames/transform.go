package frames

import (
	"sort"
	"time"

	"github.com/roach88/syncframe/internal/ir"
)

// Filter keeps the frames for which keep returns true.
func (fs Frames) Filter(keep func(Frame) bool) Frames {
	var out Frames
	for _, f := range fs {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// Dedupe keeps the first frame for each distinct combination of values of
// vars. With no vars, frames are compared on all bindings.
func (fs Frames) Dedupe(vars ...ir.Var) Frames {
	seen := make(map[string]bool, len(fs))
	var out Frames
	for _, f := range fs {
		key := dedupeKey(f, vars)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

func dedupeKey(f Frame, vars []ir.Var) string {
	if len(vars) == 0 {
		return ir.String(f.Bindings())
	}
	key := make(ir.IRArray, len(vars))
	for i, v := range vars {
		val, ok := f.Get(v)
		if !ok {
			// Distinct from every bound value, including null.
			val = ir.IRObject{"$unbound": ir.IRBool(true)}
		}
		key[i] = val
	}
	return ir.String(key)
}

// CoerceTime rewrites each of vars from an RFC 3339 string to epoch
// milliseconds. Integers are left as they are and unbound variables are
// skipped; a frame holding any other value for one of vars is dropped.
func (fs Frames) CoerceTime(vars ...ir.Var) Frames {
	var out Frames
	for _, f := range fs {
		next, ok := coerceFrame(f, vars)
		if ok {
			out = append(out, next)
		}
	}
	return out
}

func coerceFrame(f Frame, vars []ir.Var) (Frame, bool) {
	next := f
	for _, v := range vars {
		val, ok := next.Get(v)
		if !ok {
			continue
		}
		switch tv := val.(type) {
		case ir.IRInt:
		case ir.IRString:
			ts, err := time.Parse(time.RFC3339Nano, string(tv))
			if err != nil {
				return Frame{}, false
			}
			next = next.With(v, ir.IRInt(ts.UnixMilli()))
		default:
			return Frame{}, false
		}
	}
	return next, true
}

// Collect groups frames by the values of groupBy and emits one frame per
// group, in order of first appearance. The output frame binds the groupBy
// variables plus as, an array holding one object of fields per member
// frame. Its trail is the sorted union of the members' trails.
func (fs Frames) Collect(groupBy []ir.Var, fields []ir.Var, as ir.Var) Frames {
	type group struct {
		first   Frame
		items   ir.IRArray
		indices map[int]bool
	}
	var order []string
	groups := make(map[string]*group)

	for _, f := range fs {
		key := dedupeKey(f, groupBy)
		g, ok := groups[key]
		if !ok {
			g = &group{first: f, indices: make(map[int]bool)}
			groups[key] = g
			order = append(order, key)
		}
		item := make(ir.IRObject, len(fields))
		for _, field := range fields {
			if val, bound := f.Get(field); bound {
				item[string(field)] = val
			}
		}
		g.items = append(g.items, item)
		for _, idx := range f.trail {
			g.indices[idx] = true
		}
	}

	out := make(Frames, 0, len(order))
	for _, key := range order {
		g := groups[key]
		next := Frame{bindings: make(map[ir.Var]ir.IRValue, len(groupBy)+1)}
		for _, v := range groupBy {
			if val, ok := g.first.Get(v); ok {
				next.bindings[v] = val
			}
		}
		next.bindings[as] = g.items
		for idx := range g.indices {
			next.trail = append(next.trail, idx)
		}
		sort.Ints(next.trail)
		out = append(out, next)
	}
	return out
}
