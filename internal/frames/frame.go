package frames

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/syncframe/internal/ir"
)

// Frame is an immutable set of variable bindings plus the trail of log
// indices matched to produce it.
type Frame struct {
	bindings map[ir.Var]ir.IRValue
	trail    []int
}

// Frames is an ordered set of frames. Order is stable; duplicates are legal.
type Frames []Frame

// Seed returns the single empty frame that starts every when chain.
func Seed() Frames {
	return Frames{{}}
}

// FromObject builds a frame binding each key of obj.
func FromObject(obj ir.IRObject) Frame {
	f := Frame{bindings: make(map[ir.Var]ir.IRValue, len(obj))}
	for k, v := range obj {
		f.bindings[ir.Var(k)] = v
	}
	return f
}

// Get returns the value bound to v.
func (f Frame) Get(v ir.Var) (ir.IRValue, bool) {
	val, ok := f.bindings[v]
	return val, ok
}

// Len returns the number of bound variables.
func (f Frame) Len() int { return len(f.bindings) }

// With returns a copy of f with v bound to val.
func (f Frame) With(v ir.Var, val ir.IRValue) Frame {
	next := f.clone()
	next.bindings[v] = val
	return next
}

// Vars returns the bound variables in lexical order.
func (f Frame) Vars() []ir.Var {
	out := make([]ir.Var, 0, len(f.bindings))
	for v := range f.bindings {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Trail returns the log indices matched by the when chain, in clause order.
func (f Frame) Trail() []int {
	return append([]int(nil), f.trail...)
}

// LastIndex returns the most recently matched log index, or -1.
func (f Frame) LastIndex() int {
	if len(f.trail) == 0 {
		return -1
	}
	return f.trail[len(f.trail)-1]
}

// Bindings returns the bindings as an object keyed by variable name.
func (f Frame) Bindings() ir.IRObject {
	obj := make(ir.IRObject, len(f.bindings))
	for k, v := range f.bindings {
		obj[string(k)] = v
	}
	return obj
}

// Signature identifies a when-match: the same rule matching the same
// entries always yields the same signature.
func (f Frame) Signature() string {
	parts := make([]string, len(f.trail))
	for i, idx := range f.trail {
		parts[i] = fmt.Sprint(idx)
	}
	return strings.Join(parts, ",")
}

// String renders the bindings for logs.
func (f Frame) String() string {
	return ir.String(f.Bindings())
}

// Resolve instantiates a template against f. Literal terms pass through;
// variable terms must be bound.
func (f Frame) Resolve(tpl ir.Template) (ir.IRObject, error) {
	out := make(ir.IRObject, len(tpl))
	for _, field := range tpl.SortedFields() {
		term := tpl[field]
		if !term.IsVar() {
			out[field] = term.Value
			continue
		}
		val, ok := f.bindings[term.Var]
		if !ok {
			return nil, &UnboundError{Var: term.Var, Field: field}
		}
		out[field] = val
	}
	return out, nil
}

func (f Frame) clone() Frame {
	next := Frame{
		bindings: make(map[ir.Var]ir.IRValue, len(f.bindings)+1),
		trail:    f.trail,
	}
	for k, v := range f.bindings {
		next.bindings[k] = v
	}
	return next
}

func (f Frame) withTrail(idx int) Frame {
	next := f
	next.trail = make([]int, len(f.trail), len(f.trail)+1)
	copy(next.trail, f.trail)
	next.trail = append(next.trail, idx)
	return next
}

// UnboundError reports a template variable with no binding in the frame.
type UnboundError struct {
	Var   ir.Var
	Field string
}

func (e *UnboundError) Error() string {
	return fmt.Sprintf("variable $%s (field %q) is not bound", e.Var, e.Field)
}

// Len returns the number of frames.
func (fs Frames) Len() int { return len(fs) }

// Empty reports whether there are no frames.
func (fs Frames) Empty() bool { return len(fs) == 0 }

// Bindings returns every frame's bindings, in order.
func (fs Frames) Bindings() []ir.IRObject {
	out := make([]ir.IRObject, len(fs))
	for i, f := range fs {
		out[i] = f.Bindings()
	}
	return out
}
