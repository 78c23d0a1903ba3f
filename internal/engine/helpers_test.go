package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/syncframe/internal/ir"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pat(ref string, input, output ir.Template) ir.Pattern {
	concept, method, _ := ir.SplitActionRef(ref)
	return ir.Pattern{Concept: concept, Method: method, Input: input, Output: output}
}

func call(ref string, input ir.Template) ir.ActionCall {
	concept, method, _ := ir.SplitActionRef(ref)
	return ir.ActionCall{Concept: concept, Method: method, Input: input}
}

// requestPat matches the request entry and binds $request.
func requestPat(input ir.Template) ir.Pattern {
	return pat("Requesting.request", input, ir.Template{"request": ir.V("request")})
}

// respondCall replies to $request with body.
func respondCall(body ir.Template) ir.ActionCall {
	input := ir.Template{"request": ir.V("request")}
	for k, v := range body {
		input[k] = v
	}
	return call("Requesting.respond", input)
}

func str(s string) ir.Term { return ir.Lit(ir.IRString(s)) }

// counter records how often each concept method ran.
type counter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCounter() *counter {
	return &counter{calls: make(map[string]int)}
}

func (c *counter) action(ref string, out ir.IRObject) ActionFunc {
	return func(context.Context, ir.IRObject) (ir.IRObject, error) {
		c.mu.Lock()
		c.calls[ref]++
		c.mu.Unlock()
		return out.Clone(), nil
	}
}

func (c *counter) count(ref string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[ref]
}

func register(t *testing.T, reg *Registry, ref string, fn ActionFunc) {
	t.Helper()
	concept, method, ok := ir.SplitActionRef(ref)
	require.True(t, ok, "bad action ref %q", ref)
	require.NoError(t, reg.Register(concept, method, fn))
}

func newTestEngine(t *testing.T, reg *Registry, rules []Rule, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{WithLogger(quietLogger())}, opts...)
	e, err := New(reg, rules, opts...)
	require.NoError(t, err)
	return e
}

func countEntries(log []ir.ActionEntry, ref string) int {
	n := 0
	for _, e := range log {
		if e.ActionRef() == ref {
			n++
		}
	}
	return n
}

func findEntry(log []ir.ActionEntry, ref string) (ir.ActionEntry, bool) {
	for _, e := range log {
		if e.ActionRef() == ref {
			return e, true
		}
	}
	return ir.ActionEntry{}, false
}

// fakeRecorder keeps everything in memory.
type fakeRecorder struct {
	mu       sync.Mutex
	entries  []ir.ActionEntry
	firings  []Firing
	outcomes []Outcome
}

func (r *fakeRecorder) RecordEntry(_ context.Context, e ir.ActionEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeRecorder) RecordFiring(_ context.Context, f Firing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.firings = append(r.firings, f)
	return nil
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}
