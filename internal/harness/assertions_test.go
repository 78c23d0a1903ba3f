package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncframe/internal/engine"
	"github.com/roach88/syncframe/internal/ir"
	"github.com/roach88/syncframe/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Index: 0, Seq: 1, Action: "Requesting.request", Input: ir.IRObject{"path": ir.IRString("/pets")}, Output: ir.IRObject{"request": ir.IRString("f")}},
		{Index: 1, Seq: 2, Action: "Pets.create", Input: ir.IRObject{"name": ir.IRString("rex"), "age": ir.IRInt(3)}, Output: ir.IRObject{"pet": ir.IRString("p1")}},
		{Index: 2, Seq: 3, Action: "Pets.create", Input: ir.IRObject{"name": ir.IRString("fido")}, Output: ir.IRObject{"error": ir.IRString("taken")}},
		{Index: 3, Seq: 4, Action: "Requesting.respond", Input: ir.IRObject{"request": ir.IRString("f")}, Output: ir.IRObject{"request": ir.IRString("f")}},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   bool
	}{
		{"action only", Assertion{Action: "Pets.create"}, false},
		{"input subset", Assertion{Action: "Pets.create", Input: map[string]any{"age": 3}}, false},
		{"output subset", Assertion{Action: "Pets.create", Output: map[string]any{"error": "taken"}}, false},
		{"input and output from different entries", Assertion{
			Action: "Pets.create",
			Input:  map[string]any{"name": "rex"},
			Output: map[string]any{"error": "taken"},
		}, true},
		{"no coercion", Assertion{Action: "Pets.create", Input: map[string]any{"age": "3"}}, true},
		{"missing action", Assertion{Action: "Pets.delete"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(trace, tt.assertion)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, AssertTraceContains, ae.Type)
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"Requesting.request", "Pets.create", "Requesting.respond"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"Requesting.request", "Requesting.respond"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"Requesting.respond", "Pets.create"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"Pets.delete"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: Pets.delete")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "Pets.create", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "Pets.delete", Count: 0}))

	err := assertTraceCount(trace, Assertion{Action: "Pets.create", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences of Pets.create")
	assert.Contains(t, err.Error(), "Actual: 2 occurrences")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{Type: "trace_count", Expected: "1", Actual: "2", Trace: sampleTrace()[:2]}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, `[1] Pets.create {"age":3,"name":"rex"} -> {"pet":"p1"}`)
}

func TestAssertFinalState(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.RecordEntry(ctx, ir.ActionEntry{
		Index: 0, Seq: 1, FlowToken: "f", Concept: "Pets", Method: "create",
		Input:  ir.IRObject{"name": ir.IRString("rex")},
		Output: ir.IRObject{"pet": ir.IRString("p1")},
	}))
	require.NoError(t, st.RecordOutcome(ctx, engine.Outcome{
		FlowToken: "f", Status: engine.StatusFailed, ErrorCode: engine.ErrCodeNoResponse, Passes: 1,
	}))
	_, err = st.DB().ExecContext(ctx, "CREATE TABLE flags (name, enabled)")
	require.NoError(t, err)
	_, err = st.DB().ExecContext(ctx, "INSERT INTO flags VALUES ('a', 1), ('b', 0), ('c', 1)")
	require.NoError(t, err)

	tests := []struct {
		name      string
		assertion Assertion
		errMsg    string
	}{
		{"outcome", Assertion{Table: "outcomes", Where: map[string]any{"flow_token": "f"},
			Expect: map[string]any{"status": "failed", "error_code": "NO_RESPONSE", "passes": 1, "response": nil}}, ""},
		{"json column", Assertion{Table: "entries", Where: map[string]any{"idx": 0},
			Expect: map[string]any{"output": map[string]any{"pet": "p1"}}}, ""},
		{"bool column", Assertion{Table: "flags", Where: map[string]any{"name": "b"},
			Expect: map[string]any{"enabled": false}}, ""},
		{"bool where", Assertion{Table: "flags", Where: map[string]any{"enabled": false},
			Expect: map[string]any{"name": "b"}}, ""},
		{"mismatch", Assertion{Table: "outcomes", Expect: map[string]any{"status": "responded"}}, `field "status"`},
		{"no row", Assertion{Table: "flags", Where: map[string]any{"name": "z"},
			Expect: map[string]any{"enabled": true}}, "row not found"},
		{"ambiguous", Assertion{Table: "flags", Where: map[string]any{"enabled": true},
			Expect: map[string]any{"enabled": true}}, "multiple rows matched"},
		{"missing column", Assertion{Table: "flags", Expect: map[string]any{"color": "red"}, Where: map[string]any{"name": "a"}}, "not present"},
		{"unknown table", Assertion{Table: "ghosts", Expect: map[string]any{"a": 1}}, "query error"},
		{"bad table name", Assertion{Table: "flags; DROP TABLE flags", Expect: map[string]any{"a": 1}}, "invalid table name"},
		{"bad column name", Assertion{Table: "flags", Where: map[string]any{"name = name OR 1": 1},
			Expect: map[string]any{"a": 1}}, "invalid column name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, tt.assertion)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Action: "Pets.create", Count: 2},
		{Type: AssertTraceCount, Action: "Pets.create", Count: 5},
		{Type: AssertFinalState, Table: "outcomes", Expect: map[string]any{"status": "x"}},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], "requires database context")
	assert.Contains(t, errs[2], "unknown assertion type")
}

func TestTraceSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.FlowToken = "f"
	result.ErrorCode = "NO_RESPONSE"
	result.Trace = []TraceEvent{{Index: 0, Seq: 1, Action: "Requesting.request", Output: ir.IRObject{"request": ir.IRString("f")}}}
	result.Firings = []FiringEvent{{SyncID: "s", Pass: 1, Trail: []int{0}}}

	data, err := NewTraceSnapshot("snap", result).MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"error_code":"NO_RESPONSE","firings":[{"pass":1,"produced":[],"sync_id":"s","trail":[0]}],"flow_token":"f","scenario_name":"snap","trace":[{"action":"Requesting.request","index":0,"input":{},"output":{"request":"f"},"seq":1}]}`,
		string(data))
}
