package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/syncframe/internal/ir"
)

// TraceSnapshot is the golden-file form of a run: the action log, the
// firings that produced it and the terminal result.
type TraceSnapshot struct {
	ScenarioName string
	FlowToken    string
	Response     ir.IRObject
	ErrorCode    string
	Trace        []TraceEvent
	Firings      []FiringEvent
}

// NewTraceSnapshot captures a result under the given name.
func NewTraceSnapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: name,
		FlowToken:    result.FlowToken,
		Response:     result.Response,
		ErrorCode:    result.ErrorCode,
		Trace:        result.Trace,
		Firings:      result.Firings,
	}
}

// toIR converts the snapshot to an IRObject so it can be written as
// canonical JSON. Empty optional fields are omitted.
func (s TraceSnapshot) toIR() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, event := range s.Trace {
		trace[i] = ir.IRObject{
			"index":  ir.IRInt(event.Index),
			"seq":    ir.IRInt(event.Seq),
			"action": ir.IRString(event.Action),
			"input":  nonNil(event.Input),
			"output": nonNil(event.Output),
		}
	}

	firings := make(ir.IRArray, len(s.Firings))
	for i, f := range s.Firings {
		firings[i] = ir.IRObject{
			"sync_id":  ir.IRString(f.SyncID),
			"pass":     ir.IRInt(f.Pass),
			"trail":    intArray(f.Trail),
			"produced": intArray(f.Produced),
		}
	}

	out := ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"flow_token":    ir.IRString(s.FlowToken),
		"trace":         trace,
		"firings":       firings,
	}
	if s.Response != nil {
		out["response"] = s.Response
	}
	if s.ErrorCode != "" {
		out["error_code"] = ir.IRString(s.ErrorCode)
	}
	return out
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toIR())
}

func nonNil(obj ir.IRObject) ir.IRObject {
	if obj == nil {
		return ir.IRObject{}
	}
	return obj
}

func intArray(xs []int) ir.IRArray {
	arr := make(ir.IRArray, len(xs))
	for i, x := range xs {
		arr[i] = ir.IRInt(x)
	}
	return arr
}

// AssertGolden compares a result's snapshot with
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := NewTraceSnapshot(name, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// RunWithGolden runs a scenario and compares its snapshot with the golden
// file named after the scenario. Failed expectations fail the test too.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}
