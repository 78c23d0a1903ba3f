package harness

import "github.com/roach88/syncframe/internal/ir"

// TraceEvent is one entry of the request's action log.
type TraceEvent struct {
	Index  int
	Seq    int64
	Action string
	Input  ir.IRObject
	Output ir.IRObject
}

// FiringEvent is one recorded rule firing, read back from the audit store.
type FiringEvent struct {
	SyncID   string
	Pass     int
	Trail    []int
	Produced []int
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when the expect clause and every assertion held.
	Pass bool

	FlowToken string

	// Response is the respond body; nil when the request failed.
	Response ir.IRObject

	// ErrorCode is the dispatch error code; empty when the request
	// was answered.
	ErrorCode string

	Trace   []TraceEvent
	Firings []FiringEvent

	// Errors lists every failed expectation.
	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func traceFromLog(log []ir.ActionEntry) []TraceEvent {
	trace := make([]TraceEvent, len(log))
	for i, e := range log {
		trace[i] = TraceEvent{
			Index:  e.Index,
			Seq:    e.Seq,
			Action: e.ActionRef(),
			Input:  e.Input,
			Output: e.Output,
		}
	}
	return trace
}
