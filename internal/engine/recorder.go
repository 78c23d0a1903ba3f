package engine

import (
	"context"

	"github.com/roach88/syncframe/internal/ir"
)

// Recorder receives a copy of each request's activity for audit. The audit
// store implements it. Recorder errors are logged and never affect the
// request.
type Recorder interface {
	RecordEntry(ctx context.Context, entry ir.ActionEntry) error
	RecordFiring(ctx context.Context, firing Firing) error
	RecordOutcome(ctx context.Context, outcome Outcome) error
}

// Firing describes one frame reaching a rule's then clause. Trail lists
// the when-matched entries (the firing's provenance); Produced lists the
// entries its then actions appended.
type Firing struct {
	ID          string
	FlowToken   string
	SyncID      string
	Pass        int
	Trail       []int
	Ordinal     int
	BindingHash string
	Produced    []int
}

// Outcome is the terminal result of a request.
type Outcome struct {
	FlowToken string
	Status    string // "responded" or "failed"
	Response  ir.IRObject
	ErrorCode DispatchErrorCode
	Passes    int
	Steps     int
}

// Outcome statuses.
const (
	StatusResponded = "responded"
	StatusFailed    = "failed"
)

type nopRecorder struct{}

func (nopRecorder) RecordEntry(context.Context, ir.ActionEntry) error { return nil }
func (nopRecorder) RecordFiring(context.Context, Firing) error        { return nil }
func (nopRecorder) RecordOutcome(context.Context, Outcome) error      { return nil }
