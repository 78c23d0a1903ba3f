package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer bounds the work one request may do.
//
// Passes count full evaluations of the rule set; steps count then-action
// invocations. The ledger stops a rule from re-firing for the same match,
// but a chain of distinct rules (or a rule set that keeps producing new
// matches) is only stopped here.
//
// Each request owns its own QuotaEnforcer.
type QuotaEnforcer struct {
	maxPasses int
	maxSteps  int
	passes    int
	steps     int
}

// NewQuotaEnforcer creates a quota with the given limits.
func NewQuotaEnforcer(maxPasses, maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxPasses: maxPasses, maxSteps: maxSteps}
}

// CheckPass counts a pass and fails once the limit is exceeded.
func (q *QuotaEnforcer) CheckPass(flowToken string) error {
	q.passes++
	if q.passes > q.maxPasses {
		return &QuotaExceededError{FlowToken: flowToken, Kind: "passes", Count: q.passes, Limit: q.maxPasses}
	}
	return nil
}

// CheckStep counts a then invocation and fails once the limit is exceeded.
func (q *QuotaEnforcer) CheckStep(flowToken string) error {
	q.steps++
	if q.steps > q.maxSteps {
		return &QuotaExceededError{FlowToken: flowToken, Kind: "steps", Count: q.steps, Limit: q.maxSteps}
	}
	return nil
}

// Passes returns the number of passes counted so far.
func (q *QuotaEnforcer) Passes() int { return q.passes }

// Steps returns the number of then invocations counted so far.
func (q *QuotaEnforcer) Steps() int { return q.steps }

// QuotaExceededError is the cause wrapped by an EXHAUSTED DispatchError.
type QuotaExceededError struct {
	FlowToken string
	Kind      string // "passes" or "steps"
	Count     int
	Limit     int
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("flow %s exceeded max %s: %d > %d", e.FlowToken, e.Kind, e.Count, e.Limit)
}

// IsQuotaError reports whether err wraps a QuotaExceededError.
func IsQuotaError(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}
