package engine

// FiringLedger records which frames a request has already fired.
//
// A fired frame is identified by its sync, the log indices its when
// clauses matched, and the bindings it carried after where. Rules are
// re-evaluated every pass, so a match that where filtered out earlier can
// still fire once a later entry or query result lets it through, but the
// same frame never fires twice.
//
// The ledger belongs to one request's dispatch loop and is not safe for
// concurrent use.
type FiringLedger struct {
	claimed map[string]bool
	fired   map[string]int
}

// NewFiringLedger creates an empty ledger.
func NewFiringLedger() *FiringLedger {
	return &FiringLedger{
		claimed: make(map[string]bool),
		fired:   make(map[string]int),
	}
}

// Claim records a frame of syncID with the given when-match signature and
// binding key. It reports false if the frame was claimed before. On success
// it returns the frame's ordinal: how many frames of the same when-match
// fired before it in this request.
func (l *FiringLedger) Claim(syncID, signature, binding string) (int, bool) {
	key := syncID + ":" + signature + ":" + binding
	if l.claimed[key] {
		return 0, false
	}
	l.claimed[key] = true

	match := syncID + ":" + signature
	ordinal := l.fired[match]
	l.fired[match]++
	return ordinal, true
}
