package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/syncframe/internal/ir"
)

// The Requesting concept is the transport boundary: the engine appends
// Requesting.request for every inbound request, and a rule calling
// Requesting.respond with the request's token ends dispatch.
const (
	RequestingConcept = "Requesting"
	RequestMethod     = "request"
	RespondMethod     = "respond"

	// RequestField carries the flow token on request outputs and respond inputs.
	RequestField = "request"
)

// ActionFunc is a concept method. It returns either a success shape or an
// error shape (an output carrying an "error" field); a returned Go error
// is recorded as an error shape too.
type ActionFunc func(ctx context.Context, input ir.IRObject) (ir.IRObject, error)

// Registry maps "Concept.method" to concept implementations.
// Safe for concurrent use; registration normally completes before New.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

// NewRegistry creates a registry holding the built-in Requesting.respond.
func NewRegistry() *Registry {
	r := &Registry{actions: make(map[string]ActionFunc)}
	r.actions[ir.ActionRefOf(RequestingConcept, RespondMethod)] = respond
	return r
}

// respond acknowledges the reply; the engine reads the payload from the
// entry's input.
func respond(_ context.Context, input ir.IRObject) (ir.IRObject, error) {
	token, ok := input[RequestField]
	if !ok {
		return ir.ErrorOutput("respond requires a request field"), nil
	}
	return ir.IRObject{RequestField: token}, nil
}

// Register adds a concept method. Requesting is reserved.
func (r *Registry) Register(concept, method string, fn ActionFunc) error {
	if concept == "" || method == "" {
		return fmt.Errorf("register: concept and method are required")
	}
	if fn == nil {
		return fmt.Errorf("register %s.%s: nil action", concept, method)
	}
	if concept == RequestingConcept {
		return fmt.Errorf("register %s.%s: concept %s is reserved", concept, method, RequestingConcept)
	}

	ref := ir.ActionRefOf(concept, method)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[ref]; exists {
		return fmt.Errorf("register %s: already registered", ref)
	}
	r.actions[ref] = fn
	return nil
}

// MustRegister is like Register but panics on error.
// Use only in tests or static setup code.
func (r *Registry) MustRegister(concept, method string, fn ActionFunc) {
	if err := r.Register(concept, method, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the implementation of "Concept.method".
func (r *Registry) Lookup(ref string) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[ref]
	return fn, ok
}

// Refs returns every registered action reference, sorted.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.actions))
	for ref := range r.actions {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
