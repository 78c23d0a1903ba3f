package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/syncframe/internal/ir"
)

const (
	// DefaultMaxPasses bounds full evaluations of the rule set per request.
	DefaultMaxPasses = 64

	// DefaultMaxSteps bounds then-action invocations per request.
	DefaultMaxSteps = 1000
)

// Engine evaluates a fixed rule set against per-request action logs.
//
// The engine itself holds only read-only configuration: rules, concepts,
// queries and limits. All mutable state (the action log, firing ledger and
// quota) belongs to one Handle call, so any number of requests can be
// handled concurrently.
type Engine struct {
	registry *Registry
	rules    []compiledRule
	queries  map[string]QueryFunc

	flowGen        FlowTokenGenerator
	clock          Sequencer
	recorder       Recorder
	logger         *slog.Logger
	maxPasses      int
	maxSteps       int
	requestTimeout time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxPasses sets the per-request pass budget (default DefaultMaxPasses).
func WithMaxPasses(n int) EngineOption {
	return func(e *Engine) {
		e.maxPasses = n
	}
}

// WithMaxSteps sets the per-request then-invocation budget (default DefaultMaxSteps).
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithRequestTimeout bounds the wall time of each Handle call. Zero means
// only the caller's context applies.
func WithRequestTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.requestTimeout = d
	}
}

// WithRecorder sends every entry, firing and outcome to r.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithFlowGenerator sets the flow token source (default UUIDv7Generator).
func WithFlowGenerator(g FlowTokenGenerator) EngineOption {
	return func(e *Engine) {
		e.flowGen = g
	}
}

// WithQueries makes named queries available to where clauses. Later
// options add to, and may override, earlier ones.
func WithQueries(queries map[string]QueryFunc) EngineOption {
	return func(e *Engine) {
		for name, fn := range queries {
			e.queries[name] = fn
		}
	}
}

// WithClock sets the sequence source used to stamp entries.
func WithClock(c Sequencer) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New validates rules against registry and the configured queries and
// returns a ready engine. Rules are evaluated in the order given.
//
// A rule set with problems returns every ConfigError found, joined.
func New(registry *Registry, rules []Rule, opts ...EngineOption) (*Engine, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	e := &Engine{
		registry:  registry,
		queries:   make(map[string]QueryFunc),
		flowGen:   UUIDv7Generator{},
		clock:     NewClock(),
		recorder:  nopRecorder{},
		logger:    slog.Default(),
		maxPasses: DefaultMaxPasses,
		maxSteps:  DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxPasses <= 0 || e.maxSteps <= 0 {
		return nil, &ConfigError{Message: fmt.Sprintf("max passes and max steps must be positive (got %d, %d)", e.maxPasses, e.maxSteps)}
	}

	// Guard every query once so callers of WhereContext.Query get the same
	// timeout behavior as declarative steps.
	for name, fn := range e.queries {
		e.queries[name] = guardQuery(fn)
	}

	compiled, errs := compileRules(rules, registry, e.queries)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	e.rules = compiled
	return e, nil
}

// SyncIDs returns the registered sync IDs in evaluation order.
func (e *Engine) SyncIDs() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.Sync.ID
	}
	return ids
}

// Clock returns the engine's sequence source.
func (e *Engine) Clock() Sequencer {
	return e.clock
}

// Response is the result of one request.
type Response struct {
	FlowToken string

	// Body is the respond entry's input without the request field.
	// Nil when Handle returns an error.
	Body ir.IRObject

	// Log is the request's complete action log, including on failure.
	Log []ir.ActionEntry

	Passes int
	Steps  int
}

// Handle processes one inbound request to completion.
//
// It appends Requesting.request (input: the request fields; output: the
// flow token) and runs dispatch passes until a matching
// Requesting.respond appears. Every call returns exactly one of a
// response body or a *DispatchError.
func (e *Engine) Handle(ctx context.Context, request ir.IRObject) (Response, error) {
	if e.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.requestTimeout)
		defer cancel()
	}

	d := e.newDispatch(e.flowGen.Generate())
	body, err := d.run(ctx, request)

	resp := Response{
		FlowToken: d.flow,
		Body:      body,
		Log:       d.log,
		Passes:    d.quota.Passes(),
		Steps:     d.quota.Steps(),
	}
	e.finish(ctx, d, resp, err)
	return resp, err
}

func (e *Engine) finish(ctx context.Context, d *dispatch, resp Response, err error) {
	passesPerRequest.Observe(float64(resp.Passes))

	outcome := Outcome{
		FlowToken: resp.FlowToken,
		Response:  resp.Body,
		Passes:    resp.Passes,
		Steps:     resp.Steps,
	}
	if err == nil {
		outcome.Status = StatusResponded
		requestsTotal.WithLabelValues(StatusResponded).Inc()
		d.logger.Info("request responded", "passes", resp.Passes, "steps", resp.Steps, "entries", len(resp.Log))
	} else {
		outcome.Status = StatusFailed
		var de *DispatchError
		if errors.As(err, &de) {
			outcome.ErrorCode = de.Code
		}
		requestsTotal.WithLabelValues(string(outcome.ErrorCode)).Inc()
		d.logger.Error("request failed", "code", outcome.ErrorCode, "passes", resp.Passes, "steps", resp.Steps, "error", err)
	}

	// The request context may have expired; the audit write should not.
	if rerr := e.recorder.RecordOutcome(context.WithoutCancel(ctx), outcome); rerr != nil {
		d.logger.Warn("record outcome failed", "error", rerr)
	}
}

// Result pairs a response with its error for HandleAll.
type Result struct {
	Response Response
	Err      error
}

// HandleAll handles independent requests concurrently, each with its own
// log. Results are in request order. A failing request does not cancel the
// others.
func (e *Engine) HandleAll(ctx context.Context, requests []ir.IRObject) []Result {
	results := make([]Result, len(requests))
	var g errgroup.Group
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			resp, err := e.Handle(ctx, req)
			results[i] = Result{Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
