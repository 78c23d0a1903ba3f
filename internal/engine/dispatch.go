package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/syncframe/internal/frames"
	"github.com/roach88/syncframe/internal/ir"
)

// dispatch is the state of one request: its append-only log, firing
// ledger and quota. It is owned by a single Handle call.
type dispatch struct {
	e      *Engine
	flow   string
	log    []ir.ActionEntry
	ledger *FiringLedger
	quota  *QuotaEnforcer
	logger *slog.Logger

	responded bool
	response  ir.IRObject
}

func (e *Engine) newDispatch(flow string) *dispatch {
	return &dispatch{
		e:      e,
		flow:   flow,
		ledger: NewFiringLedger(),
		quota:  NewQuotaEnforcer(e.maxPasses, e.maxSteps),
		logger: e.logger.With("flow_token", flow),
	}
}

// run appends the request entry and evaluates passes until the request is
// answered, stalls, runs out of budget or times out.
//
// Each pass evaluates every rule, in registration order, against the log
// as it stood when the pass began; entries appended during a pass become
// visible in the next one. The loop ends after the pass in which a
// matching respond entry appears.
func (d *dispatch) run(ctx context.Context, request ir.IRObject) (ir.IRObject, error) {
	if request == nil {
		request = ir.IRObject{}
	}
	d.logger.Info("request received", "fields", len(request))
	d.append(ctx, RequestingConcept, RequestMethod, request, ir.IRObject{RequestField: ir.IRString(d.flow)})

	for {
		if err := ctx.Err(); err != nil {
			return nil, d.timeout(err)
		}
		if err := d.quota.CheckPass(d.flow); err != nil {
			return nil, d.exhausted(err)
		}
		pass := d.quota.Passes()
		snapshot := d.log[:len(d.log):len(d.log)]

		produced := 0
		for i := range d.e.rules {
			n, err := d.evaluate(ctx, &d.e.rules[i], snapshot, pass)
			produced += n
			if err != nil {
				return nil, err
			}
		}

		d.logger.Debug("pass complete", "pass", pass, "produced", produced, "entries", len(d.log))

		if d.responded {
			return d.response, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, d.timeout(err)
		}
		if produced == 0 {
			return nil, &DispatchError{
				Code:      ErrCodeNoResponse,
				Message:   "fixed point reached without a respond action",
				FlowToken: d.flow,
				Passes:    d.quota.Passes(),
				Steps:     d.quota.Steps(),
			}
		}
	}
}

// evaluate runs one rule for one pass and returns the number of entries
// it appended. Only budget and timeout failures are returned as errors;
// everything else is recovered and logged.
func (d *dispatch) evaluate(ctx context.Context, rule *compiledRule, snapshot []ir.ActionEntry, pass int) (int, error) {
	syncID := rule.Sync.ID

	fs := frames.Seed()
	for _, p := range rule.Sync.When {
		fs = frames.MatchLog(snapshot, p, fs)
		if fs.Empty() {
			return 0, nil
		}
	}

	d.logger.Debug("sync matched", "sync_id", syncID, "pass", pass, "matches", len(fs))

	out, err := d.where(ctx, rule, fs)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, d.timeout(ctxErr)
		}
		recoveredTotal.WithLabelValues(syncID, "where").Inc()
		d.logger.Warn("where failed, sync skipped", "sync_id", syncID, "pass", pass, "error", err)
		return 0, nil
	}

	produced := 0
	copies := make(map[string]int)
	for _, f := range out {
		sig := f.Signature()
		binding := bindingKey(f)
		n := copies[sig+"|"+binding]
		copies[sig+"|"+binding]++

		ordinal, ok := d.ledger.Claim(syncID, sig, fmt.Sprintf("%s#%d", binding, n))
		if !ok {
			continue
		}
		fired, err := d.fire(ctx, rule, f, pass, ordinal)
		produced += fired
		if err != nil {
			return produced, err
		}
	}
	return produced, nil
}

// bindingKey identifies a frame's bindings. Identical frames produced by
// one where (duplicate query rows) are told apart by the caller.
func bindingKey(f frames.Frame) string {
	hash, err := ir.BindingHash(f.Bindings())
	if err != nil {
		return f.String()
	}
	return hash
}

// where applies the compiled steps and then the Go transform, converting
// a panic into an error.
func (d *dispatch) where(ctx context.Context, rule *compiledRule, fs frames.Frames) (out frames.Frames, err error) {
	syncID := rule.Sync.ID
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &PanicError{Value: r}
		}
	}()

	report := func(err error) {
		recoveredTotal.WithLabelValues(syncID, "query").Inc()
		d.logger.Warn("lookup recovered", "sync_id", syncID, "error", err)
	}

	for _, step := range rule.steps {
		fs = step.run(ctx, fs, report)
		if fs.Empty() {
			return nil, nil
		}
	}
	if rule.Transform == nil {
		return fs, nil
	}
	return rule.Transform(ctx, fs, WhereContext{
		FlowToken: d.flow,
		SyncID:    syncID,
		Bound:     rule.bound,
		queries:   d.e.queries,
		report:    report,
	})
}

// fire invokes the rule's then actions, in declared order, for one frame.
func (d *dispatch) fire(ctx context.Context, rule *compiledRule, f frames.Frame, pass, ordinal int) (int, error) {
	syncID := rule.Sync.ID
	firing := Firing{
		ID:        ir.FiringID(d.flow, syncID, f.Trail(), ordinal),
		FlowToken: d.flow,
		SyncID:    syncID,
		Pass:      pass,
		Trail:     f.Trail(),
		Ordinal:   ordinal,
	}
	if hash, err := ir.BindingHash(f.Bindings()); err == nil {
		firing.BindingHash = hash
	}

	firingsTotal.WithLabelValues(syncID).Inc()
	d.logger.Info("sync fired", "sync_id", syncID, "pass", pass, "bindings", f.String())

	var ferr error
	for _, call := range rule.Sync.Then {
		if err := d.quota.CheckStep(d.flow); err != nil {
			ferr = d.exhausted(err)
			break
		}
		entry, err := d.invoke(ctx, syncID, call, f)
		if err != nil {
			ferr = err
			break
		}
		firing.Produced = append(firing.Produced, entry.Index)
	}

	if err := d.e.recorder.RecordFiring(context.WithoutCancel(ctx), firing); err != nil {
		d.logger.Warn("record firing failed", "sync_id", syncID, "error", err)
	}
	return len(firing.Produced), ferr
}

// invoke calls one then action and appends its completion. Concept errors
// and panics become error-shaped entries; only a context expiry aborts,
// and then nothing is appended because the action never completed.
func (d *dispatch) invoke(ctx context.Context, syncID string, call ir.ActionCall, f frames.Frame) (ir.ActionEntry, error) {
	ref := call.ActionRef()

	input, err := f.Resolve(call.Input)
	if err != nil {
		actionFailuresTotal.WithLabelValues(ref, "unbound").Inc()
		d.logger.Error("then input unresolved", "sync_id", syncID, "action", ref, "error", err)
		return d.append(ctx, call.Concept, call.Method, ir.IRObject{}, ir.ErrorOutput(err.Error())), nil
	}

	fn, ok := d.e.registry.Lookup(ref)
	if !ok {
		actionFailuresTotal.WithLabelValues(ref, "unknown").Inc()
		d.logger.Error("unknown action", "sync_id", syncID, "action", ref)
		return d.append(ctx, call.Concept, call.Method, input, ir.ErrorOutput("unknown action "+ref)), nil
	}

	output, err := invokeAction(ctx, fn, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ir.ActionEntry{}, d.timeout(ctxErr)
		}
		reason := "error"
		var pe *PanicError
		if errors.As(err, &pe) {
			reason = "panic"
		}
		actionFailuresTotal.WithLabelValues(ref, reason).Inc()
		d.logger.Error("action failed", "sync_id", syncID, "action", ref, "error", err)
		return d.append(ctx, call.Concept, call.Method, input, ir.ErrorOutput(err.Error())), nil
	}
	if output == nil {
		output = ir.IRObject{}
	}
	return d.append(ctx, call.Concept, call.Method, input, output), nil
}

// append adds a completed action to the log and notes a respond entry
// addressed to this request.
func (d *dispatch) append(ctx context.Context, concept, method string, input, output ir.IRObject) ir.ActionEntry {
	entry := ir.ActionEntry{
		Index:     len(d.log),
		Seq:       d.e.clock.Next(),
		FlowToken: d.flow,
		Concept:   concept,
		Method:    method,
		Input:     input,
		Output:    output,
	}
	d.log = append(d.log, entry)

	if err := d.e.recorder.RecordEntry(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.Warn("record entry failed", "index", entry.Index, "error", err)
	}

	if !d.responded && concept == RequestingConcept && method == RespondMethod && !entry.IsError() &&
		ir.Equal(input[RequestField], ir.IRString(d.flow)) {
		d.responded = true
		d.response = input.Without(RequestField)
	}
	return entry
}

func (d *dispatch) timeout(cause error) *DispatchError {
	return &DispatchError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("request context done: %v", cause),
		FlowToken: d.flow,
		Passes:    d.quota.Passes(),
		Steps:     d.quota.Steps(),
		Err:       cause,
	}
}

func (d *dispatch) exhausted(cause error) *DispatchError {
	return &DispatchError{
		Code:      ErrCodeExhausted,
		Message:   "dispatch budget exceeded",
		FlowToken: d.flow,
		Passes:    d.quota.Passes(),
		Steps:     d.quota.Steps(),
		Err:       cause,
	}
}
