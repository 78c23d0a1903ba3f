package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/syncframe/internal/engine"
	"github.com/roach88/syncframe/internal/ir"
	"github.com/roach88/syncframe/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	FlowToken string
	Action    string // optional - filter the timeline to one action
	Entry     int    // optional - explain which firing produced this entry
}

// TraceEvent is one entry in the trace timeline.
type TraceEvent struct {
	Index  int         `json:"index"`
	Seq    int64       `json:"seq"`
	Action string      `json:"action"`
	Input  ir.IRObject `json:"input"`
	Output ir.IRObject `json:"output"`
	Error  bool        `json:"error,omitempty"`
}

// ProvenanceEdge links the entries a sync matched to the entries it produced.
type ProvenanceEdge struct {
	SyncID   string `json:"sync_id"`
	Pass     int    `json:"pass"`
	Matched  []int  `json:"matched"`
	Produced []int  `json:"produced"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	FlowToken  string           `json:"flow_token"`
	Outcome    *TraceOutcome    `json:"outcome,omitempty"`
	Timeline   []TraceEvent     `json:"timeline"`
	Provenance []ProvenanceEdge `json:"provenance"`
	Stats      TraceStats       `json:"stats"`
}

// TraceOutcome is the recorded terminal result of the request.
type TraceOutcome struct {
	Status    string      `json:"status"`
	ErrorCode string      `json:"error_code,omitempty"`
	Response  ir.IRObject `json:"response,omitempty"`
	Passes    int         `json:"passes"`
	Steps     int         `json:"steps"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Entries      int  `json:"entries"`
	ErrorEntries int  `json:"error_entries"`
	SyncFirings  int  `json:"sync_firings"`
	IsComplete   bool `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded action log and provenance of a request",
		Long: `Read a request's audit trail from the SQLite store.

Without --flow, lists the recorded requests. With --flow, shows:
- Timeline: the action log in index order
- Provenance: which sync matched which entries and what it produced
- Outcome: the response or dispatch error that ended the request

Examples:
  syncframe trace --db ./audit.db
  syncframe trace --db ./audit.db --flow flow-create-pet
  syncframe trace --db ./audit.db --flow flow-create-pet --action Pets.create
  syncframe trace --db ./audit.db --flow flow-create-pet --entry 2 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token to trace")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter timeline to one Concept.method")
	cmd.Flags().IntVar(&opts.Entry, "entry", -1, "show the firing that produced this log index")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// store.Open would create a missing file.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.FlowToken == "" {
		return listFlows(ctx, cmd, st, opts.Format)
	}
	if opts.Entry >= 0 {
		return explainEntry(ctx, cmd, st, opts)
	}

	entries, err := st.ReadFlow(ctx, opts.FlowToken)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read flow", err)
	}

	if len(entries) == 0 {
		if opts.Format == "json" {
			return outputTraceJSON(cmd, opts.FlowToken, TraceResult{
				FlowToken:  opts.FlowToken,
				Timeline:   []TraceEvent{},
				Provenance: []ProvenanceEdge{},
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No entries found for flow: %s\n", opts.FlowToken)
		return nil
	}

	firings, err := st.ReadFirings(ctx, opts.FlowToken)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read firings", err)
	}

	result := TraceResult{
		FlowToken:  opts.FlowToken,
		Timeline:   buildTimeline(entries, opts.Action),
		Provenance: buildProvenance(firings),
	}

	outcome, err := st.ReadOutcome(ctx, opts.FlowToken)
	switch {
	case err == nil:
		result.Outcome = &TraceOutcome{
			Status:    outcome.Status,
			ErrorCode: string(outcome.ErrorCode),
			Response:  outcome.Response,
			Passes:    outcome.Passes,
			Steps:     outcome.Steps,
		}
	case !errors.Is(err, store.ErrNotFound):
		return WrapExitError(ExitCommandError, "failed to read outcome", err)
	}

	result.Stats = TraceStats{
		Entries:     len(entries),
		SyncFirings: len(firings),
		IsComplete:  result.Outcome != nil,
	}
	for _, e := range entries {
		if e.IsError() {
			result.Stats.ErrorEntries++
		}
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, opts.FlowToken, result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

// buildTimeline converts log entries to timeline events, keeping only
// actionFilter's entries when it is set.
func buildTimeline(entries []ir.ActionEntry, actionFilter string) []TraceEvent {
	timeline := []TraceEvent{}
	for _, e := range entries {
		if actionFilter != "" && e.ActionRef() != actionFilter {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Index:  e.Index,
			Seq:    e.Seq,
			Action: e.ActionRef(),
			Input:  e.Input,
			Output: e.Output,
			Error:  e.IsError(),
		})
	}
	return timeline
}

func buildProvenance(firings []engine.Firing) []ProvenanceEdge {
	edges := make([]ProvenanceEdge, len(firings))
	for i, f := range firings {
		edges[i] = ProvenanceEdge{
			SyncID:   f.SyncID,
			Pass:     f.Pass,
			Matched:  f.Trail,
			Produced: f.Produced,
		}
	}
	return edges
}

func listFlows(ctx context.Context, cmd *cobra.Command, st *store.Store, format string) error {
	flows, err := st.ListFlows(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list flows", err)
	}

	if format == "json" {
		type flowJSON struct {
			FlowToken string `json:"flow_token"`
			Entries   int    `json:"entries"`
			FirstSeq  int64  `json:"first_seq"`
			Status    string `json:"status,omitempty"`
			ErrorCode string `json:"error_code,omitempty"`
		}
		out := make([]flowJSON, len(flows))
		for i, f := range flows {
			out[i] = flowJSON{f.FlowToken, f.Entries, f.FirstSeq, f.Status, f.ErrorCode}
		}
		return outputTraceJSON(cmd, "", out)
	}

	w := cmd.OutOrStdout()
	if len(flows) == 0 {
		fmt.Fprintln(w, "No flows recorded.")
		return nil
	}
	for _, f := range flows {
		status := f.Status
		if status == "" {
			status = "pending"
		}
		if f.ErrorCode != "" {
			status += " " + f.ErrorCode
		}
		fmt.Fprintf(w, "%s  %d entries  %s\n", f.FlowToken, f.Entries, status)
	}
	return nil
}

func explainEntry(ctx context.Context, cmd *cobra.Command, st *store.Store, opts *TraceOptions) error {
	firing, err := st.ProducedBy(ctx, opts.FlowToken, opts.Entry)
	if errors.Is(err, store.ErrNotFound) {
		// Only the request entry, or an unknown index.
		if opts.Format == "json" {
			return outputTraceJSON(cmd, opts.FlowToken, map[string]any{"index": opts.Entry, "produced_by": nil})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Entry %d was not produced by a sync\n", opts.Entry)
		return nil
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read provenance", err)
	}

	edge := buildProvenance([]engine.Firing{firing})[0]
	if opts.Format == "json" {
		return outputTraceJSON(cmd, opts.FlowToken, map[string]any{"index": opts.Entry, "produced_by": edge})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Entry %d was produced by %s in pass %d, matching %s\n",
		opts.Entry, edge.SyncID, edge.Pass, formatIndices(edge.Matched))
	return nil
}

// outputTraceJSON outputs data wrapped in the standard response.
func outputTraceJSON(cmd *cobra.Command, flowToken string, data any) error {
	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	return formatter.Indented(CLIResponse{
		Status:    StatusOK,
		Data:      data,
		FlowToken: flowToken,
	})
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Flow: %s\n", result.FlowToken)
	fmt.Fprintf(w, "Status: %s\n", outcomeStatus(result.Outcome))
	if result.Outcome != nil && result.Outcome.Response != nil {
		fmt.Fprintf(w, "Response: %s\n", ir.String(result.Outcome.Response))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	}
	for _, event := range result.Timeline {
		marker := ""
		if event.Error {
			marker = " !"
		}
		fmt.Fprintf(w, "  [%d] %s%s\n", event.Index, event.Action, marker)
		if verbose {
			fmt.Fprintf(w, "       Seq: %d\n", event.Seq)
			fmt.Fprintf(w, "       Input: %s\n", ir.String(event.Input))
			fmt.Fprintf(w, "       Output: %s\n", ir.String(event.Output))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Provenance ===")
	if len(result.Provenance) == 0 {
		fmt.Fprintln(w, "  (no sync firings)")
	}
	for _, edge := range result.Provenance {
		fmt.Fprintf(w, "  pass %d: %s -[%s]-> %s\n",
			edge.Pass, formatIndices(edge.Matched), edge.SyncID, formatIndices(edge.Produced))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Entries:       %d\n", result.Stats.Entries)
	fmt.Fprintf(w, "  Error Entries: %d\n", result.Stats.ErrorEntries)
	fmt.Fprintf(w, "  Sync Firings:  %d\n", result.Stats.SyncFirings)
	if result.Outcome != nil {
		fmt.Fprintf(w, "  Passes:        %d\n", result.Outcome.Passes)
		fmt.Fprintf(w, "  Steps:         %d\n", result.Outcome.Steps)
	}
	return nil
}

func formatIndices(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%d", x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func outcomeStatus(o *TraceOutcome) string {
	switch {
	case o == nil:
		return "Incomplete (no outcome recorded)"
	case o.ErrorCode != "":
		return fmt.Sprintf("%s (%s)", o.Status, o.ErrorCode)
	default:
		return o.Status
	}
}
