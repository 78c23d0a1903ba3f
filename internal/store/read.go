package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/syncframe/internal/engine"
	"github.com/roach88/syncframe/internal/ir"
)

// ErrNotFound is returned by single-row reads when nothing matches.
var ErrNotFound = errors.New("not found")

// FlowSummary is one row of ListFlows.
type FlowSummary struct {
	FlowToken string
	Entries   int
	FirstSeq  int64
	Status    string // empty while the request has no recorded outcome
	ErrorCode string
}

// ReadFlow returns the action log of a request ordered by idx.
// Returns an empty slice (not nil) if nothing was recorded for the flow.
func (s *Store) ReadFlow(ctx context.Context, flowToken string) ([]ir.ActionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_token, idx, seq, concept, method, input, output
		FROM entries
		WHERE flow_token = ?
		ORDER BY idx ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []ir.ActionEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (ir.ActionEntry, error) {
	var (
		entry      ir.ActionEntry
		inputJSON  string
		outputJSON string
	)
	if err := rows.Scan(
		&entry.FlowToken,
		&entry.Index,
		&entry.Seq,
		&entry.Concept,
		&entry.Method,
		&inputJSON,
		&outputJSON,
	); err != nil {
		return ir.ActionEntry{}, fmt.Errorf("scan entry: %w", err)
	}

	var err error
	if entry.Input, err = unmarshalObject(inputJSON); err != nil {
		return ir.ActionEntry{}, fmt.Errorf("entry %d input: %w", entry.Index, err)
	}
	if entry.Output, err = unmarshalObject(outputJSON); err != nil {
		return ir.ActionEntry{}, fmt.Errorf("entry %d output: %w", entry.Index, err)
	}
	return entry, nil
}

// ReadFirings returns the firings of a request ordered by pass, then by
// the position of the first produced entry. Produced is filled from the
// provenance table.
func (s *Store) ReadFirings(ctx context.Context, flowToken string) ([]engine.Firing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.flow_token, f.sync_id, f.trail, f.ordinal, f.binding_hash, f.pass,
		       (SELECT MIN(p.entry_idx) FROM provenance p
		        WHERE p.firing_id = f.id AND p.role = 'produced') AS first_produced
		FROM firings f
		WHERE f.flow_token = ?
		ORDER BY f.pass ASC, first_produced ASC, f.id COLLATE BINARY ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []engine.Firing{}
	for rows.Next() {
		var (
			f             engine.Firing
			trailJSON     string
			firstProduced sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.FlowToken, &f.SyncID, &trailJSON, &f.Ordinal, &f.BindingHash, &f.Pass, &firstProduced); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		if f.Trail, err = unmarshalTrail(trailJSON); err != nil {
			return nil, fmt.Errorf("firing %s: %w", f.ID, err)
		}
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	rows.Close()

	for i := range firings {
		produced, err := s.provenance(ctx, firings[i].ID, RoleProduced)
		if err != nil {
			return nil, err
		}
		firings[i].Produced = produced
	}
	return firings, nil
}

func (s *Store) provenance(ctx context.Context, firingID, role string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_idx FROM provenance
		WHERE firing_id = ? AND role = ?
		ORDER BY entry_idx ASC
	`, firingID, role)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	indices := []int{}
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		indices = append(indices, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provenance: %w", err)
	}
	return indices, nil
}

// ProducedBy returns the firing whose then clause appended entry idx.
// The first entry of a request was appended by the request itself and
// returns ErrNotFound.
func (s *Store) ProducedBy(ctx context.Context, flowToken string, idx int) (engine.Firing, error) {
	firings, err := s.ReadFirings(ctx, flowToken)
	if err != nil {
		return engine.Firing{}, err
	}
	for _, f := range firings {
		for _, p := range f.Produced {
			if p == idx {
				return f, nil
			}
		}
	}
	return engine.Firing{}, fmt.Errorf("entry %d of %s: %w", idx, flowToken, ErrNotFound)
}

// ReadOutcome returns the recorded outcome of a request.
func (s *Store) ReadOutcome(ctx context.Context, flowToken string) (engine.Outcome, error) {
	var (
		o        engine.Outcome
		response sql.NullString
		code     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT flow_token, status, response, error_code, passes, steps
		FROM outcomes
		WHERE flow_token = ?
	`, flowToken).Scan(&o.FlowToken, &o.Status, &response, &code, &o.Passes, &o.Steps)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Outcome{}, fmt.Errorf("outcome of %s: %w", flowToken, ErrNotFound)
	}
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("read outcome: %w", err)
	}

	o.ErrorCode = engine.DispatchErrorCode(code)
	if response.Valid {
		if o.Response, err = unmarshalObject(response.String); err != nil {
			return engine.Outcome{}, fmt.Errorf("outcome of %s: %w", flowToken, err)
		}
	}
	return o, nil
}

// ListFlows returns every recorded request ordered by its first seq.
func (s *Store) ListFlows(ctx context.Context) ([]FlowSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.flow_token, COUNT(*), MIN(e.seq),
		       COALESCE(o.status, ''), COALESCE(o.error_code, '')
		FROM entries e
		LEFT JOIN outcomes o ON o.flow_token = e.flow_token
		GROUP BY e.flow_token
		ORDER BY MIN(e.seq) ASC, e.flow_token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()

	flows := []FlowSummary{}
	for rows.Next() {
		var f FlowSummary
		if err := rows.Scan(&f.FlowToken, &f.Entries, &f.FirstSeq, &f.Status, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}
	return flows, nil
}
