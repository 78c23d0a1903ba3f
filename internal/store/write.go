package store

import (
	"context"
	"fmt"

	"github.com/roach88/syncframe/internal/engine"
	"github.com/roach88/syncframe/internal/ir"
)

// Provenance roles.
const (
	RoleMatched  = "matched"
	RoleProduced = "produced"
)

// RecordEntry inserts an action log entry.
// Uses ON CONFLICT DO NOTHING for idempotency: the row is keyed by its
// content hash and by (flow_token, idx), so a re-recorded entry is ignored.
func (s *Store) RecordEntry(ctx context.Context, entry ir.ActionEntry) error {
	id, err := ir.EntryID(entry)
	if err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	inputJSON, err := marshalObject(entry.Input)
	if err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	outputJSON, err := marshalObject(entry.Output)
	if err != nil {
		return fmt.Errorf("record entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries
		(id, flow_token, idx, seq, concept, method, input, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		id,
		entry.FlowToken,
		entry.Index,
		entry.Seq,
		entry.Concept,
		entry.Method,
		inputJSON,
		outputJSON,
	)
	if err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	return nil
}

// RecordFiring inserts a firing and its provenance edges.
func (s *Store) RecordFiring(ctx context.Context, f engine.Firing) error {
	_, err := s.WriteFiring(ctx, f)
	return err
}

// WriteFiring inserts a firing and its provenance edges in one transaction.
//
// Returns inserted=true if a new row was created, false if the firing
// already existed (same flow, sync, trail and ordinal). Provenance is only
// written for new firings.
func (s *Store) WriteFiring(ctx context.Context, f engine.Firing) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write firing: begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO firings
		(id, flow_token, sync_id, trail, ordinal, binding_hash, pass)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		f.ID,
		f.FlowToken,
		f.SyncID,
		marshalTrail(f.Trail),
		f.Ordinal,
		f.BindingHash,
		f.Pass,
	)
	if err != nil {
		return false, fmt.Errorf("write firing: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write firing: rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	edges := []struct {
		role    string
		indices []int
	}{
		{RoleMatched, f.Trail},
		{RoleProduced, f.Produced},
	}
	for _, edge := range edges {
		for _, idx := range edge.indices {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO provenance (firing_id, role, entry_idx)
				VALUES (?, ?, ?)
				ON CONFLICT DO NOTHING
			`, f.ID, edge.role, idx); err != nil {
				return false, fmt.Errorf("write provenance: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write firing: commit: %w", err)
	}
	return true, nil
}

// RecordOutcome stores the terminal result of a request. The first outcome
// for a flow wins.
func (s *Store) RecordOutcome(ctx context.Context, o engine.Outcome) error {
	var response any
	if o.Response != nil {
		data, err := marshalObject(o.Response)
		if err != nil {
			return fmt.Errorf("record outcome: %w", err)
		}
		response = data
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes
		(flow_token, status, response, error_code, passes, steps)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(flow_token) DO NOTHING
	`,
		o.FlowToken,
		o.Status,
		response,
		string(o.ErrorCode),
		o.Passes,
		o.Steps,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}
