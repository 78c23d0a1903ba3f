package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/syncframe/internal/ir"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testEntry builds an entry with empty payloads.
func testEntry(flow string, idx int, seq int64, ref string) ir.ActionEntry {
	concept, method, _ := ir.SplitActionRef(ref)
	return ir.ActionEntry{
		Index:     idx,
		Seq:       seq,
		FlowToken: flow,
		Concept:   concept,
		Method:    method,
		Input:     ir.IRObject{},
		Output:    ir.IRObject{},
	}
}
