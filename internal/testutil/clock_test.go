package testutil

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncframe/internal/engine"
	"github.com/roach88/syncframe/internal/ir"
)

var _ engine.Sequencer = (*DeterministicClock)(nil)

func TestDeterministicClock(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Current())

	for want := int64(1); want <= 3; want++ {
		assert.Equal(t, want, clock.Next())
	}
	assert.Equal(t, int64(3), clock.Current())

	clock.Reset()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next())
}

func TestDeterministicClock_StampsEngineEntries(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Next()
	clock.Next()

	e, err := engine.New(nil, []engine.Rule{}, engine.WithClock(clock),
		engine.WithFlowGenerator(NewFixedFlowGenerator("")))
	require.NoError(t, err)

	resp, err := e.Handle(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, engine.IsNoResponse(err))
	require.Len(t, resp.Log, 1)
	assert.Equal(t, int64(3), resp.Log[0].Seq)
	assert.Equal(t, DefaultFlowToken, resp.FlowToken)

	clock.Reset()
	assert.Equal(t, int64(1), clock.Next())
}

// Concurrent requests share the clock, so every entry gets a distinct seq.
func TestDeterministicClock_SharedAcrossRequests(t *testing.T) {
	clock := NewDeterministicClock()
	e, err := engine.New(nil, []engine.Rule{}, engine.WithClock(clock))
	require.NoError(t, err)

	const requests = 50
	batch := make([]ir.IRObject, requests)
	for i := range batch {
		batch[i] = ir.IRObject{"n": ir.IRInt(i)}
	}

	var seqs []int64
	for _, r := range e.HandleAll(context.Background(), batch) {
		require.Len(t, r.Response.Log, 1)
		seqs = append(seqs, r.Response.Log[0].Seq)
	}

	slices.Sort(seqs)
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}
	assert.Equal(t, int64(requests), clock.Current())
}
