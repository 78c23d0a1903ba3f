package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncframe/internal/engine"
	"github.com/roach88/syncframe/internal/ir"
)

var _ engine.FlowTokenGenerator = (*FixedFlowGenerator)(nil)

func TestFixedFlowGenerator(t *testing.T) {
	gen := NewFixedFlowGenerator("test-flow-123")
	for i := 0; i < 3; i++ {
		assert.Equal(t, "test-flow-123", gen.Generate())
	}

	assert.Equal(t, DefaultFlowToken, NewFixedFlowGenerator("").Generate())
}

func TestFixedFlowGenerator_BindsRequestEntry(t *testing.T) {
	e, err := engine.New(nil, []engine.Rule{}, engine.WithFlowGenerator(NewFixedFlowGenerator("flow-pets")))
	require.NoError(t, err)

	resp, err := e.Handle(context.Background(), ir.IRObject{"path": ir.IRString("/pets")})
	require.Error(t, err)

	var de *engine.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "flow-pets", de.FlowToken)

	require.Len(t, resp.Log, 1)
	assert.Equal(t, "flow-pets", resp.Log[0].FlowToken)
	assert.Equal(t, ir.IRObject{"request": ir.IRString("flow-pets")}, resp.Log[0].Output)
}
