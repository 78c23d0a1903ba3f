package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncframe/internal/ir"
)

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	fn := func(context.Context, ir.IRObject) (ir.IRObject, error) { return ir.IRObject{}, nil }

	require.NoError(t, reg.Register("Pets", "create", fn))
	assert.ErrorContains(t, reg.Register("Pets", "create", fn), "already registered")
	assert.ErrorContains(t, reg.Register("Requesting", "respond", fn), "reserved")
	assert.ErrorContains(t, reg.Register("Pets", "", fn), "required")
	assert.ErrorContains(t, reg.Register("Pets", "delete", nil), "nil action")

	_, ok := reg.Lookup("Pets.create")
	assert.True(t, ok)
	assert.Equal(t, []string{"Pets.create", "Requesting.respond"}, reg.Refs())
}

func TestRegistry_BuiltinRespond(t *testing.T) {
	fn, ok := NewRegistry().Lookup("Requesting.respond")
	require.True(t, ok)

	out, err := fn(context.Background(), ir.IRObject{"request": ir.IRString("flow-1"), "ok": ir.IRBool(true)})
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"request": ir.IRString("flow-1")}, out)

	out, err = fn(context.Background(), ir.IRObject{})
	require.NoError(t, err)
	assert.Contains(t, out, "error")
}
