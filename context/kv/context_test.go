package kv

import (
	"path/filepath"
	"testing"

	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Context {
	ctx, err := NewContext(map[string]any{
		"db_path": filepath.Join(t.TempDir(), "state.bolt"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx.Close()
	})
	return ctx.(*Context)
}

func TestKeys(t *testing.T) {
	contract := core.NamedAddress("contract")
	id := types.DefaultObjectID(contract)

	key := FieldKey(contract, id, "counter")
	assert.Equal(t, byte('f'), key[0])
	assert.Equal(t, contract[:], key[1:1+20])
	assert.Equal(t, "counter", string(key[1+20+32:]))

	assert.Len(t, ObjectKey(contract, id), 1+20+32)

	// sequence numbers sort in emission order
	assert.Less(t, string(EventKey(contract, 2)), string(EventKey(contract, 10)))
}

func TestChainInfoSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bolt")
	sender := core.NamedAddress("sender")
	contract := core.NamedAddress("contract")

	ctx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, ctx.SetBlockInfo(9, 90, core.HashFromString("0x09")))
	require.NoError(t, ctx.SetTransactionInfo(core.HashFromString("0xaa"), sender, contract, 0))
	require.NoError(t, ctx.Close())

	ctx, err = Open(path)
	require.NoError(t, err)
	defer ctx.Close()
	assert.Equal(t, uint64(9), ctx.BlockHeight())
	assert.Equal(t, int64(90), ctx.BlockTime())
	assert.Equal(t, sender, ctx.Sender())
	assert.Equal(t, contract, ctx.ContractAddress())
	assert.Equal(t, core.HashFromString("0xaa"), ctx.TransactionHash())
}

func TestObjectOperations(t *testing.T) {
	ctx := setupTestDB(t)

	contract := core.NamedAddress("contract")
	id := types.DefaultObjectID(contract)

	_, err := ctx.GetObject(contract, id)
	assert.ErrorIs(t, err, core.ErrObjectNotFound)

	obj, err := ctx.CreateObjectWithID(contract, id)
	require.NoError(t, err)

	_, err = ctx.CreateObjectWithID(contract, id)
	assert.ErrorIs(t, err, core.ErrStorage)

	_, err = obj.Get(contract, "counter")
	assert.ErrorIs(t, err, core.ErrFieldNotFound)

	require.NoError(t, obj.Set(contract, contract, "counter", []byte("5")))

	obj2, err := ctx.GetObject(contract, id)
	require.NoError(t, err)
	assert.Equal(t, contract, obj2.Owner())
	assert.Equal(t, contract, obj2.Contract())
	value, err := obj2.Get(contract, "counter")
	require.NoError(t, err)
	assert.Equal(t, []byte("5"), value)

	other := core.NamedAddress("other")
	assert.Error(t, obj.Set(other, other, "counter", []byte("1")))
	_, err = obj.Get(other, "counter")
	assert.Error(t, err)
}

func TestEvents(t *testing.T) {
	ctx := setupTestDB(t)

	contract := core.NamedAddress("contract")
	require.NoError(t, ctx.SetBlockInfo(4, 40, core.HashFromString("0x04")))

	ctx.Log(contract, "increment", "counter", "1")
	ctx.Log(core.NamedAddress("other"), "noise")
	ctx.Log(contract, "decrement", "counter", "0")

	events, err := ctx.Events(contract)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "increment", events[0].Name)
	assert.Equal(t, "decrement", events[1].Name)
	assert.Equal(t, uint64(4), events[1].BlockHeight)
	assert.Equal(t, []any{"counter", "0"}, events[1].KeyValues)
}
