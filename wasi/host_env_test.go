package wasi

import (
	"encoding/json"
	"testing"

	"github.com/govm-net/counter/context/memory"
	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hostContract = core.NamedAddress("counter-wasm")
	hostSender   = core.NamedAddress("sender")
)

func newHostEnv(t *testing.T, readOnly bool) (*hostEnv, types.BlockchainContext) {
	t.Helper()
	ctx, err := memory.NewBlockchainContext(nil)
	require.NoError(t, err)
	_, err = ctx.CreateObjectWithID(hostContract, types.DefaultObjectID(hostContract))
	require.NoError(t, err)
	return &hostEnv{
		ctx: ctx,
		inv: Invocation{Contract: hostContract, Sender: hostSender, ReadOnly: readOnly},
	}, ctx
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func setField(t *testing.T, h *hostEnv, id types.ObjectID, field, value string) int32 {
	t.Helper()
	return h.handleHostSet(uint32(types.FuncSetObjectField), mustJSON(t, types.SetObjectFieldParams{
		ID:    id,
		Field: field,
		Value: json.RawMessage(value),
	}))
}

func getField(t *testing.T, h *hostEnv, field string) ([]byte, int32) {
	t.Helper()
	return h.handleHostGetBuffer(uint32(types.FuncGetObjectField), mustJSON(t, types.GetObjectFieldParams{Field: field}))
}

func TestHostFieldRoundTrip(t *testing.T) {
	h, ctx := newHostEnv(t, false)

	// the zero ID addresses the default object
	assert.Equal(t, int32(0), setField(t, h, core.ZeroObjectID, "counter", "18446744073709551615"))
	data, code := getField(t, h, "counter")
	require.Equal(t, int32(0), code)
	assert.Equal(t, "18446744073709551615", string(data))

	obj, err := ctx.GetObject(hostContract, types.DefaultObjectID(hostContract))
	require.NoError(t, err)
	stored, err := obj.Get(hostContract, "counter")
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551615", string(stored))

	assert.Equal(t, int32(0), setField(t, h, types.DefaultObjectID(hostContract), "owner", `"ab"`))
	data, code = getField(t, h, "owner")
	require.Equal(t, int32(0), code)
	assert.Equal(t, `"ab"`, string(data))
}

func TestHostFieldNotFound(t *testing.T) {
	h, _ := newHostEnv(t, false)

	data, code := getField(t, h, "missing")
	assert.Equal(t, int32(-3), code)
	assert.Nil(t, data)

	_, code = h.handleHostGetBuffer(uint32(types.FuncGetObjectField), mustJSON(t, types.GetObjectFieldParams{
		ID:    core.ObjectID{9},
		Field: "counter",
	}))
	assert.Equal(t, int32(-1), code)

	_, code = h.handleHostGetBuffer(uint32(types.FuncGetObjectField), []byte("not json"))
	assert.Equal(t, int32(-1), code)
}

func TestHostReadOnlyRejectsWrites(t *testing.T) {
	h, ctx := newHostEnv(t, true)

	assert.Equal(t, int32(-2), setField(t, h, core.ZeroObjectID, "counter", "1"))
	_, code := getField(t, h, "counter")
	assert.Equal(t, int32(-3), code)

	logArgs := mustJSON(t, types.LogParams{Event: "increment", KeyValues: []any{"counter", "1"}})
	assert.Equal(t, int32(0), h.handleHostSet(uint32(types.FuncLog), logArgs))
	events, err := ctx.Events(hostContract)
	require.NoError(t, err)
	assert.Empty(t, events)

	h.inv.ReadOnly = false
	assert.Equal(t, int32(0), h.handleHostSet(uint32(types.FuncLog), logArgs))
	events, err = ctx.Events(hostContract)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "increment", events[0].Name)
	assert.Equal(t, []any{"counter", "1"}, events[0].KeyValues)
}

// foreignOwned reports a different owner for every object.
type foreignOwned struct {
	types.BlockchainContext
	owner core.Address
}

func (c foreignOwned) GetObject(contract core.Address, id core.ObjectID) (types.VMObject, error) {
	obj, err := c.BlockchainContext.GetObject(contract, id)
	if err != nil {
		return nil, err
	}
	return foreignObject{VMObject: obj, owner: c.owner}, nil
}

type foreignObject struct {
	types.VMObject
	owner core.Address
}

func (o foreignObject) Owner() core.Address { return o.owner }

func TestHostOwnerMismatch(t *testing.T) {
	h, ctx := newHostEnv(t, false)
	stranger := core.NamedAddress("random")
	h.ctx = foreignOwned{BlockchainContext: ctx, owner: stranger}

	assert.Equal(t, int32(-1), setField(t, h, core.ZeroObjectID, "counter", "1"))
	_, code := getField(t, h, "counter")
	assert.Equal(t, int32(-3), code)

	id := types.DefaultObjectID(hostContract)
	owner, code := h.handleHostGetBuffer(uint32(types.FuncGetObjectOwner), id[:])
	require.Equal(t, int32(0), code)
	assert.Equal(t, stranger[:], owner)
}

func TestHostGetBuffer(t *testing.T) {
	h, _ := newHostEnv(t, false)

	data, code := h.handleHostGetBuffer(uint32(types.FuncGetSender), nil)
	require.Equal(t, int32(0), code)
	assert.Equal(t, hostSender[:], data)

	data, code = h.handleHostGetBuffer(uint32(types.FuncGetContractAddress), nil)
	require.Equal(t, int32(0), code)
	assert.Equal(t, hostContract[:], data)

	defaultID := types.DefaultObjectID(hostContract)
	data, code = h.handleHostGetBuffer(uint32(types.FuncGetObject), mustJSON(t, types.GetObjectParams{}))
	require.Equal(t, int32(0), code)
	assert.Equal(t, defaultID[:], data)

	_, code = h.handleHostGetBuffer(uint32(types.FuncGetObject), mustJSON(t, types.GetObjectParams{ID: core.ObjectID{7}}))
	assert.Equal(t, int32(-1), code)

	zero := core.ZeroObjectID
	data, code = h.handleHostGetBuffer(uint32(types.FuncGetObjectOwner), zero[:])
	require.Equal(t, int32(0), code)
	assert.Equal(t, hostContract[:], data)

	_, code = h.handleHostGetBuffer(uint32(types.FuncGetObjectOwner), []byte{1, 2})
	assert.Equal(t, int32(-1), code)

	_, code = h.handleHostGetBuffer(99, nil)
	assert.Equal(t, int32(-1), code)
	assert.Equal(t, int32(-1), h.handleHostSet(99, nil))
}
