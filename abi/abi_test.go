package abi

import (
	"testing"

	"github.com/govm-net/counter/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testInit struct {
	Start uint64 `json:"start"`
}

type testSet struct {
	Value uint64 `json:"value"`
}

type testExec struct {
	Bump     *struct{} `json:"bump,omitempty"`
	SetValue *testSet  `json:"set_value,omitempty"`
}

type testResp struct {
	Value uint64 `json:"value"`
}

type testQuery struct {
	Current *struct{} `json:"current,omitempty"`
}

func testABI() *ABI {
	return FromMessages("test", testInit{}, testExec{}, testQuery{}, map[string]any{"current": testResp{}})
}

func TestFromMessages(t *testing.T) {
	a := testABI()
	assert.Equal(t, "test", a.Contract)
	require.Len(t, a.Functions, 4)

	fn, ok := a.Lookup(KindInstantiate, "instantiate")
	require.True(t, ok)
	assert.Equal(t, []Param{{Name: "start", Type: "uint64"}}, fn.Inputs)

	fn, ok = a.Lookup(KindExecute, "bump")
	require.True(t, ok)
	assert.Empty(t, fn.Inputs)

	fn, ok = a.Lookup(KindExecute, "SetValue")
	require.True(t, ok)
	assert.Equal(t, "set_value", fn.Name)
	assert.Equal(t, []Param{{Name: "value", Type: "uint64"}}, fn.Inputs)

	fn, ok = a.Lookup(KindQuery, "Current")
	require.True(t, ok)
	assert.Equal(t, "abi.testResp", fn.Output)

	_, ok = a.Lookup(KindQuery, "bump")
	assert.False(t, ok)
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "increment", CanonicalName("Increment"))
	assert.Equal(t, "increment", CanonicalName(" increment "))
	assert.Equal(t, "reset_counter", CanonicalName("ResetCounter"))
	assert.Equal(t, "reset_counter", CanonicalName("reset-counter"))
	assert.Equal(t, "Reset Counter", DisplayName("reset_counter"))
}

func TestBuildMessage(t *testing.T) {
	a := testABI()

	msg, err := a.BuildMessage(KindExecute, "Bump", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bump":{}}`, string(msg))

	msg, err = a.BuildMessage(KindExecute, "set_value", map[string]any{"value": 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"set_value":{"value":5}}`, string(msg))

	msg, err = a.BuildMessage(KindInstantiate, "", map[string]any{"start": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":3}`, string(msg))

	_, err = a.BuildMessage(KindExecute, "set_value", map[string]any{"bogus": 1})
	assert.ErrorIs(t, err, core.ErrInvalidMessage)

	_, err = a.BuildMessage(KindExecute, "missing", nil)
	assert.ErrorIs(t, err, core.ErrInvalidMessage)

	_, err = a.BuildMessage(KindExecute, "set_value", nil)
	assert.ErrorIs(t, err, core.ErrInvalidMessage)

	_, err = a.BuildMessage(KindExecute, "set_value", map[string]any{"value": nil})
	assert.ErrorIs(t, err, core.ErrInvalidMessage)

	_, err = a.BuildMessage(KindInstantiate, "", map[string]any{})
	assert.ErrorIs(t, err, core.ErrInvalidMessage)
}
