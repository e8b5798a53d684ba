package vm

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender = core.NamedAddress("sender")
	random = core.NamedAddress("random")
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func instantiate(t *testing.T, engine *Engine, owner core.Address, value uint64) core.Address {
	t.Helper()
	msg := []byte(`{"counter_value":` + jsonUint(value) + `}`)
	addr, resp, err := engine.Instantiate("counter", owner, msg)
	require.NoError(t, err)
	require.NotNil(t, resp)
	return addr
}

func jsonUint(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func queryValue(t *testing.T, engine *Engine, contract core.Address) uint64 {
	t.Helper()
	out, err := engine.Query(contract, []byte(`{"value":{}}`))
	require.NoError(t, err)
	var resp struct {
		Value uint64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(out, &resp))
	return resp.Value
}

func attr(t *testing.T, resp *core.Response, key string) string {
	t.Helper()
	v, ok := resp.Attribute(key)
	require.True(t, ok, "missing attribute %s", key)
	return v
}

func TestNewEngineValidatesConfig(t *testing.T) {
	_, err := NewEngine(nil)
	assert.Error(t, err)

	cfg := DefaultConfig(t.TempDir())
	cfg.CodeManagerDir = ""
	_, err = NewEngine(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig(t.TempDir())
	cfg.ContextType = "nope"
	_, err = NewEngine(cfg)
	assert.Error(t, err)
}

func TestInstantiateAndQuery(t *testing.T) {
	engine := newTestEngine(t)

	addr, resp, err := engine.Instantiate("counter", sender, []byte(`{"counter_value":1}`))
	require.NoError(t, err)
	assert.Equal(t, "instantiate", attr(t, resp, "action"))
	assert.Equal(t, sender.String(), attr(t, resp, "owner"))
	assert.Equal(t, uint64(1), queryValue(t, engine, addr))

	out, err := engine.Query(addr, []byte(`{"owner":{}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner":"`+sender.String()+`"}`, string(out))

	inst, err := engine.Instance(addr)
	require.NoError(t, err)
	assert.Equal(t, "counter", inst.Code)
	assert.Equal(t, repository.RuntimeNative, inst.Runtime)
	assert.Equal(t, sender, inst.Creator)
}

func TestIncrement(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, 0)

	resp, err := engine.Execute(addr, sender, []byte(`{"increment":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "increment", attr(t, resp, "action"))
	assert.Equal(t, sender.String(), attr(t, resp, "sender"))
	assert.Equal(t, "1", attr(t, resp, "counter"))
	assert.Equal(t, uint64(1), queryValue(t, engine, addr))
}

func TestDecrement(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, 1)

	resp, err := engine.Execute(addr, sender, []byte(`{"decrement":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "decrement", attr(t, resp, "action"))
	assert.Equal(t, "0", attr(t, resp, "counter"))
	assert.Equal(t, uint64(0), queryValue(t, engine, addr))
}

func TestDecrementClampsAtZero(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, 0)

	resp, err := engine.Execute(addr, random, []byte(`{"decrement":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "0", attr(t, resp, "counter"))
	assert.Equal(t, uint64(0), queryValue(t, engine, addr))
}

func TestIncrementClampsAtMax(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, math.MaxUint64)

	resp, err := engine.Execute(addr, sender, []byte(`{"increment":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551615", attr(t, resp, "counter"))
	assert.Equal(t, uint64(math.MaxUint64), queryValue(t, engine, addr))
}

func TestResetByOwner(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, 0)

	resp, err := engine.Execute(addr, sender, []byte(`{"reset":{"value":5}}`))
	require.NoError(t, err)
	assert.Equal(t, "reset", attr(t, resp, "action"))
	assert.Equal(t, "5", attr(t, resp, "counter"))
	assert.Equal(t, uint64(5), queryValue(t, engine, addr))
}

func TestResetByStranger(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, 0)

	_, err := engine.Execute(addr, random, []byte(`{"reset":{"value":5}}`))
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.Equal(t, uint64(0), queryValue(t, engine, addr))
}

func TestInvalidMessages(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, 3)

	for _, msg := range []string{
		`{}`,
		`{"increment":{},"decrement":{}}`,
		`{"bogus":{}}`,
		`{"reset":{"value":-1}}`,
		`not json`,
	} {
		_, err := engine.Execute(addr, sender, []byte(msg))
		assert.ErrorIs(t, err, core.ErrInvalidMessage, msg)
	}
	_, err := engine.Query(addr, []byte(`{"counter":{}}`))
	assert.ErrorIs(t, err, core.ErrInvalidMessage)

	_, _, err = engine.Instantiate("counter", sender, []byte(`{"counter_value":"x"}`))
	assert.ErrorIs(t, err, core.ErrInvalidMessage)

	assert.Equal(t, uint64(3), queryValue(t, engine, addr))
}

func TestMessageSizeLimit(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.MaxMessageSize = 8
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	defer engine.Close()

	_, _, err = engine.Instantiate("counter", sender, []byte(`{"counter_value":1}`))
	assert.ErrorIs(t, err, core.ErrInvalidMessage)
}

func TestUnknownContractAndCode(t *testing.T) {
	engine := newTestEngine(t)

	_, _, err := engine.Instantiate("missing", sender, []byte(`{}`))
	assert.ErrorIs(t, err, core.ErrContractNotFound)

	_, err = engine.Execute(core.NamedAddress("nowhere"), sender, []byte(`{"increment":{}}`))
	assert.ErrorIs(t, err, core.ErrContractNotFound)

	_, err = engine.Query(core.NamedAddress("nowhere"), []byte(`{"value":{}}`))
	assert.ErrorIs(t, err, core.ErrContractNotFound)
}

func TestInstancesAreIndependent(t *testing.T) {
	engine := newTestEngine(t)
	first := instantiate(t, engine, sender, 10)
	second := instantiate(t, engine, sender, 20)
	assert.NotEqual(t, first, second)

	_, err := engine.Execute(first, sender, []byte(`{"increment":{}}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(11), queryValue(t, engine, first))
	assert.Equal(t, uint64(20), queryValue(t, engine, second))

	list, err := engine.Instances()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestExecuteFunction(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, 0)

	_, err := engine.ExecuteFunction(addr, sender, "Increment", nil)
	require.NoError(t, err)
	_, err = engine.ExecuteFunction(addr, sender, "increment", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), queryValue(t, engine, addr))

	resp, err := engine.ExecuteFunction(addr, sender, "Reset", map[string]any{"value": 7})
	require.NoError(t, err)
	assert.Equal(t, "7", attr(t, resp, "counter"))

	out, err := engine.QueryFunction(addr, "Value", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":7}`, string(out))

	_, err = engine.ExecuteFunction(addr, sender, "Multiply", nil)
	assert.ErrorIs(t, err, core.ErrInvalidMessage)

	_, err = engine.ExecuteFunction(addr, random, "reset", map[string]any{"value": 1})
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestBlocksAdvancePerExecution(t *testing.T) {
	engine := newTestEngine(t)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	addr := instantiate(t, engine, sender, 0)
	ctx := engine.GetContext()
	assert.Equal(t, uint64(1), ctx.BlockHeight())
	assert.Equal(t, fixed.Unix(), ctx.BlockTime())
	assert.Equal(t, sender, ctx.Sender())
	assert.Equal(t, addr, ctx.ContractAddress())

	_, err := engine.Execute(addr, random, []byte(`{"increment":{}}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ctx.BlockHeight())
	assert.Equal(t, random, ctx.Sender())

	queryValue(t, engine, addr)
	assert.Equal(t, uint64(2), ctx.BlockHeight())
}

func TestSchemaAndCodes(t *testing.T) {
	engine := newTestEngine(t)
	assert.Equal(t, []string{"counter"}, engine.Codes())

	schema, err := engine.Schema("counter")
	require.NoError(t, err)
	fn, ok := schema.Lookup("execute", "reset")
	require.True(t, ok)
	require.Len(t, fn.Inputs, 1)
	assert.Equal(t, "value", fn.Inputs[0].Name)

	assert.Error(t, engine.Register(CounterCode()))
	_, err = engine.Schema("missing")
	assert.ErrorIs(t, err, core.ErrContractNotFound)
}

func TestPersistentContexts(t *testing.T) {
	for _, ct := range []string{"db", "kv"} {
		t.Run(ct, func(t *testing.T) {
			dir := t.TempDir()
			cfg := DefaultConfig(dir)
			cfg.ContextType = ct
			cfg.ContextParams = map[string]any{"db_path": filepath.Join(dir, "state."+ct)}

			engine, err := NewEngine(cfg)
			require.NoError(t, err)
			addr := instantiate(t, engine, sender, 41)
			_, err = engine.Execute(addr, sender, []byte(`{"increment":{}}`))
			require.NoError(t, err)
			require.NoError(t, engine.Close())

			reopened, err := NewEngine(cfg)
			require.NoError(t, err)
			defer reopened.Close()
			assert.Equal(t, uint64(42), queryValue(t, reopened, addr))

			events, err := reopened.Events(addr)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, "increment", events[1].Name)
			assert.Equal(t, uint64(2), events[1].BlockHeight)

			// a new instance after reopening gets a fresh address
			other := instantiate(t, reopened, sender, 0)
			assert.NotEqual(t, addr, other)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
context_type: kv
context_params:
  db_path: /tmp/state.db
max_message_size: 1024
log_level: debug
`), 0644))

	cfg, err := LoadConfig(path, dir)
	require.NoError(t, err)
	assert.Equal(t, "kv", cfg.ContextType)
	assert.Equal(t, "/tmp/state.db", cfg.ContextParams["db_path"])
	assert.Equal(t, uint64(1024), cfg.MaxMessageSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DefaultConfig(dir).MaxContractSize, cfg.MaxContractSize)
	assert.Equal(t, filepath.Join(dir, "instances"), cfg.CodeManagerDir)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"), dir)
	assert.Error(t, err)
}

func TestMissingRequiredFields(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, 42)

	for _, msg := range []string{`{"reset":{}}`, `{"reset":{"value":null}}`} {
		_, err := engine.Execute(addr, sender, []byte(msg))
		assert.ErrorIs(t, err, core.ErrInvalidMessage, msg)
	}
	_, err := engine.ExecuteFunction(addr, sender, "reset", nil)
	assert.ErrorIs(t, err, core.ErrInvalidMessage)
	assert.Equal(t, uint64(42), queryValue(t, engine, addr))

	for _, msg := range []string{`{}`, `{"counter_value":null}`} {
		_, _, err := engine.Instantiate("counter", sender, []byte(msg))
		assert.ErrorIs(t, err, core.ErrInvalidMessage, msg)
	}
	list, err := engine.Instances()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRejectedCallsDoNotOpenBlocks(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, 3)
	ctx := engine.GetContext()
	require.Equal(t, uint64(1), ctx.BlockHeight())
	tx := ctx.TransactionHash()

	_, err := engine.Execute(addr, random, []byte(`{"reset":{"value":5}}`))
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	_, err = engine.Execute(addr, sender, []byte(`{"bogus":{}}`))
	assert.ErrorIs(t, err, core.ErrInvalidMessage)
	_, _, err = engine.Instantiate("counter", sender, []byte(`{}`))
	assert.ErrorIs(t, err, core.ErrInvalidMessage)

	assert.Equal(t, uint64(1), ctx.BlockHeight())
	assert.Equal(t, tx, ctx.TransactionHash())

	_, err = engine.Execute(addr, sender, []byte(`{"reset":{"value":5}}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ctx.BlockHeight())
}

func TestEvents(t *testing.T) {
	engine := newTestEngine(t)
	addr := instantiate(t, engine, sender, 0)
	_, err := engine.Execute(addr, random, []byte(`{"increment":{}}`))
	require.NoError(t, err)
	queryValue(t, engine, addr)

	events, err := engine.Events(addr)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "instantiate", events[0].Name)
	assert.Equal(t, uint64(1), events[0].BlockHeight)
	assert.Equal(t, "increment", events[1].Name)
	assert.Equal(t, uint64(2), events[1].BlockHeight)
	assert.Equal(t, addr, events[1].Contract)
	assert.Contains(t, events[1].KeyValues, random.String())

	_, err = engine.Events(core.NamedAddress("nowhere"))
	assert.ErrorIs(t, err, core.ErrContractNotFound)
}
