package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/govm-net/counter/vm"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dataDir = t.TempDir()
	configFile = ""

	contextType = "kv"
	cfg, err := loadConfig(&cobra.Command{})
	require.NoError(t, err)
	assert.Equal(t, "kv", cfg.ContextType)
	assert.Equal(t, filepath.Join(dataDir, "state.kv"), cfg.ContextParams["db_path"])
	assert.Equal(t, filepath.Join(dataDir, "instances"), cfg.CodeManagerDir)

	contextType = "memory"
	cfg, err = loadConfig(&cobra.Command{})
	require.NoError(t, err)
	assert.NotContains(t, cfg.ContextParams, "db_path")

	configFile = filepath.Join(dataDir, "counter.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("context_type: db\nlog_level: debug\n"), 0644))
	defer func() { configFile = "" }()
	cfg, err = loadConfig(&cobra.Command{})
	require.NoError(t, err)
	assert.Equal(t, "db", cfg.ContextType)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, filepath.Join(dataDir, "state.db"), cfg.ContextParams["db_path"])

	// a file without context_type keeps the --context default
	contextType = "kv"
	require.NoError(t, os.WriteFile(configFile, []byte("log_level: warn\n"), 0644))
	cfg, err = loadConfig(&cobra.Command{})
	require.NoError(t, err)
	assert.Equal(t, "kv", cfg.ContextType)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, filepath.Join(dataDir, "state.kv"), cfg.ContextParams["db_path"])
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging(""))
	assert.NoError(t, setupLogging("warn"))
	assert.Error(t, setupLogging("loud"))
}

func TestCommandsPersistState(t *testing.T) {
	dir := t.TempDir()
	run := func(args ...string) error {
		rootCmd.SetArgs(append(args, "--data-dir", dir, "--context", "kv"))
		return rootCmd.Execute()
	}
	open := func() *vm.Engine {
		cfg := vm.DefaultConfig(dir)
		cfg.ContextType = "kv"
		cfg.ContextParams["db_path"] = filepath.Join(dir, "state.kv")
		engine, err := vm.NewEngine(cfg)
		require.NoError(t, err)
		return engine
	}

	require.NoError(t, run("instantiate", "--sender", "alice", "--value", "3"))

	engine := open()
	list, err := engine.Instances()
	require.NoError(t, err)
	require.Len(t, list, 1)
	addr := list[0].Address.String()
	require.NoError(t, engine.Close())

	require.NoError(t, run("execute", addr, "increment", "--sender", "alice"))
	assert.Error(t, run("execute", addr, "reset", "10", "--sender", "bob"))
	assert.Error(t, run("execute", addr, "reset", "ten", "--sender", "alice"))
	assert.Error(t, run("execute", addr, "reset", "--sender", "alice"))
	require.NoError(t, run("query", addr, "owner"))
	require.NoError(t, run("instances"))
	require.NoError(t, run("schema", "--json"))
	require.NoError(t, run("events", addr))

	engine = open()
	defer engine.Close()
	out, err := engine.Query(list[0].Address, []byte(`{"value":{}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":4}`, string(out))

	events, err := engine.Events(list[0].Address)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "instantiate", events[0].Name)
	assert.Equal(t, "increment", events[1].Name)
}
