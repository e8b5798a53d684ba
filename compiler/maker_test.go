package compiler

import (
	"testing"

	"github.com/govm-net/counter/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateContract(t *testing.T) {
	config := api.DefaultContractConfig()
	config.MaxCodeSize = 16
	maker := NewMaker(config, "..")

	assert.NoError(t, maker.ValidateContract([]byte("\x00asm\x01\x00\x00\x00")))
	assert.Error(t, maker.ValidateContract([]byte("package main")))
	assert.Error(t, maker.ValidateContract(append([]byte("\x00asm"), make([]byte, 16)...)))
}

func TestCompileCounter(t *testing.T) {
	maker := NewMaker(api.DefaultContractConfig(), "..")
	if !maker.Available() {
		t.Skip("tinygo not installed")
	}

	wasmCode, err := maker.CompileContract(CounterPackage)
	require.NoError(t, err)
	assert.NotEmpty(t, wasmCode)
}

func TestCompileWithoutToolchain(t *testing.T) {
	maker := NewMaker(api.DefaultContractConfig(), "..")
	maker.tinygo = "tinygo-does-not-exist"
	assert.False(t, maker.Available())

	_, err := maker.CompileContract(CounterPackage)
	assert.ErrorIs(t, err, ErrToolchainMissing)
}
