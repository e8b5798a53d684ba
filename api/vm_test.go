package api

import (
	"testing"

	"github.com/govm-net/counter/core"
	"github.com/stretchr/testify/assert"
)

func TestDefaultContractAddressGenerator(t *testing.T) {
	sender := core.NamedAddress("sender")
	code := []byte("counter")

	a := DefaultContractAddressGenerator(code, sender, 1)
	assert.Equal(t, a, DefaultContractAddressGenerator(code, sender, 1))
	assert.NotEqual(t, a, DefaultContractAddressGenerator(code, sender, 2))
	assert.NotEqual(t, a, DefaultContractAddressGenerator(code, core.NamedAddress("random"), 1))
	assert.NotEqual(t, a, DefaultContractAddressGenerator([]byte("other"), sender, 1))
}

func TestDefaultContractConfig(t *testing.T) {
	cfg := DefaultContractConfig()
	assert.NotZero(t, cfg.MaxMessageSize)
	assert.NotZero(t, cfg.MaxCodeSize)
	assert.NotZero(t, cfg.MaxMemoryPages)
}
