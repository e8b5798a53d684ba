// Package api provides the interfaces for the virtual machine that executes contracts.
// This package defines the API between the chain and the VM, but is not directly used by contracts.
package api

import (
	"encoding/binary"

	"github.com/govm-net/counter/core"
)

// VM represents the virtual machine that hosts contract instances
type VM interface {
	// Instantiate creates a new instance of a registered code
	Instantiate(code string, sender core.Address, msg []byte) (core.Address, *core.Response, error)

	// Execute runs an execute message against an instance
	Execute(contract core.Address, sender core.Address, msg []byte) (*core.Response, error)

	// Query runs a read-only query message against an instance
	Query(contract core.Address, msg []byte) ([]byte, error)
}

// ContractConfig defines limits applied when running contracts
type ContractConfig struct {
	// MaxMessageSize is the largest accepted message in bytes
	MaxMessageSize uint64

	// MaxCodeSize is the maximum size of WASM contract code in bytes
	MaxCodeSize uint64

	// MaxMemoryPages caps the linear memory of a WASM instance (64 KiB pages)
	MaxMemoryPages uint32
}

// DefaultContractConfig returns a default configuration for contracts
func DefaultContractConfig() ContractConfig {
	return ContractConfig{
		MaxMessageSize: 64 * 1024,
		MaxCodeSize:    4 * 1024 * 1024, // 4MB, TinyGo output with encoding/json
		MaxMemoryPages: 256,             // 16MB
	}
}

// ContractAddressGenerator derives the address of a new instance.
type ContractAddressGenerator func(code []byte, sender core.Address, nonce uint64) core.Address

// DefaultContractAddressGenerator hashes code, creator and nonce, so the
// same creator instantiating the same code twice gets distinct addresses.
var DefaultContractAddressGenerator ContractAddressGenerator = func(code []byte, sender core.Address, nonce uint64) core.Address {
	data := make([]byte, 0, len(code)+len(sender)+8)
	data = append(data, code...)
	data = append(data, sender[:]...)
	data = binary.BigEndian.AppendUint64(data, nonce)
	return core.DeriveAddress(data)
}
