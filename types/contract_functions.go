// Package types contains shared type definitions and constants
// used by both the host environment and WebAssembly contracts
package types

import (
	"encoding/json"

	"github.com/govm-net/counter/core"
)

// WasmFunctionID identifies a host function called through
// call_host_set / call_host_get_buffer.
//
// Host and guest must import these constants rather than redefining the
// numbers; a mismatch silently routes a call to the wrong handler.
type WasmFunctionID int32

const (
	// FuncGetSender returns the address of the caller of the current invocation
	FuncGetSender WasmFunctionID = 1
	// FuncGetContractAddress returns the address of the current contract
	FuncGetContractAddress WasmFunctionID = 2
	// FuncGetObject checks that a state object exists and returns its ID
	FuncGetObject WasmFunctionID = 6
	// FuncLog logs a message to the chain's event system
	FuncLog WasmFunctionID = 9
	// FuncGetObjectOwner gets the owner of a state object
	FuncGetObjectOwner WasmFunctionID = 10
	// FuncGetObjectField retrieves a specific field from a state object
	FuncGetObjectField WasmFunctionID = 12
	// FuncSetObjectField updates a specific field in a state object
	FuncSetObjectField WasmFunctionID = 13
)

// HostBufferSize is the size of the guest buffer used for host → guest data.
const HostBufferSize int32 = 2048

type Address = core.Address
type ObjectID = core.ObjectID
type Hash = core.Hash

// DefaultObjectID is the ID of a contract's default state object: the
// contract address left-aligned in an ObjectID.
func DefaultObjectID(contract Address) ObjectID {
	var id ObjectID
	copy(id[:], contract[:])
	return id
}

type GetObjectParams struct {
	Contract Address  `json:"contract,omitempty"`
	ID       ObjectID `json:"id,omitempty"`
}

type GetObjectFieldParams struct {
	Contract Address  `json:"contract,omitempty"`
	ID       ObjectID `json:"id,omitempty"`
	Field    string   `json:"field,omitempty"`
}

type SetObjectFieldParams struct {
	Contract Address         `json:"contract,omitempty"`
	Sender   Address         `json:"sender,omitempty"`
	ID       ObjectID        `json:"id,omitempty"`
	Field    string          `json:"field,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

type LogParams struct {
	Contract  Address `json:"contract,omitempty"`
	Event     string  `json:"event,omitempty"`
	KeyValues []any   `json:"key_values,omitempty"`
}

// Entry points carried in HandleContractCallParams.Function.
const (
	EntryInstantiate = "instantiate"
	EntryExecute     = "execute"
	EntryQuery       = "query"
)

type HandleContractCallParams struct {
	Contract Address `json:"contract,omitempty"`
	Sender   Address `json:"sender,omitempty"`
	Function string  `json:"function,omitempty"`
	Args     []byte  `json:"args,omitempty"`
}

type ExecutionResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BlockchainContext is the host side of core.Context: the storage and
// chain state a contract invocation runs against.
type BlockchainContext interface {
	// set block info and transaction info
	SetBlockInfo(height uint64, time int64, hash Hash) error
	SetTransactionInfo(hash Hash, from Address, to Address, value uint64) error

	BlockHeight() uint64      // Get current block height
	BlockTime() int64         // Get current block timestamp
	ContractAddress() Address // Get current contract address
	TransactionHash() Hash    // Get current transaction hash
	Sender() Address          // Get transaction sender

	CreateObjectWithID(contract Address, id ObjectID) (VMObject, error) // Create object with a fixed ID
	GetObject(contract Address, id ObjectID) (VMObject, error)          // Get specified object

	// Logs and events
	Log(contract Address, eventName string, keyValues ...any)
	Events(contract Address) ([]Event, error) // Events emitted by contract, oldest first

	// Close releases the underlying storage
	Close() error
}

// Event is a contract event as recorded by a BlockchainContext.
type Event struct {
	BlockHeight uint64  `json:"block_height"`
	TxHash      Hash    `json:"tx_hash"`
	Contract    Address `json:"contract"`
	Name        string  `json:"name"`
	KeyValues   []any   `json:"key_values"`
}

// VMObject is the host side of core.Object. Values are stored as opaque
// bytes; encoding is the caller's concern.
type VMObject interface {
	ID() ObjectID      // Get object ID
	Owner() Address    // Get object owner
	Contract() Address // Get object's contract

	// Field operations
	Get(contract Address, field string) ([]byte, error)             // Get field value
	Set(contract, sender Address, field string, value []byte) error // Set field value
}
