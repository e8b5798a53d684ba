package memory

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/govm-net/counter/context"
	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/types"
)

// defaultBlockchainContext keeps all state in process memory.
type defaultBlockchainContext struct {
	// Block information
	blockHeight uint64
	blockTime   int64
	blockHash   core.Hash

	// Virtual machine object storage
	objects        map[core.ObjectID]map[string][]byte
	objectOwner    map[core.ObjectID]core.Address
	objectContract map[core.ObjectID]core.Address

	// Current execution context
	contractAddr core.Address
	sender       core.Address
	txHash       core.Hash
	events       []types.Event
	mu           sync.Mutex
}

func init() {
	context.Register(context.MemoryContextType, NewBlockchainContext)
}

// NewBlockchainContext creates an empty in-memory blockchain context. params is unused.
func NewBlockchainContext(params map[string]any) (types.BlockchainContext, error) {
	return newContext(), nil
}

func newContext() *defaultBlockchainContext {
	return &defaultBlockchainContext{
		objects:        make(map[core.ObjectID]map[string][]byte),
		objectOwner:    make(map[core.ObjectID]core.Address),
		objectContract: make(map[core.ObjectID]core.Address),
	}
}

func (ctx *defaultBlockchainContext) SetBlockInfo(height uint64, time int64, hash core.Hash) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.blockHeight = height
	ctx.blockTime = time
	ctx.blockHash = hash
	return nil
}

func (ctx *defaultBlockchainContext) SetTransactionInfo(hash core.Hash, from core.Address, to core.Address, value uint64) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.txHash = hash
	ctx.sender = from
	ctx.contractAddr = to
	return nil
}

// BlockHeight gets the current block height
func (ctx *defaultBlockchainContext) BlockHeight() uint64 {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.blockHeight
}

// BlockTime gets the current block timestamp
func (ctx *defaultBlockchainContext) BlockTime() int64 {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.blockTime
}

// ContractAddress gets the current contract address
func (ctx *defaultBlockchainContext) ContractAddress() core.Address {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.contractAddr
}

// TransactionHash gets the current transaction hash
func (ctx *defaultBlockchainContext) TransactionHash() core.Hash {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.txHash
}

// Sender gets the transaction sender
func (ctx *defaultBlockchainContext) Sender() core.Address {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.sender
}

// CreateObjectWithID creates a contract-owned object
func (ctx *defaultBlockchainContext) CreateObjectWithID(contract core.Address, id core.ObjectID) (types.VMObject, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if _, exists := ctx.objects[id]; exists {
		return nil, fmt.Errorf("object %s already exists", id)
	}
	ctx.objects[id] = make(map[string][]byte)
	ctx.objectOwner[id] = contract
	ctx.objectContract[id] = contract

	return &vmObject{
		ctx:         ctx,
		objOwner:    contract,
		objContract: contract,
		id:          id,
	}, nil
}

// GetObject gets a specified object
func (ctx *defaultBlockchainContext) GetObject(contract core.Address, id core.ObjectID) (types.VMObject, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if _, exists := ctx.objects[id]; !exists || ctx.objectContract[id] != contract {
		return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, id)
	}

	return &vmObject{
		ctx:         ctx,
		objOwner:    ctx.objectOwner[id],
		objContract: ctx.objectContract[id],
		id:          id,
	}, nil
}

// Log records events
func (ctx *defaultBlockchainContext) Log(contract core.Address, eventName string, keyValues ...any) {
	ctx.mu.Lock()
	ctx.events = append(ctx.events, types.Event{
		BlockHeight: ctx.blockHeight,
		TxHash:      ctx.txHash,
		Contract:    contract,
		Name:        eventName,
		KeyValues:   keyValues,
	})
	ctx.mu.Unlock()

	params := []any{
		"contract", contract,
		"event", eventName,
	}
	params = append(params, keyValues...)
	slog.Info("Contract log", params...)
}

func (ctx *defaultBlockchainContext) Events(contract core.Address) ([]types.Event, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	var events []types.Event
	for _, event := range ctx.events {
		if event.Contract == contract {
			events = append(events, event)
		}
	}
	return events, nil
}

func (ctx *defaultBlockchainContext) Close() error {
	return nil
}

// vmObject implements the object interface
type vmObject struct {
	ctx         *defaultBlockchainContext
	objOwner    core.Address
	objContract core.Address
	id          core.ObjectID
}

// ID gets the object ID
func (o *vmObject) ID() core.ObjectID {
	return o.id
}

// Owner gets the object owner
func (o *vmObject) Owner() core.Address {
	return o.objOwner
}

// Contract gets the object's contract
func (o *vmObject) Contract() core.Address {
	return o.objContract
}

// Get gets the field value
func (o *vmObject) Get(contract core.Address, field string) ([]byte, error) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if contract != o.objContract {
		return nil, fmt.Errorf("invalid contract")
	}
	fields, exists := o.ctx.objects[o.id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, o.id)
	}
	value, exists := fields[field]
	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrFieldNotFound, field)
	}
	return append([]byte(nil), value...), nil
}

// Set sets the field value
func (o *vmObject) Set(contract core.Address, sender core.Address, field string, value []byte) error {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if contract != o.objContract {
		return fmt.Errorf("invalid contract")
	}
	if sender != o.objOwner && contract != o.objOwner {
		return fmt.Errorf("not owner")
	}
	fields, exists := o.ctx.objects[o.id]
	if !exists {
		return fmt.Errorf("%w: %s", core.ErrObjectNotFound, o.id)
	}
	fields[field] = append([]byte(nil), value...)
	return nil
}
