package vm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/types"
)

// ErrReadOnly is returned when a query tries to write state.
var ErrReadOnly = errors.New("state is read-only during query")

// ExecutionContext implements core.Context for a single invocation of a
// contract on top of the engine's blockchain context.
type ExecutionContext struct {
	ctx      types.BlockchainContext
	contract core.Address
	sender   core.Address
	readOnly bool
}

var _ core.Context = (*ExecutionContext)(nil)

// NewExecutionContext binds ctx to one contract and caller.
func NewExecutionContext(ctx types.BlockchainContext, contract, sender core.Address) *ExecutionContext {
	return &ExecutionContext{
		ctx:      ctx,
		contract: contract,
		sender:   sender,
	}
}

// newReadOnlyContext returns a context that rejects writes and drops logs.
func newReadOnlyContext(ctx types.BlockchainContext, contract, sender core.Address) *ExecutionContext {
	ec := NewExecutionContext(ctx, contract, sender)
	ec.readOnly = true
	return ec
}

func newQueryContext(ctx types.BlockchainContext, contract core.Address) *ExecutionContext {
	return newReadOnlyContext(ctx, contract, core.ZeroAddress)
}

func (c *ExecutionContext) BlockHeight() uint64 {
	return c.ctx.BlockHeight()
}

func (c *ExecutionContext) BlockTime() int64 {
	return c.ctx.BlockTime()
}

func (c *ExecutionContext) ContractAddress() core.Address {
	return c.contract
}

func (c *ExecutionContext) Sender() core.Address {
	return c.sender
}

// GetObject loads a state object of the bound contract. The zero ID is the
// contract's default object.
func (c *ExecutionContext) GetObject(id core.ObjectID) (core.Object, error) {
	if id == core.ZeroObjectID {
		id = types.DefaultObjectID(c.contract)
	}
	obj, err := c.ctx.GetObject(c.contract, id)
	if err != nil {
		return nil, err
	}
	return &stateObject{obj: obj, contract: c.contract, readOnly: c.readOnly}, nil
}

func (c *ExecutionContext) Log(eventName string, keyValues ...any) {
	if c.readOnly {
		return
	}
	c.ctx.Log(c.contract, eventName, keyValues...)
}

// stateObject JSON-encodes field values on top of a types.VMObject. Writes
// are made with the contract as sender, which owns its default object.
type stateObject struct {
	obj      types.VMObject
	contract core.Address
	readOnly bool
}

func (o *stateObject) ID() core.ObjectID {
	return o.obj.ID()
}

func (o *stateObject) Owner() core.Address {
	return o.obj.Owner()
}

func (o *stateObject) Contract() core.Address {
	return o.obj.Contract()
}

func (o *stateObject) Get(field string, value any) error {
	data, err := o.obj.Get(o.contract, field)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to decode field %s: %w", field, err)
	}
	return nil
}

func (o *stateObject) Set(field string, value any) error {
	if o.readOnly {
		return fmt.Errorf("%w: set %s", ErrReadOnly, field)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode field %s: %w", field, err)
	}
	return o.obj.Set(o.contract, o.contract, field, data)
}
