package vm

import (
	"github.com/govm-net/counter/abi"
	"github.com/govm-net/counter/contract/counter"
	"github.com/govm-net/counter/core"
)

// Code is a contract whose handlers are linked into the host. A WASM
// instance also names a Code, whose ABI describes the messages it takes.
type Code struct {
	Name        string
	ABI         *abi.ABI
	Instantiate func(ctx core.Context, msg []byte) (*core.Response, error)
	Execute     func(ctx core.Context, msg []byte) (*core.Response, error)
	Query       func(ctx core.Context, msg []byte) ([]byte, error)

	// Check validates a message for an entry point against a read-only
	// context before the engine opens a block for it. Optional.
	Check func(ctx core.Context, entry string, msg []byte) error
}

// CounterCode returns the counter contract.
func CounterCode() Code {
	return Code{
		Name: counter.CodeName,
		ABI: abi.FromMessages(counter.CodeName,
			counter.InstantiateMsg{}, counter.ExecuteMsg{}, counter.QueryMsg{},
			map[string]any{
				"value": counter.ValueResp{},
				"owner": counter.OwnerResp{},
			}),
		Instantiate: counter.HandleInstantiate,
		Execute:     counter.HandleExecute,
		Query:       counter.HandleQuery,
		Check:       counter.Check,
	}
}
