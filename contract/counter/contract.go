// Package counter is a contract holding a single unsigned counter that
// anyone may increment or decrement and only its owner may reset.
//
// Arithmetic saturates: incrementing MaxUint64 or decrementing zero leaves
// the counter unchanged and is not an error.
package counter

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/govm-net/counter/core"
)

// CodeName is the name the counter is registered under in a host.
const CodeName = "counter"

// Instantiate stores the initial counter and records the caller as owner.
func Instantiate(ctx core.Context, msg InstantiateMsg) (*core.Response, error) {
	sender := ctx.Sender()
	if err := COUNTER.Save(ctx, msg.CounterValue); err != nil {
		return nil, err
	}
	if err := OWNER.Save(ctx, sender); err != nil {
		return nil, err
	}
	return core.NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("sender", sender.String()).
		AddAttribute("owner", sender.String()).
		AddAttribute("counter", strconv.FormatUint(msg.CounterValue, 10)), nil
}

// Execute routes a decoded execute message to its handler and emits the
// response attributes as a contract event.
func Execute(ctx core.Context, msg ExecuteMsg) (*core.Response, error) {
	var (
		resp *core.Response
		err  error
	)
	switch {
	case msg.Increment != nil:
		resp, err = Increment(ctx)
	case msg.Decrement != nil:
		resp, err = Decrement(ctx)
	case msg.Reset != nil:
		resp, err = Reset(ctx, msg.Reset.Value)
	default:
		return nil, fmt.Errorf("%w: empty execute message", core.ErrInvalidMessage)
	}
	if err != nil {
		return nil, err
	}
	action, _ := resp.Attribute("action")
	ctx.Log(action, resp.KeyValues()...)
	return resp, nil
}

// Query routes a decoded query message and returns the JSON-encoded answer.
func Query(ctx core.Context, msg QueryMsg) ([]byte, error) {
	var (
		resp any
		err  error
	)
	switch {
	case msg.Value != nil:
		resp, err = Value(ctx)
	case msg.Owner != nil:
		resp, err = Owner(ctx)
	default:
		return nil, fmt.Errorf("%w: empty query message", core.ErrInvalidMessage)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

// HandleInstantiate decodes a raw instantiate message and runs Instantiate.
func HandleInstantiate(ctx core.Context, data []byte) (*core.Response, error) {
	msg, err := DecodeInstantiateMsg(data)
	if err != nil {
		return nil, err
	}
	resp, err := Instantiate(ctx, msg)
	if err != nil {
		return nil, err
	}
	ctx.Log("instantiate", resp.KeyValues()...)
	return resp, nil
}

// HandleExecute decodes a raw execute message and runs Execute.
func HandleExecute(ctx core.Context, data []byte) (*core.Response, error) {
	msg, err := DecodeExecuteMsg(data)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, msg)
}

// HandleQuery decodes a raw query message and runs Query.
func HandleQuery(ctx core.Context, data []byte) ([]byte, error) {
	msg, err := DecodeQueryMsg(data)
	if err != nil {
		return nil, err
	}
	return Query(ctx, msg)
}

// Check decodes a raw message for the given entry point ("instantiate",
// "execute" or "query") and verifies that the caller may run it. It only
// reads state.
func Check(ctx core.Context, entry string, data []byte) error {
	switch entry {
	case "instantiate":
		_, err := DecodeInstantiateMsg(data)
		return err
	case "execute":
		msg, err := DecodeExecuteMsg(data)
		if err != nil {
			return err
		}
		if msg.Reset != nil {
			_, err = authorizeOwner(ctx)
		}
		return err
	case "query":
		_, err := DecodeQueryMsg(data)
		return err
	}
	return fmt.Errorf("%w: unknown entry point %q", core.ErrInvalidMessage, entry)
}
