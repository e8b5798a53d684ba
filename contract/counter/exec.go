package counter

import (
	"fmt"
	"math/bits"
	"strconv"

	"github.com/govm-net/counter/core"
)

// Increment adds one to the counter. At math.MaxUint64 the counter is left
// unchanged instead of wrapping.
func Increment(ctx core.Context) (*core.Response, error) {
	current, err := COUNTER.Load(ctx)
	if err != nil {
		return nil, err
	}
	counter := current
	if sum, carry := bits.Add64(current, 1, 0); carry == 0 {
		counter = sum
	}
	if err := COUNTER.Save(ctx, counter); err != nil {
		return nil, err
	}
	return counterResponse("increment", ctx.Sender(), counter), nil
}

// Decrement subtracts one from the counter. At zero the counter stays zero.
func Decrement(ctx core.Context) (*core.Response, error) {
	current, err := COUNTER.Load(ctx)
	if err != nil {
		return nil, err
	}
	counter := current
	if diff, borrow := bits.Sub64(current, 1, 0); borrow == 0 {
		counter = diff
	}
	if err := COUNTER.Save(ctx, counter); err != nil {
		return nil, err
	}
	return counterResponse("decrement", ctx.Sender(), counter), nil
}

// Reset overwrites the counter with value. Only the owner recorded at
// instantiation may call it.
func Reset(ctx core.Context, value uint64) (*core.Response, error) {
	sender, err := authorizeOwner(ctx)
	if err != nil {
		return nil, err
	}
	if err := COUNTER.Save(ctx, value); err != nil {
		return nil, err
	}
	return counterResponse("reset", sender, value), nil
}

// authorizeOwner returns the caller if it is the recorded owner.
func authorizeOwner(ctx core.Context) (core.Address, error) {
	owner, err := OWNER.Load(ctx)
	if err != nil {
		return core.ZeroAddress, err
	}
	sender := ctx.Sender()
	if sender != owner {
		return core.ZeroAddress, fmt.Errorf("%w: reset by %s, owner is %s", core.ErrUnauthorized, sender, owner)
	}
	return sender, nil
}

func counterResponse(action string, sender core.Address, counter uint64) *core.Response {
	return core.NewResponse().
		AddAttribute("action", action).
		AddAttribute("sender", sender.String()).
		AddAttribute("counter", strconv.FormatUint(counter, 10))
}
