package counter

import (
	"fmt"

	"github.com/govm-net/counter/core"
)

// Item is a single typed value stored under a fixed key of the contract's
// default object.
type Item[T any] struct {
	key string
}

func NewItem[T any](key string) Item[T] {
	return Item[T]{key: key}
}

// Load reads the value. Any failure is reported as core.ErrStorage.
func (i Item[T]) Load(ctx core.Context) (T, error) {
	var value T
	obj, err := ctx.GetObject(core.ZeroObjectID)
	if err != nil {
		return value, fmt.Errorf("%w: load %s: %w", core.ErrStorage, i.key, err)
	}
	if err := obj.Get(i.key, &value); err != nil {
		return value, fmt.Errorf("%w: load %s: %w", core.ErrStorage, i.key, err)
	}
	return value, nil
}

// Save writes the value. Any failure is reported as core.ErrStorage.
func (i Item[T]) Save(ctx core.Context, value T) error {
	obj, err := ctx.GetObject(core.ZeroObjectID)
	if err != nil {
		return fmt.Errorf("%w: save %s: %w", core.ErrStorage, i.key, err)
	}
	if err := obj.Set(i.key, value); err != nil {
		return fmt.Errorf("%w: save %s: %w", core.ErrStorage, i.key, err)
	}
	return nil
}

var (
	OWNER   = NewItem[core.Address]("owner")
	COUNTER = NewItem[uint64]("counter")
)
