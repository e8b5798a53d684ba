// Package kv implements a blockchain context on top of an embedded bolt
// key/value file.
package kv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/govm-net/counter/context"
	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/types"
)

const (
	defaultDBPath = "./state.bolt"
	stateBucket   = "state"
)

type objectMeta struct {
	Owner    core.Address `json:"owner"`
	Contract core.Address `json:"contract"`
}

type blockMeta struct {
	Height uint64    `json:"height"`
	Time   int64     `json:"time"`
	Hash   core.Hash `json:"hash"`
}

type txMeta struct {
	Hash  core.Hash    `json:"hash"`
	From  core.Address `json:"from"`
	To    core.Address `json:"to"`
	Value uint64       `json:"value"`
}

// Context implements types.BlockchainContext on a bolt database.
type Context struct {
	db *bolt.DB

	mu    sync.Mutex
	block blockMeta
	tx    txMeta
}

func init() {
	context.Register(context.KVContextType, NewContext)
}

// NewContext opens (or creates) the bolt file at params["db_path"].
func NewContext(params map[string]any) (types.BlockchainContext, error) {
	return Open(context.StringParam(params, "db_path", defaultDBPath))
}

// Open opens the bolt file at path and restores the last block and
// transaction recorded in it.
func Open(path string) (*Context, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	c := &Context{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(stateBucket))
		if err != nil {
			return err
		}
		if data := b.Get(MetaKey("block")); data != nil {
			if err := json.Unmarshal(data, &c.block); err != nil {
				return fmt.Errorf("decode block meta: %w", err)
			}
		}
		if data := b.Get(MetaKey("tx")); data != nil {
			if err := json.Unmarshal(data, &c.tx); err != nil {
				return fmt.Errorf("decode tx meta: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init bolt db: %w", err)
	}
	return c, nil
}

func (c *Context) putMeta(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(stateBucket)).Put(MetaKey(name), data)
	})
	if err != nil {
		return fmt.Errorf("%w: save %s: %v", core.ErrStorage, name, err)
	}
	return nil
}

func (c *Context) SetBlockInfo(height uint64, time int64, hash core.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	block := blockMeta{Height: height, Time: time, Hash: hash}
	if err := c.putMeta("block", block); err != nil {
		return err
	}
	c.block = block
	return nil
}

func (c *Context) SetTransactionInfo(hash core.Hash, from core.Address, to core.Address, value uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx := txMeta{Hash: hash, From: from, To: to, Value: value}
	if err := c.putMeta("tx", tx); err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *Context) BlockHeight() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block.Height
}

func (c *Context) BlockTime() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block.Time
}

func (c *Context) ContractAddress() core.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx.To
}

func (c *Context) TransactionHash() core.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx.Hash
}

func (c *Context) Sender() core.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx.From
}

func (c *Context) CreateObjectWithID(contract core.Address, id core.ObjectID) (types.VMObject, error) {
	meta := objectMeta{Owner: contract, Contract: contract}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(stateBucket))
		key := ObjectKey(contract, id)
		if b.Get(key) != nil {
			return fmt.Errorf("object %s already exists", id)
		}
		return b.Put(key, data)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create object: %v", core.ErrStorage, err)
	}
	return &Object{ctx: c, id: id, meta: meta}, nil
}

func (c *Context) GetObject(contract core.Address, id core.ObjectID) (types.VMObject, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(stateBucket)).Get(ObjectKey(contract, id)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get object: %v", core.ErrStorage, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, id)
	}
	var meta objectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode object: %v", core.ErrStorage, err)
	}
	return &Object{ctx: c, id: id, meta: meta}, nil
}

// Log stores the event under the contract's event prefix and mirrors it to slog.
func (c *Context) Log(contract core.Address, eventName string, keyValues ...any) {
	c.mu.Lock()
	event := types.Event{
		BlockHeight: c.block.Height,
		TxHash:      c.tx.Hash,
		Contract:    contract,
		Name:        eventName,
		KeyValues:   keyValues,
	}
	c.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event data", "error", err)
		return
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(stateBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(EventKey(contract, seq), data)
	})
	if err != nil {
		slog.Error("Failed to save event", "error", err)
		return
	}

	params := []any{
		"block", event.BlockHeight,
		"contract", contract,
		"event", eventName,
	}
	params = append(params, keyValues...)
	slog.Info("Contract event", params...)
}

// Events returns the events emitted by contract, oldest first.
func (c *Context) Events(contract core.Address) ([]types.Event, error) {
	var events []types.Event
	prefix := EventPrefix(contract)
	err := c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket([]byte(stateBucket)).Cursor()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			var event types.Event
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", core.ErrStorage, err)
	}
	return events, nil
}

func (c *Context) Close() error {
	return c.db.Close()
}

// Object implements types.VMObject; fields live under FieldKey.
type Object struct {
	ctx  *Context
	id   core.ObjectID
	meta objectMeta
}

func (o *Object) ID() core.ObjectID {
	return o.id
}

func (o *Object) Owner() core.Address {
	return o.meta.Owner
}

func (o *Object) Contract() core.Address {
	return o.meta.Contract
}

func (o *Object) Get(contract core.Address, field string) ([]byte, error) {
	if contract != o.meta.Contract {
		return nil, errors.New("invalid contract")
	}
	var value []byte
	err := o.ctx.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(stateBucket)).Get(FieldKey(contract, o.id, field)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get field: %v", core.ErrStorage, err)
	}
	if value == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrFieldNotFound, field)
	}
	return value, nil
}

func (o *Object) Set(contract, sender core.Address, field string, value []byte) error {
	if contract != o.meta.Contract {
		return errors.New("invalid contract")
	}
	if sender != o.meta.Owner && contract != o.meta.Owner {
		return errors.New("not owner")
	}
	err := o.ctx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(stateBucket)).Put(FieldKey(contract, o.id, field), value)
	})
	if err != nil {
		return fmt.Errorf("%w: update field: %v", core.ErrStorage, err)
	}
	return nil
}
