//go:build tinygo.wasm

package main

import (
	"encoding/json"
	"fmt"
	"unsafe"

	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/types"
)

// 宿主与合约之间传递数据的全局缓冲区
var hostBuffer = make([]byte, types.HostBufferSize)

func bufferPtr() int32 {
	return int32(uintptr(unsafe.Pointer(&hostBuffer[0])))
}

//go:wasmimport env call_host_set
func call_host_set(funcID, argPtr, argLen, bufferPtr int32) int32

//go:wasmimport env call_host_get_buffer
func call_host_get_buffer(funcID, argPtr, argLen, bufferPtr int32) int32

//go:wasmimport env get_block_height
func get_block_height() uint64

//go:wasmimport env get_block_time
func get_block_time() int64

// callHost 调用宿主函数, 返回写入缓冲区的数据
func callHost(funcID types.WasmFunctionID, data []byte, wantResult bool) ([]byte, error) {
	var argPtr, argLen int32
	if len(data) > 0 {
		argPtr = int32(uintptr(unsafe.Pointer(&data[0])))
		argLen = int32(len(data))
	}

	if !wantResult {
		if code := call_host_set(int32(funcID), argPtr, argLen, bufferPtr()); code != 0 {
			return nil, fmt.Errorf("host call %d failed with code %d", funcID, code)
		}
		return nil, nil
	}

	size := call_host_get_buffer(int32(funcID), argPtr, argLen, bufferPtr())
	if size < 0 {
		return nil, fmt.Errorf("host call %d failed with code %d", funcID, size)
	}
	out := make([]byte, size)
	copy(out, hostBuffer[:size])
	return out, nil
}

// Context 通过宿主函数实现 core.Context
type Context struct {
	sender          core.Address
	contractAddress core.Address
	loaded          bool
}

var _ core.Context = (*Context)(nil)

func (c *Context) load() {
	if c.loaded {
		return
	}
	if data, err := callHost(types.FuncGetSender, nil, true); err == nil {
		copy(c.sender[:], data)
	}
	if data, err := callHost(types.FuncGetContractAddress, nil, true); err == nil {
		copy(c.contractAddress[:], data)
	}
	c.loaded = true
}

func (c *Context) BlockHeight() uint64 {
	return get_block_height()
}

func (c *Context) BlockTime() int64 {
	return get_block_time()
}

func (c *Context) ContractAddress() core.Address {
	c.load()
	return c.contractAddress
}

func (c *Context) Sender() core.Address {
	c.load()
	return c.sender
}

func (c *Context) GetObject(id core.ObjectID) (core.Object, error) {
	req, err := json.Marshal(types.GetObjectParams{Contract: c.ContractAddress(), ID: id})
	if err != nil {
		return nil, err
	}
	data, err := callHost(types.FuncGetObject, req, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, id)
	}
	var got core.ObjectID
	copy(got[:], data)
	return &Object{id: got, ctx: c}, nil
}

func (c *Context) Log(eventName string, keyValues ...any) {
	req, err := json.Marshal(types.LogParams{
		Contract:  c.ContractAddress(),
		Event:     eventName,
		KeyValues: keyValues,
	})
	if err != nil {
		return
	}
	_, _ = callHost(types.FuncLog, req, false)
}

// Object 通过宿主函数实现 core.Object
type Object struct {
	id  core.ObjectID
	ctx *Context
}

var _ core.Object = (*Object)(nil)

func (o *Object) ID() core.ObjectID {
	return o.id
}

func (o *Object) Owner() core.Address {
	var owner core.Address
	data, err := callHost(types.FuncGetObjectOwner, o.id[:], true)
	if err != nil {
		return owner
	}
	copy(owner[:], data)
	return owner
}

func (o *Object) Contract() core.Address {
	return o.ctx.ContractAddress()
}

func (o *Object) Get(field string, value any) error {
	req, err := json.Marshal(types.GetObjectFieldParams{
		Contract: o.ctx.ContractAddress(),
		ID:       o.id,
		Field:    field,
	})
	if err != nil {
		return err
	}
	data, err := callHost(types.FuncGetObjectField, req, true)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrFieldNotFound, field)
	}
	return json.Unmarshal(data, value)
}

func (o *Object) Set(field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	req, err := json.Marshal(types.SetObjectFieldParams{
		Contract: o.ctx.ContractAddress(),
		Sender:   o.ctx.ContractAddress(),
		ID:       o.id,
		Field:    field,
		Value:    raw,
	})
	if err != nil {
		return err
	}
	_, err = callHost(types.FuncSetObjectField, req, false)
	return err
}
