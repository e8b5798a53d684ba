//go:build tinygo.wasm

// Command counter is the counter contract built for the WASM sandbox:
//
//	tinygo build -o counter.wasm -target wasi -buildmode c-shared ./wasm/counter
//
// The host passes a types.HandleContractCallParams to handle_contract_call
// and reads a types.ExecutionResult back from the buffer.
package main

import (
	"encoding/json"
	"unsafe"

	"github.com/govm-net/counter/contract/counter"
	"github.com/govm-net/counter/types"
)

const (
	errCodeInvalidInput int32 = -2
	errCodeResultTooBig int32 = -3
)

// 防止被 GC 回收的分配记录
var allocations = map[int32][]byte{}

//export allocate
func allocate(size int32) int32 {
	if size <= 0 {
		size = 1
	}
	buf := make([]byte, size)
	ptr := int32(uintptr(unsafe.Pointer(&buf[0])))
	allocations[ptr] = buf
	return ptr
}

//export deallocate
func deallocate(ptr int32, size int32) {
	delete(allocations, ptr)
}

//export get_buffer_address
func get_buffer_address() int32 {
	return bufferPtr()
}

//export handle_contract_call
func handle_contract_call(inputPtr, inputLen int32) int32 {
	input, ok := allocations[inputPtr]
	if !ok || int32(len(input)) < inputLen {
		return errCodeInvalidInput
	}
	var params types.HandleContractCallParams
	if err := json.Unmarshal(input[:inputLen], &params); err != nil {
		return errCodeInvalidInput
	}

	data, err := dispatch(&Context{}, params.Function, params.Args)
	result := types.ExecutionResult{Success: err == nil, Data: data}
	if err != nil {
		result.Error = err.Error()
	}
	out, err := json.Marshal(result)
	if err != nil {
		return errCodeInvalidInput
	}
	if len(out) > len(hostBuffer) {
		return errCodeResultTooBig
	}
	copy(hostBuffer, out)
	return int32(len(out))
}

func dispatch(ctx *Context, function string, args []byte) (any, error) {
	switch function {
	case types.EntryInstantiate:
		return counter.HandleInstantiate(ctx, args)
	case types.EntryExecute:
		return counter.HandleExecute(ctx, args)
	case types.EntryQuery:
		out, err := counter.HandleQuery(ctx, args)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(out), nil
	default:
		return nil, unknownEntry(function)
	}
}

type unknownEntry string

func (e unknownEntry) Error() string {
	return "invalid message: unknown entry point " + string(e)
}

func main() {}
