// Package wasi runs contracts compiled to WebAssembly inside a wazero
// sandbox and serves their host calls from a types.BlockchainContext.
package wasi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	api1 "github.com/govm-net/counter/api"
	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/types"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// Exports the guest module must provide.
var requiredExports = []string{"allocate", "deallocate", "get_buffer_address", "handle_contract_call"}

// guestErrors are matched by message prefix so that errors raised inside
// the guest keep their identity on the host.
var guestErrors = []error{
	core.ErrUnauthorized,
	core.ErrInvalidMessage,
	core.ErrInvalidArgument,
	core.ErrStorage,
	core.ErrObjectNotFound,
	core.ErrFieldNotFound,
}

// ErrContractTrap is returned when the guest aborts or violates the ABI.
var ErrContractTrap = errors.New("contract trapped")

// WazeroVM implements a virtual machine using wazero
type WazeroVM struct {
	// Contract storage directory
	contractDir string
	limits      api1.ContractConfig

	ctx   context.Context
	cache wazero.CompilationCache
}

// Invocation is one call into a deployed contract.
type Invocation struct {
	Contract types.Address
	Sender   types.Address
	Function string
	Args     []byte
	// ReadOnly rejects state writes and drops logs
	ReadOnly bool
}

// NewWazeroVM creates a new wazero virtual machine instance
func NewWazeroVM(contractDir string, limits api1.ContractConfig) (*WazeroVM, error) {
	if contractDir == "" {
		return nil, fmt.Errorf("contract directory is empty")
	}
	if err := os.MkdirAll(contractDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create contract directory: %w", err)
	}

	return &WazeroVM{
		contractDir: contractDir,
		limits:      limits,
		ctx:         context.Background(),
		cache:       wazero.NewCompilationCache(),
	}, nil
}

func (vm *WazeroVM) contractPath(contractAddr types.Address) string {
	return filepath.Join(vm.contractDir, contractAddr.String()+".wasm")
}

// ValidateContract checks size, header and exports of a WASM module.
func (vm *WazeroVM) ValidateContract(wasmCode []byte) error {
	if len(wasmCode) == 0 {
		return errors.New("contract code cannot be empty")
	}
	if vm.limits.MaxCodeSize > 0 && uint64(len(wasmCode)) > vm.limits.MaxCodeSize {
		return fmt.Errorf("contract size %d exceeds maximum allowed size of %d bytes", len(wasmCode), vm.limits.MaxCodeSize)
	}
	if !bytes.HasPrefix(wasmCode, wasmMagic) {
		return errors.New("contract code is not a WebAssembly module")
	}

	runtime := wazero.NewRuntimeWithConfig(vm.ctx, vm.runtimeConfig())
	defer runtime.Close(vm.ctx)
	compiled, err := runtime.CompileModule(vm.ctx, wasmCode)
	if err != nil {
		return fmt.Errorf("failed to compile WebAssembly module: %w", err)
	}
	exports := compiled.ExportedFunctions()
	for _, name := range requiredExports {
		if _, ok := exports[name]; !ok {
			return fmt.Errorf("contract does not export %s", name)
		}
	}
	return nil
}

// DeployContractWithAddress validates wasmCode and stores it for contractAddr
func (vm *WazeroVM) DeployContractWithAddress(wasmCode []byte, contractAddr types.Address) error {
	if err := vm.ValidateContract(wasmCode); err != nil {
		return err
	}
	if err := os.WriteFile(vm.contractPath(contractAddr), wasmCode, 0644); err != nil {
		return fmt.Errorf("failed to store contract code: %w", err)
	}
	return nil
}

// HasContract reports whether code is stored for contractAddr.
func (vm *WazeroVM) HasContract(contractAddr types.Address) bool {
	_, err := os.Stat(vm.contractPath(contractAddr))
	return err == nil
}

// DeleteContract deletes a WebAssembly contract
func (vm *WazeroVM) DeleteContract(contractAddr types.Address) error {
	err := os.Remove(vm.contractPath(contractAddr))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete contract code: %w", err)
	}
	return nil
}

func (vm *WazeroVM) runtimeConfig() wazero.RuntimeConfig {
	cfg := wazero.NewRuntimeConfig().WithCompilationCache(vm.cache)
	if vm.limits.MaxMemoryPages > 0 {
		cfg = cfg.WithMemoryLimitPages(vm.limits.MaxMemoryPages)
	}
	return cfg
}

// ExecuteContract instantiates the contract's module, calls
// handle_contract_call and returns the result data.
func (vm *WazeroVM) ExecuteContract(ctx types.BlockchainContext, inv Invocation) (json.RawMessage, error) {
	wasmCode, err := os.ReadFile(vm.contractPath(inv.Contract))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no code for %s", core.ErrContractNotFound, inv.Contract)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read contract code: %w", err)
	}

	runtime := wazero.NewRuntimeWithConfig(vm.ctx, vm.runtimeConfig())
	defer runtime.Close(vm.ctx)

	module, err := vm.initContract(runtime, &hostEnv{ctx: ctx, inv: inv}, wasmCode)
	if err != nil {
		return nil, err
	}

	out, err := vm.callWasmFunction(module, inv)
	if err != nil {
		return nil, err
	}

	var result executionResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to deserialize result: %v", ErrContractTrap, err)
	}
	if !result.Success {
		return nil, guestError(result.Error)
	}
	return result.Data, nil
}

// executionResult mirrors types.ExecutionResult with the data left encoded.
type executionResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func guestError(msg string) error {
	for _, sentinel := range guestErrors {
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()); ok {
			return fmt.Errorf("%w%s", sentinel, rest)
		}
	}
	return fmt.Errorf("%w: %s", ErrContractTrap, msg)
}

func (vm *WazeroVM) initContract(runtime wazero.Runtime, env *hostEnv, wasmCode []byte) (api.Module, error) {
	// Compile WASM module
	compiled, err := runtime.CompileModule(vm.ctx, wasmCode)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WebAssembly module: %w", err)
	}

	builder := runtime.NewHostModuleBuilder("env")

	builder.NewFunctionBuilder().
		WithParameterNames("funcID", "argPtr", "argLen", "bufferPtr").
		WithResultNames("result").
		WithFunc(func(_ context.Context, m api.Module, funcID, argPtr, argLen, bufferPtr uint32) int32 {
			argData, ok := m.Memory().Read(argPtr, argLen)
			if !ok {
				return -1
			}
			return env.handleHostSet(funcID, argData)
		}).
		Export("call_host_set")

	builder.NewFunctionBuilder().
		WithParameterNames("funcID", "argPtr", "argLen", "buffer").
		WithResultNames("result").
		WithFunc(func(_ context.Context, m api.Module, funcID, argPtr, argLen, buffer uint32) int32 {
			argData, ok := m.Memory().Read(argPtr, argLen)
			if !ok {
				return -1
			}
			data, code := env.handleHostGetBuffer(funcID, argData)
			if code < 0 {
				return code
			}
			if len(data) > int(types.HostBufferSize) || !m.Memory().Write(buffer, data) {
				return -1
			}
			return int32(len(data))
		}).
		Export("call_host_get_buffer")

	builder.NewFunctionBuilder().
		WithResultNames("result").
		WithFunc(func(_ context.Context, _ api.Module) uint64 {
			return env.ctx.BlockHeight()
		}).
		Export("get_block_height")

	builder.NewFunctionBuilder().
		WithResultNames("result").
		WithFunc(func(_ context.Context, _ api.Module) int64 {
			return env.ctx.BlockTime()
		}).
		Export("get_block_time")

	if _, err := builder.Instantiate(vm.ctx); err != nil {
		return nil, fmt.Errorf("failed to instantiate env module: %w", err)
	}

	wasi_snapshot_preview1.MustInstantiate(vm.ctx, runtime)

	config := wazero.NewModuleConfig().
		WithName("contract").
		WithStdout(os.Stdout).
		WithStderr(os.Stderr).
		WithStartFunctions("_initialize")

	module, err := runtime.InstantiateModule(vm.ctx, compiled, config)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}
	return module, nil
}

// callWasmFunction passes the invocation to handle_contract_call and reads
// the result back from the guest buffer.
func (vm *WazeroVM) callWasmFunction(module api.Module, inv Invocation) ([]byte, error) {
	allocate := module.ExportedFunction("allocate")
	deallocate := module.ExportedFunction("deallocate")
	handle := module.ExportedFunction("handle_contract_call")
	getBufferAddress := module.ExportedFunction("get_buffer_address")
	if allocate == nil || deallocate == nil || handle == nil || getBufferAddress == nil {
		return nil, fmt.Errorf("%w: missing required export", ErrContractTrap)
	}

	inputBytes, err := json.Marshal(types.HandleContractCallParams{
		Contract: inv.Contract,
		Sender:   inv.Sender,
		Function: inv.Function,
		Args:     inv.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize handle_contract_call: %w", err)
	}

	result, err := allocate.Call(vm.ctx, uint64(len(inputBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate memory: %w", err)
	}
	inputAddr := uint32(result[0])
	if !module.Memory().Write(inputAddr, inputBytes) {
		return nil, fmt.Errorf("failed to write to memory")
	}

	result, err = handle.Call(vm.ctx, uint64(inputAddr), uint64(len(inputBytes)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrContractTrap, inv.Function, err)
	}
	resultLen := int32(result[0])
	if resultLen <= 0 {
		return nil, fmt.Errorf("%w: %s returned code %d", ErrContractTrap, inv.Function, resultLen)
	}

	result, err = getBufferAddress.Call(vm.ctx)
	if err != nil {
		return nil, fmt.Errorf("get_buffer_address failed: %w", err)
	}
	out, ok := module.Memory().Read(uint32(result[0]), uint32(resultLen))
	if !ok {
		return nil, fmt.Errorf("failed to read memory:%d, len:%d", result[0], resultLen)
	}
	// the view aliases guest memory, which is freed with the runtime
	out = bytes.Clone(out)

	if _, err := deallocate.Call(vm.ctx, uint64(inputAddr), uint64(len(inputBytes))); err != nil {
		return nil, fmt.Errorf("failed to free memory: %w", err)
	}
	return out, nil
}

// hostEnv serves host calls of one invocation.
type hostEnv struct {
	ctx types.BlockchainContext
	inv Invocation
}

func (h *hostEnv) objectID(id types.ObjectID) types.ObjectID {
	if id == (types.ObjectID{}) {
		return types.DefaultObjectID(h.inv.Contract)
	}
	return id
}

// handleHostSet serves calls without a result buffer. 0 is success.
func (h *hostEnv) handleHostSet(funcID uint32, argData []byte) int32 {
	switch types.WasmFunctionID(funcID) {
	case types.FuncLog:
		var params types.LogParams
		if err := json.Unmarshal(argData, &params); err != nil {
			return -1
		}
		if !h.inv.ReadOnly {
			h.ctx.Log(h.inv.Contract, params.Event, params.KeyValues...)
		}
		return 0

	case types.FuncSetObjectField:
		if h.inv.ReadOnly {
			slog.Warn("rejected state write during query", "contract", h.inv.Contract)
			return -2
		}
		var params types.SetObjectFieldParams
		if err := json.Unmarshal(argData, &params); err != nil {
			slog.Error("failed to deserialize set_object_field", "error", err)
			return -1
		}
		obj, err := h.ctx.GetObject(h.inv.Contract, h.objectID(params.ID))
		if err != nil {
			slog.Error("failed to get object in set_object_field", "error", err)
			return -1
		}
		if obj.Owner() != h.inv.Contract {
			slog.Error("object owner mismatch in set_object_field", "contract", h.inv.Contract, "owner", obj.Owner())
			return -1
		}
		if err := obj.Set(h.inv.Contract, h.inv.Contract, params.Field, params.Value); err != nil {
			slog.Error("failed to set field in set_object_field", "error", err)
			return -1
		}
		return 0

	default:
		return -1
	}
}

// handleHostGetBuffer serves calls that return data to the guest buffer.
func (h *hostEnv) handleHostGetBuffer(funcID uint32, argData []byte) ([]byte, int32) {
	switch types.WasmFunctionID(funcID) {
	case types.FuncGetSender:
		return h.inv.Sender[:], 0

	case types.FuncGetContractAddress:
		return h.inv.Contract[:], 0

	case types.FuncGetObject:
		var params types.GetObjectParams
		if err := json.Unmarshal(argData, &params); err != nil {
			return nil, -1
		}
		obj, err := h.ctx.GetObject(h.inv.Contract, h.objectID(params.ID))
		if err != nil {
			return nil, -1
		}
		id := obj.ID()
		return id[:], 0

	case types.FuncGetObjectOwner:
		if len(argData) != 32 {
			return nil, -1
		}
		var id types.ObjectID
		copy(id[:], argData)
		obj, err := h.ctx.GetObject(h.inv.Contract, h.objectID(id))
		if err != nil {
			return nil, -1
		}
		owner := obj.Owner()
		return owner[:], 0

	case types.FuncGetObjectField:
		var params types.GetObjectFieldParams
		if err := json.Unmarshal(argData, &params); err != nil {
			return nil, -1
		}
		obj, err := h.ctx.GetObject(h.inv.Contract, h.objectID(params.ID))
		if err != nil {
			return nil, -1
		}
		data, err := obj.Get(h.inv.Contract, params.Field)
		if errors.Is(err, core.ErrFieldNotFound) {
			return nil, -3
		}
		if err != nil {
			return nil, -1
		}
		return data, 0

	default:
		return nil, -1
	}
}

// Close closes the virtual machine
func (vm *WazeroVM) Close() error {
	if err := vm.cache.Close(vm.ctx); err != nil {
		return fmt.Errorf("failed to close compilation cache: %w", err)
	}
	return nil
}
