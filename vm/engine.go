package vm

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/govm-net/counter/abi"
	"github.com/govm-net/counter/api"
	"github.com/govm-net/counter/context"
	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/repository"
	"github.com/govm-net/counter/types"
	"github.com/govm-net/counter/wasi"

	_ "github.com/govm-net/counter/context/db"
	_ "github.com/govm-net/counter/context/kv"
	_ "github.com/govm-net/counter/context/memory"
)

// Engine hosts contract instances. Every call runs to completion before the
// next one starts, and each mutating call is committed as its own block.
type Engine struct {
	config      *Config
	mu          sync.Mutex
	codes       map[string]Code
	codeManager *repository.Manager
	wazeroVM    *wasi.WazeroVM
	ctx         types.BlockchainContext // Blockchain context
	now         func() time.Time
}

var _ api.VM = (*Engine)(nil)

// NewEngine creates a new contract engine with the counter code registered.
func NewEngine(config *Config) (*Engine, error) {
	// Ensure configuration is valid
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Create code manager
	codeManager, err := repository.NewManager(config.CodeManagerDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create code manager: %w", err)
	}

	var wazeroVM *wasi.WazeroVM
	if config.WASIContractsDir != "" {
		wazeroVM, err = wasi.NewWazeroVM(config.WASIContractsDir, config.ContractConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create wazero engine: %w", err)
		}
	}

	ctx, err := context.Get(context.ContextType(config.ContextType), config.ContextParams)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockchain context: %w", err)
	}

	e := &Engine{
		config:      config,
		codes:       make(map[string]Code),
		codeManager: codeManager,
		wazeroVM:    wazeroVM,
		ctx:         ctx,
		now:         time.Now,
	}
	if err := e.Register(CounterCode()); err != nil {
		return nil, err
	}
	return e, nil
}

// GetContext returns the blockchain context the engine runs on.
func (e *Engine) GetContext() types.BlockchainContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

// Register adds a code that instances can be created from.
func (e *Engine) Register(code Code) error {
	if code.Name == "" || code.Instantiate == nil || code.Execute == nil || code.Query == nil {
		return fmt.Errorf("%w: incomplete code %q", core.ErrInvalidArgument, code.Name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.codes[code.Name]; exists {
		return fmt.Errorf("code %s already registered", code.Name)
	}
	e.codes[code.Name] = code
	return nil
}

// Codes lists the registered code names.
func (e *Engine) Codes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.codes))
	for name := range e.codes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the ABI of a registered code.
func (e *Engine) Schema(name string) (*abi.ABI, error) {
	code, err := e.code(name)
	if err != nil {
		return nil, err
	}
	return code.ABI, nil
}

func (e *Engine) code(name string) (Code, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	code, ok := e.codes[name]
	if !ok {
		return Code{}, fmt.Errorf("%w: unknown code %q", core.ErrContractNotFound, name)
	}
	return code, nil
}

// Instance returns the repository record of a contract instance.
func (e *Engine) Instance(contract core.Address) (*repository.Instance, error) {
	return e.codeManager.GetInstance(contract)
}

// Instances lists every contract instance in creation order.
func (e *Engine) Instances() ([]*repository.Instance, error) {
	return e.codeManager.ListInstances()
}

// Events lists the events an instance has emitted, oldest first.
func (e *Engine) Events(contract core.Address) ([]types.Event, error) {
	if !e.codeManager.Exists(contract) {
		return nil, fmt.Errorf("%w: %s", core.ErrContractNotFound, contract)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx.Events(contract)
}

// Instantiate creates an instance of a native code. sender becomes the
// instance's creator.
func (e *Engine) Instantiate(codeName string, sender core.Address, msg []byte) (core.Address, *core.Response, error) {
	code, err := e.code(codeName)
	if err != nil {
		return core.ZeroAddress, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instantiate(code, nil, sender, msg)
}

// InstantiateWASM stores wasmCode and creates an instance running it in
// the WASM sandbox. codeName selects the ABI that describes its messages.
func (e *Engine) InstantiateWASM(codeName string, wasmCode []byte, sender core.Address, msg []byte) (core.Address, *core.Response, error) {
	if e.wazeroVM == nil {
		return core.ZeroAddress, nil, fmt.Errorf("WASM runtime is disabled: set wasi_contracts_dir")
	}
	code, err := e.code(codeName)
	if err != nil {
		return core.ZeroAddress, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instantiate(code, wasmCode, sender, msg)
}

func (e *Engine) instantiate(code Code, wasmCode []byte, sender core.Address, msg []byte) (core.Address, *core.Response, error) {
	if err := e.checkMessage(msg); err != nil {
		return core.ZeroAddress, nil, err
	}

	n, err := e.codeManager.Count()
	if err != nil {
		return core.ZeroAddress, nil, err
	}
	runtime := repository.RuntimeNative
	seed := []byte(code.Name)
	if wasmCode != nil {
		runtime = repository.RuntimeWASM
		seed = wasmCode
	}
	contract := api.DefaultContractAddressGenerator(seed, sender, uint64(n)+1)
	if e.codeManager.Exists(contract) {
		return core.ZeroAddress, nil, fmt.Errorf("%w: %s", repository.ErrInstanceExists, contract)
	}

	if err := e.check(code, types.EntryInstantiate, contract, sender, msg); err != nil {
		return core.ZeroAddress, nil, err
	}
	if err := e.beginTransaction(contract, sender, msg); err != nil {
		return core.ZeroAddress, nil, err
	}
	if err := e.ensureDefaultObject(contract); err != nil {
		return core.ZeroAddress, nil, err
	}

	var resp *core.Response
	if wasmCode != nil {
		if err := e.wazeroVM.DeployContractWithAddress(wasmCode, contract); err != nil {
			return core.ZeroAddress, nil, fmt.Errorf("contract deployment failed: %w", err)
		}
		resp, err = e.callWASM(contract, sender, types.EntryInstantiate, msg)
		if err != nil {
			_ = e.wazeroVM.DeleteContract(contract)
		}
	} else {
		resp, err = code.Instantiate(NewExecutionContext(e.ctx, contract, sender), msg)
	}
	if err != nil {
		slog.Warn("instantiate failed", "code", code.Name, "sender", sender, "error", err)
		return core.ZeroAddress, nil, err
	}

	if _, err := e.codeManager.RegisterInstance(contract, code.Name, runtime, sender, msg); err != nil {
		return core.ZeroAddress, nil, fmt.Errorf("failed to register instance: %w", err)
	}
	slog.Info("contract instantiated", "code", code.Name, "runtime", runtime, "contract", contract, "sender", sender)
	return contract, resp, nil
}

// ensureDefaultObject creates the instance's default object. An object
// left over by a failed instantiation at the same address is reused.
func (e *Engine) ensureDefaultObject(contract core.Address) error {
	id := types.DefaultObjectID(contract)
	_, err := e.ctx.GetObject(contract, id)
	if errors.Is(err, core.ErrObjectNotFound) {
		_, err = e.ctx.CreateObjectWithID(contract, id)
	}
	if err != nil {
		return fmt.Errorf("%w: create default object: %w", core.ErrStorage, err)
	}
	return nil
}

// Execute runs an execute message against an instance.
func (e *Engine) Execute(contract core.Address, sender core.Address, msg []byte) (*core.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkMessage(msg); err != nil {
		return nil, err
	}
	inst, err := e.codeManager.GetInstance(contract)
	if err != nil {
		return nil, err
	}
	code, ok := e.codes[inst.Code]
	if !ok {
		return nil, fmt.Errorf("%w: unknown code %q", core.ErrContractNotFound, inst.Code)
	}
	// rejected calls do not open a block
	if err := e.check(code, types.EntryExecute, contract, sender, msg); err != nil {
		slog.Debug("execute rejected", "contract", contract, "sender", sender, "error", err)
		return nil, err
	}
	if err := e.beginTransaction(contract, sender, msg); err != nil {
		return nil, err
	}

	var resp *core.Response
	switch inst.Runtime {
	case repository.RuntimeWASM:
		resp, err = e.callWASM(contract, sender, types.EntryExecute, msg)
	default:
		resp, err = code.Execute(NewExecutionContext(e.ctx, contract, sender), msg)
	}
	if err != nil {
		slog.Debug("execute failed", "contract", contract, "sender", sender, "error", err)
		return nil, err
	}
	return resp, nil
}

// Query runs a read-only query message against an instance. It does not
// advance the chain.
func (e *Engine) Query(contract core.Address, msg []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkMessage(msg); err != nil {
		return nil, err
	}
	inst, err := e.codeManager.GetInstance(contract)
	if err != nil {
		return nil, err
	}

	switch inst.Runtime {
	case repository.RuntimeWASM:
		if e.wazeroVM == nil {
			return nil, fmt.Errorf("WASM runtime is disabled: set wasi_contracts_dir")
		}
		return e.wazeroVM.ExecuteContract(e.ctx, wasi.Invocation{
			Contract: contract,
			Function: types.EntryQuery,
			Args:     msg,
			ReadOnly: true,
		})
	default:
		code, ok := e.codes[inst.Code]
		if !ok {
			return nil, fmt.Errorf("%w: unknown code %q", core.ErrContractNotFound, inst.Code)
		}
		return code.Query(newQueryContext(e.ctx, contract), msg)
	}
}

// ExecuteFunction calls an execute variant by name, e.g. "Increment" or
// "reset" with args {"value": 5}.
func (e *Engine) ExecuteFunction(contract, sender core.Address, function string, args map[string]any) (*core.Response, error) {
	msg, err := e.buildMessage(contract, abi.KindExecute, function, args)
	if err != nil {
		return nil, err
	}
	return e.Execute(contract, sender, msg)
}

// QueryFunction calls a query variant by name, e.g. "Value".
func (e *Engine) QueryFunction(contract core.Address, function string, args map[string]any) ([]byte, error) {
	msg, err := e.buildMessage(contract, abi.KindQuery, function, args)
	if err != nil {
		return nil, err
	}
	return e.Query(contract, msg)
}

func (e *Engine) buildMessage(contract core.Address, kind abi.Kind, function string, args map[string]any) ([]byte, error) {
	inst, err := e.codeManager.GetInstance(contract)
	if err != nil {
		return nil, err
	}
	code, err := e.code(inst.Code)
	if err != nil {
		return nil, err
	}
	return code.ABI.BuildMessage(kind, function, args)
}

func (e *Engine) callWASM(contract, sender core.Address, entry string, msg []byte) (*core.Response, error) {
	if e.wazeroVM == nil {
		return nil, fmt.Errorf("WASM runtime is disabled: set wasi_contracts_dir")
	}
	data, err := e.wazeroVM.ExecuteContract(e.ctx, wasi.Invocation{
		Contract: contract,
		Sender:   sender,
		Function: entry,
		Args:     msg,
	})
	if err != nil {
		return nil, err
	}
	var resp core.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode contract response: %w", err)
	}
	return &resp, nil
}

// check runs the code's read-only validation of msg, if it has one.
func (e *Engine) check(code Code, entry string, contract, sender core.Address, msg []byte) error {
	if code.Check == nil {
		return nil
	}
	return code.Check(newReadOnlyContext(e.ctx, contract, sender), entry, msg)
}

func (e *Engine) checkMessage(msg []byte) error {
	if uint64(len(msg)) > e.config.MaxMessageSize {
		return fmt.Errorf("%w: message of %d bytes exceeds limit of %d", core.ErrInvalidMessage, len(msg), e.config.MaxMessageSize)
	}
	return nil
}

// beginTransaction opens the next block and records the call as its only
// transaction.
func (e *Engine) beginTransaction(contract, sender core.Address, msg []byte) error {
	height := e.ctx.BlockHeight() + 1
	now := e.now()

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], height)
	binary.BigEndian.PutUint64(buf[8:], uint64(now.UnixNano()))
	if err := e.ctx.SetBlockInfo(height, now.Unix(), core.GetHash(buf[:])); err != nil {
		return fmt.Errorf("%w: set block info: %w", core.ErrStorage, err)
	}

	data := make([]byte, 0, 2*len(contract)+len(msg)+8)
	data = append(data, contract[:]...)
	data = append(data, sender[:]...)
	data = append(data, msg...)
	data = binary.BigEndian.AppendUint64(data, height)
	if err := e.ctx.SetTransactionInfo(core.GetHash(data), sender, contract, 0); err != nil {
		return fmt.Errorf("%w: set transaction info: %w", core.ErrStorage, err)
	}
	return nil
}

// Close releases the WASM runtime and the blockchain context.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.wazeroVM != nil {
		errs = append(errs, e.wazeroVM.Close())
	}
	if e.ctx != nil {
		errs = append(errs, e.ctx.Close())
	}
	return errors.Join(errs...)
}
