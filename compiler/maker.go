// Package compiler builds WASM contracts from the guest packages of this
// module with TinyGo.
package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/govm-net/counter/api"
)

// ErrToolchainMissing is returned when tinygo is not on PATH.
var ErrToolchainMissing = errors.New("tinygo not found in PATH")

// CounterPackage is the guest package of the counter contract.
const CounterPackage = "./wasm/counter"

// BuildParams are passed to tinygo before the output and package arguments.
var BuildParams = []string{"build", "-target", "wasi", "-buildmode", "c-shared", "-opt", "z", "-no-debug"}

// Maker handles the compilation of guest packages.
type Maker struct {
	config     api.ContractConfig
	moduleRoot string
	tinygo     string
}

// NewMaker creates a maker that builds packages relative to moduleRoot.
func NewMaker(config api.ContractConfig, moduleRoot string) *Maker {
	return &Maker{
		config:     config,
		moduleRoot: moduleRoot,
		tinygo:     "tinygo",
	}
}

// Available reports whether the TinyGo toolchain can be found.
func (m *Maker) Available() bool {
	_, err := exec.LookPath(m.tinygo)
	return err == nil
}

// CompileContract builds pkg (a path relative to the module root, such as
// CounterPackage) and returns the validated WASM bytes.
func (m *Maker) CompileContract(pkg string) ([]byte, error) {
	tinygo, err := exec.LookPath(m.tinygo)
	if err != nil {
		return nil, ErrToolchainMissing
	}

	tmpDir, err := os.MkdirTemp("", "counter-contract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	wasmFile := filepath.Join(tmpDir, "contract.wasm")
	args := append(append([]string{}, BuildParams...), "-o", wasmFile, pkg)
	cmd := exec.Command(tinygo, args...)
	cmd.Dir = m.moduleRoot
	slog.Info("compiling contract", "package", pkg, "dir", m.moduleRoot)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("tinygo build failed: %s\nOutput: %s", err, string(output))
	}

	wasmCode, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read compiled wasm: %w", err)
	}
	if err := m.ValidateContract(wasmCode); err != nil {
		return nil, err
	}
	return wasmCode, nil
}

// ValidateContract checks the WASM header and the size limit.
func (m *Maker) ValidateContract(wasmCode []byte) error {
	if !bytes.HasPrefix(wasmCode, []byte("\x00asm")) {
		return errors.New("not a WebAssembly module")
	}
	if m.config.MaxCodeSize > 0 && uint64(len(wasmCode)) > m.config.MaxCodeSize {
		return fmt.Errorf("contract size exceeds maximum allowed size of %d bytes", m.config.MaxCodeSize)
	}
	return nil
}
