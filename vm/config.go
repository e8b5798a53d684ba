package vm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/govm-net/counter/api"
	"gopkg.in/yaml.v3"
)

// Config represents engine configuration
type Config struct {
	// Contract related configuration
	MaxContractSize  uint64         `yaml:"max_contract_size"`  // Maximum WASM contract size
	MaxMessageSize   uint64         `yaml:"max_message_size"`   // Maximum message size
	MaxMemoryPages   uint32         `yaml:"max_memory_pages"`   // Linear memory cap of a WASM instance
	WASIContractsDir string         `yaml:"wasi_contracts_dir"` // WASI contract storage directory, empty disables WASM
	CodeManagerDir   string         `yaml:"code_manager_dir"`   // Instance repository directory
	ContextType      string         `yaml:"context_type"`       // Blockchain context type
	ContextParams    map[string]any `yaml:"context_params"`     // Blockchain context parameters
	LogLevel         string         `yaml:"log_level"`
}

// DefaultConfig returns an in-memory configuration rooted at dataDir.
func DefaultConfig(dataDir string) *Config {
	limits := api.DefaultContractConfig()
	return &Config{
		MaxContractSize: limits.MaxCodeSize,
		MaxMessageSize:  limits.MaxMessageSize,
		MaxMemoryPages:  limits.MaxMemoryPages,
		CodeManagerDir:  filepath.Join(dataDir, "instances"),
		ContextType:     "memory",
		ContextParams:   map[string]any{},
		LogLevel:        "info",
	}
}

// LoadConfig reads a YAML config file. Keys missing from the file keep
// the values of DefaultConfig(dataDir).
func LoadConfig(path, dataDir string) (*Config, error) {
	config := DefaultConfig(dataDir)
	if err := config.Load(path); err != nil {
		return nil, err
	}
	return config, nil
}

// Load layers a YAML config file over c. Keys missing from the file keep
// their current values.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if c.ContextParams == nil {
		c.ContextParams = map[string]any{}
	}
	return nil
}

// ContractConfig returns the limits applied to contract invocations.
func (c *Config) ContractConfig() api.ContractConfig {
	return api.ContractConfig{
		MaxMessageSize: c.MaxMessageSize,
		MaxCodeSize:    c.MaxContractSize,
		MaxMemoryPages: c.MaxMemoryPages,
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if config.MaxContractSize == 0 {
		return fmt.Errorf("invalid max contract size: %d", config.MaxContractSize)
	}

	if config.MaxMessageSize == 0 {
		return fmt.Errorf("invalid max message size: %d", config.MaxMessageSize)
	}

	if config.CodeManagerDir == "" {
		return fmt.Errorf("code manager directory is empty")
	}

	return nil
}
