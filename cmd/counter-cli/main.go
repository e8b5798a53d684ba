package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/govm-net/counter/vm"
	"github.com/spf13/cobra"
)

var (
	configFile  string
	dataDir     string
	contextType string
	dbPath      string
	repoDir     string
	wasmDir     string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "counter-cli",
	Short: "Counter contract command line tool",
	Long: `Counter contract command line tool for instantiating counters and
executing, querying and serving them.
State persists under --data-dir between invocations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return setupLogging(cfg.LogLevel)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "YAML config file")
	flags.StringVar(&dataDir, "data-dir", ".counter", "Directory for state and instances")
	flags.StringVar(&contextType, "context", "kv", "Storage context type (memory, db, kv)")
	flags.StringVar(&dbPath, "db", "", "Database file of the storage context (default <data-dir>/state.<context>)")
	flags.StringVarP(&repoDir, "repo", "r", "", "Instance repository directory (default <data-dir>/instances)")
	flags.StringVarP(&wasmDir, "wasm-dir", "w", "", "WASM contract directory, enables WASM instances")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(instantiateCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(instancesCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(buildWasmCmd)
}

// loadConfig builds the engine config: defaults, then the config file,
// then flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*vm.Config, error) {
	cfg := vm.DefaultConfig(dataDir)
	cfg.ContextType = contextType
	if configFile != "" {
		if err := cfg.Load(configFile); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("context") {
		cfg.ContextType = contextType
	}
	if flags.Changed("db") {
		cfg.ContextParams["db_path"] = dbPath
	}
	if flags.Changed("repo") {
		cfg.CodeManagerDir = repoDir
	}
	if flags.Changed("wasm-dir") {
		cfg.WASIContractsDir = wasmDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if _, ok := cfg.ContextParams["db_path"]; !ok && cfg.ContextType != "memory" {
		cfg.ContextParams["db_path"] = filepath.Join(dataDir, "state."+cfg.ContextType)
	}
	return cfg, nil
}

func setupLogging(level string) error {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// openEngine loads the config and opens an engine on it.
func openEngine(cmd *cobra.Command) (*vm.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if cfg.ContextType == "memory" {
		slog.Warn("memory context keeps no state between runs; instances in the repository will fail to load theirs",
			"repository", cfg.CodeManagerDir)
	}
	engine, err := vm.NewEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create VM engine: %w", err)
	}
	return engine, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
