package main

import (
	"fmt"
	"os"

	"github.com/govm-net/counter/compiler"
	"github.com/spf13/cobra"
)

var (
	moduleRoot string
	outputFile string
)

var buildWasmCmd = &cobra.Command{
	Use:   "build-wasm",
	Short: "Compile the counter contract to WASM with TinyGo",
	Long: `Compile the counter guest package to WebAssembly.
Example: counter-cli build-wasm --module . -o counter.wasm`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		maker := compiler.NewMaker(cfg.ContractConfig(), moduleRoot)
		code, err := maker.CompileContract(compiler.CounterPackage)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outputFile, code, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outputFile, err)
		}
		fmt.Printf("Wrote %s (%d bytes)\n", outputFile, len(code))
		return nil
	},
}

func init() {
	buildWasmCmd.Flags().StringVar(&moduleRoot, "module", ".", "Root of the counter module source")
	buildWasmCmd.Flags().StringVarP(&outputFile, "output", "o", "counter.wasm", "Output file")
}
