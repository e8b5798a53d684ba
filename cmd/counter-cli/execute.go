package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/govm-net/counter/core"
	"github.com/spf13/cobra"
)

var (
	sender       string
	initialValue uint64
	wasmFile     string
)

var instantiateCmd = &cobra.Command{
	Use:   "instantiate",
	Short: "Create a counter instance",
	Long: `Create a counter instance owned by the sender.
Example: counter-cli instantiate --sender alice --value 1
         counter-cli instantiate --sender alice --wasm counter.wasm -w .counter/wasm`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		msg, err := json.Marshal(map[string]uint64{"counter_value": initialValue})
		if err != nil {
			return err
		}
		from := core.ResolveAddress(sender)

		var (
			addr core.Address
			resp *core.Response
		)
		if wasmFile != "" {
			code, err := os.ReadFile(wasmFile)
			if err != nil {
				return fmt.Errorf("failed to read wasm file: %w", err)
			}
			addr, resp, err = engine.InstantiateWASM("counter", code, from, msg)
			if err != nil {
				return err
			}
		} else {
			addr, resp, err = engine.Instantiate("counter", from, msg)
			if err != nil {
				return err
			}
		}

		fmt.Printf("Contract address: %s\n", addr)
		return printJSON(resp)
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute <address> increment|decrement|reset [value]",
	Short: "Execute a counter message",
	Long: `Execute a counter message as the sender.
Example: counter-cli execute 1a2b... increment --sender alice
         counter-cli execute 1a2b... reset 5 --sender alice`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		contract, err := core.ParseAddress(args[0])
		if err != nil {
			return err
		}
		callArgs := map[string]any{}
		if len(args) == 3 {
			value, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[2], err)
			}
			callArgs["value"] = value
		}

		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		resp, err := engine.ExecuteFunction(contract, core.ResolveAddress(sender), args[1], callArgs)
		if err != nil {
			return fmt.Errorf("failed to execute contract: %w", err)
		}
		return printJSON(resp)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <address> [value|owner]",
	Short: "Query a counter",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		contract, err := core.ParseAddress(args[0])
		if err != nil {
			return err
		}
		function := "value"
		if len(args) == 2 {
			function = args[1]
		}

		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		out, err := engine.QueryFunction(contract, function, nil)
		if err != nil {
			return fmt.Errorf("failed to query contract: %w", err)
		}
		return printJSON(json.RawMessage(out))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{instantiateCmd, executeCmd} {
		cmd.Flags().StringVarP(&sender, "sender", "s", "", "Caller address in hex, or a name hashed into an address")
		cmd.MarkFlagRequired("sender")
	}
	instantiateCmd.Flags().Uint64Var(&initialValue, "value", 0, "Initial counter value")
	instantiateCmd.Flags().StringVar(&wasmFile, "wasm", "", "Run the instance from this compiled WASM file")
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
