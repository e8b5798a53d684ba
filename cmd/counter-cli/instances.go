package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/govm-net/counter/abi"
	"github.com/govm-net/counter/core"
	"github.com/spf13/cobra"
)

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List contract instances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		list, err := engine.Instances()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ADDRESS\tCODE\tRUNTIME\tCREATOR\tCREATED")
		for _, inst := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				inst.Address, inst.Code, inst.Runtime, inst.Creator, inst.CreateTime.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <address>",
	Short: "List the events of a contract instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contract, err := core.ParseAddress(args[0])
		if err != nil {
			return err
		}
		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		events, err := engine.Events(contract)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(events)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "BLOCK\tEVENT\tTX\tATTRIBUTES")
		for _, ev := range events {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%v\n", ev.BlockHeight, ev.Name, ev.TxHash, ev.KeyValues)
		}
		return tw.Flush()
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema [code]",
	Short: "Print the message schema of a code",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		name := "counter"
		if len(args) == 1 {
			name = args[0]
		}
		schema, err := engine.Schema(name)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(schema)
		}
		for _, fn := range schema.Functions {
			fmt.Printf("%-12s %-14s", fn.Kind, abi.DisplayName(fn.Name))
			for _, in := range fn.Inputs {
				fmt.Printf(" %s:%s", in.Name, in.Type)
			}
			if fn.Output != "" {
				fmt.Printf(" -> %s", fn.Output)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	schemaCmd.Flags().Bool("json", false, "Print the schema as JSON")
	eventsCmd.Flags().Bool("json", false, "Print the events as JSON")
}
