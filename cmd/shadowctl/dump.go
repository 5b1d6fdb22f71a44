package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/shadowkit/shadow/oracle"
	"github.com/joshuapare/shadowkit/shadow/printer"
)

var dumpAll bool

func init() {
	cmd := newDumpCmd()
	cmd.Flags().BoolVar(&dumpAll, "all", false, "Include unallocated spans")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <scenario.yaml>",
		Short: "Replay a scenario and print the final shadow state",
		Long: `The dump command replays a YAML scenario and prints the resulting shadow
memory as spans of equal state, followed by the oracle's live allocations.
Replay stops at the first failed step; the state at that point is printed.

Example:
  shadowctl dump stack.yaml
  shadowctl dump stack.yaml --all
  shadowctl dump stack.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd.Context(), args)
		},
	}
	return cmd
}

func runDump(ctx context.Context, args []string) error {
	_, sess, err := replayScenario(ctx, args[0])
	if sess == nil {
		return err
	}
	if err != nil {
		printVerbose("replay stopped: %v\n", err)
	}

	opts := printer.DefaultOptions()
	opts.ShowUnallocated = dumpAll
	opts.Color = !noColor
	if jsonOut {
		opts.Format = printer.FormatJSON
	}
	p := printer.New(os.Stdout, opts)
	var allocs []oracle.Allocation
	if o := sess.Oracle(); o != nil {
		allocs = o.Allocations()
	}
	if perr := p.PrintState(sess.Tracker(), allocs); perr != nil {
		return perr
	}
	return err
}
