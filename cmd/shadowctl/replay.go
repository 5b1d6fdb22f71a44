package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/shadowkit/internal/logger"
	"github.com/joshuapare/shadowkit/shadow/driver"
	"github.com/joshuapare/shadowkit/shadow/script"
)

var replayCheck bool

func init() {
	cmd := newReplayCmd()
	cmd.Flags().BoolVar(&replayCheck, "check", true, "Verify tracker/oracle invariants after every step")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Replay a scripted scenario",
		Long: `The replay command runs the operations of a YAML scenario through the
shadow tracker, checking each verdict against the oracle and against the
scenario's expect field.

Example:
  shadowctl replay use_after_free.yaml
  shadowctl replay use_after_free.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), args)
		},
	}
	return cmd
}

type stepJSON struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	Result  string `json:"result"`
	Expect  string `json:"expect,omitempty"`
	Modeled bool   `json:"modeled"`
}

func outcomeResult(o script.Outcome) string {
	if o.Err == nil {
		return script.ExpectOK
	}
	return o.Err.Error()
}

func replayScenario(ctx context.Context, path string) ([]script.Outcome, *driver.Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := script.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	printVerbose("Replaying %s (%d steps)\n", path, len(s.Steps))
	return script.Replay(ctx, s, driver.Options{
		CheckInvariants: replayCheck,
		Logger:          logger.L.With("scenario", path),
	})
}

func runReplay(ctx context.Context, args []string) error {
	path := args[0]
	outcomes, _, err := replayScenario(ctx, path)
	if outcomes == nil && err != nil {
		return err
	}

	if jsonOut {
		steps := make([]stepJSON, 0, len(outcomes))
		for _, o := range outcomes {
			steps = append(steps, stepJSON{
				Step:    o.Step,
				Op:      o.Op.String(),
				Result:  outcomeResult(o),
				Expect:  o.Expect,
				Modeled: o.Modeled,
			})
		}
		result := map[string]interface{}{
			"file":  path,
			"steps": steps,
			"ok":    err == nil,
		}
		if err != nil {
			result["error"] = err.Error()
		}
		if jerr := printJSON(result); jerr != nil {
			return jerr
		}
		return err
	}

	printInfo("\nReplaying %s...\n\n", path)
	for _, o := range outcomes {
		printInfo("  %3d  %-28s %s\n", o.Step, o.Op.String(), outcomeResult(o))
	}
	if err != nil {
		printInfo("\nResult: ✗ FAILED: %v\n", err)
		return fmt.Errorf("replay %s: %w", path, err)
	}
	printInfo("\nResult: ✓ %d steps as expected\n", len(outcomes))
	return nil
}
