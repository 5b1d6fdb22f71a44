package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/shadowkit/internal/logger"
	"github.com/joshuapare/shadowkit/shadow"
	"github.com/joshuapare/shadowkit/shadow/driver"
	"github.com/joshuapare/shadowkit/shadow/opseq"
)

var (
	runMode      string
	runSeed      uint64
	runRuns      int
	runMaxOps    int
	runMaxLen    uint64
	runMemSize   uint64
	runStackSize uint64
	runCheck     bool
)

func init() {
	cmd := newRunCmd()
	def := shadow.DefaultLayout()
	cmd.Flags().StringVar(&runMode, "mode", "buggy", "Sequence mode (valid, buggy)")
	cmd.Flags().Uint64Var(&runSeed, "seed", 1, "Seed of the first run; run i uses seed+i")
	cmd.Flags().IntVar(&runRuns, "runs", 100, "Number of sequences to check")
	cmd.Flags().IntVar(&runMaxOps, "max-ops", opseq.DefaultMaxOps, "Maximum operations per sequence")
	cmd.Flags().Uint64Var(&runMaxLen, "max-len", opseq.DefaultMaxLen, "Maximum length of generated allocations and accesses")
	cmd.Flags().Uint64Var(&runMemSize, "mem-size", def.MemSize, "Size of the address space in bytes")
	cmd.Flags().Uint64Var(&runStackSize, "stack-size", def.MaxStackSize, "Size of the stack region in bytes")
	cmd.Flags().BoolVar(&runCheck, "check", false, "Verify tracker/oracle invariants after every step")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check the tracker against the oracle on random sequences",
		Long: `The run command generates seeded operation sequences, applies each
operation to the shadow tracker and compares its verdict with the reference
oracle's prediction. It stops at the first disagreement and prints the seed
that reproduces it.

Modes:
  valid - only operations that must succeed; any error is a failure
  buggy - random operations, valid and invalid

Example:
  shadowctl run --mode buggy --runs 1000
  shadowctl run --mode valid --seed 42 --check
  shadowctl run --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context())
		},
	}
	return cmd
}

type runSummary struct {
	Session string        `json:"session"`
	Mode    string        `json:"mode"`
	Seed    uint64        `json:"seed"`
	Runs    int           `json:"runs"`
	Failed  bool          `json:"failed"`
	Error   string        `json:"error,omitempty"`
	BadSeed *uint64       `json:"bad_seed,omitempty"`
	Report  driver.Report `json:"report"`
}

func runRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mode, err := opseq.ParseMode(runMode)
	if err != nil {
		return err
	}
	if runRuns <= 0 {
		return errors.New("--runs must be positive")
	}
	cfg := opseq.Config{
		Layout: shadow.Layout{MemSize: runMemSize, MaxStackSize: runStackSize},
		Mode:   mode,
		MaxOps: runMaxOps,
		MaxLen: runMaxLen,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	summary := runSummary{
		Session: uuid.NewString(),
		Mode:    mode.String(),
		Seed:    runSeed,
	}
	log := logger.L.With("session", summary.Session, "mode", summary.Mode)
	log.Info("run started", "seed", runSeed, "runs", runRuns)

	var runErr error
	for i := range runRuns {
		seed := runSeed + uint64(i)
		seq, err := opseq.FromSeed(cfg, seed)
		if err != nil {
			return err
		}
		printVerbose("seed %d\n", seed)
		rep, err := driver.Run(ctx, cfg.Layout, seq.All(), driver.Options{
			Strict:          mode == opseq.ModeValid,
			CheckInvariants: runCheck,
			Logger:          log.With("seed", seed),
		})
		summary.Runs++
		summary.Report.Merge(rep)
		if err != nil {
			summary.Failed = true
			summary.Error = err.Error()
			summary.BadSeed = &seed
			runErr = fmt.Errorf("seed %d: %w", seed, err)
			log.Error("run failed", "seed", seed, "error", err)
			break
		}
	}
	log.Info("run finished", "runs", summary.Runs, "steps", summary.Report.Steps, "failed", summary.Failed)

	if jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
		return runErr
	}

	p := message.NewPrinter(language.English)
	printInfo("Session %s (%s mode)\n\n", summary.Session, summary.Mode)
	printInfo("%s", p.Sprintf("Sequences:  %d\n", summary.Runs))
	printInfo("%s", p.Sprintf("Operations: %d\n", summary.Report.Steps))
	printInfo("%s", p.Sprintf("Accepted:   %d\n", summary.Report.Accepted))
	for _, k := range shadow.Kinds() {
		if n := summary.Report.RejectedBy(k); n > 0 {
			printInfo("%s", p.Sprintf("  %-14s %d\n", k.String()+":", n))
		}
	}
	if runErr != nil {
		printInfo("\nResult: ✗ MISMATCH (reproduce with --seed %d --runs 1)\n", *summary.BadSeed)
		return runErr
	}
	printInfo("\nResult: ✓ tracker and oracle agree\n")
	return nil
}
