package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ai-trading-floor/internal/account"
	"ai-trading-floor/internal/floor"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/report"
	"ai-trading-floor/internal/report/reportobs"
	"ai-trading-floor/internal/store"
	"ai-trading-floor/internal/types"
)

var rootCmd = &cobra.Command{
	Use:          "floor",
	Short:        "Simulated stock trading floor run by autonomous traders",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run trading cycles until --cycles is reached or the process is interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := initializeSystem(configPath(cmd))
		if err != nil {
			return err
		}
		defer shutdownSystem()

		opts := floor.RunOptions{
			MaxCycles:       cfg.Floor.MaxTurns,
			InterCycleDelay: cfg.Floor.InterCycleDelay,
			TurnTimeout:     cfg.Floor.TurnTimeout,
		}
		if cmd.Flags().Changed("cycles") {
			opts.MaxCycles, _ = cmd.Flags().GetInt("cycles")
		}
		if cmd.Flags().Changed("delay") {
			opts.InterCycleDelay, _ = cmd.Flags().GetDuration("delay")
		}
		if cmd.Flags().Changed("turn-timeout") {
			opts.TurnTimeout, _ = cmd.Flags().GetDuration("turn-timeout")
		}
		return runFloor(cmd.Context(), cfg, opts)
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Show every configured account valued at current prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSystem(cmd, func(ctx context.Context, sys *system) error {
			rows, err := sys.summaries(ctx)
			if err != nil {
				return err
			}
			report.RenderAccounts(os.Stdout, rows)
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <name> <strategy>",
	Short: "Reset an account to its initial balance under a new strategy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSystem(cmd, func(ctx context.Context, sys *system) error {
			acct, err := account.Get(ctx, sys.store, args[0], account.Options{
				InitialBalance: decimal.NewFromFloat(sys.cfg.Trading.InitialBalance),
				Strategy:       args[1],
			})
			if err != nil {
				return err
			}
			if err := acct.Reset(ctx, args[1]); err != nil {
				return err
			}
			fmt.Printf("%s reset to %s with strategy %q\n", acct.Name(), acct.Balance().StringFixed(2), acct.Strategy())
			return nil
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write today's performance and trade CSVs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSystem(cmd, func(ctx context.Context, sys *system) error {
			rows, err := sys.summaries(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			p, err := report.WritePerformance(sys.cfg.Report.Dir, now, rows)
			if err != nil {
				return err
			}
			fmt.Println("Performance CSV written:", p)
			sys.writeTradeSummaries(ctx, now)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "config.yaml", "path to the YAML config")

	runCmd.Flags().Int("cycles", 0, "cycles to run, 0 runs until interrupted (default from floor.max_turns)")
	runCmd.Flags().Duration("delay", 0, "pause between cycles (default from floor.inter_cycle_delay)")
	runCmd.Flags().Duration("turn-timeout", 0, "deadline for one trader turn (default from floor.turn_timeout)")

	rootCmd.AddCommand(runCmd, accountsCmd, resetCmd, reportCmd)
}

func main() {
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error(ctx, "Command failed", "error", err.Error())
		os.Exit(1)
	}
}

func configPath(cmd *cobra.Command) string {
	p, err := cmd.Flags().GetString("config")
	if err != nil || p == "" {
		return "config.yaml"
	}
	return p
}

func withSystem(cmd *cobra.Command, fn func(ctx context.Context, sys *system) error) error {
	cfg, err := initializeSystem(configPath(cmd))
	if err != nil {
		return err
	}
	defer shutdownSystem()

	ctx := cmd.Context()
	sys, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer sys.Close()
	return fn(ctx, sys)
}

// runFloor builds the floor, records every cycle and runs it until the
// cycle limit or a signal. Reports are flushed on the way out either way.
func runFloor(ctx context.Context, cfg *store.Config, opts floor.RunOptions) error {
	sys, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer sys.Close()

	sys.compressOldLogs(ctx)

	traders, err := sys.initializeTraders(ctx)
	if err != nil {
		return err
	}
	f, err := floor.New(traders)
	if err != nil {
		return err
	}

	rep := reportobs.Wrap(report.NewRecorder(cfg.Report.Dir))
	if err := f.Subscribe(func(r types.CycleReport) { _ = rep.Record(r) }); err != nil {
		return err
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigc)
		close(done)
	}()
	go func() {
		select {
		case <-sigc:
			logger.Info(ctx, "Shutting down...")
			f.Stop()
		case <-done:
		}
	}()

	logger.Info(ctx, "Floor started",
		"traders", len(traders),
		"max_cycles", opts.MaxCycles,
		"turn_timeout", opts.TurnTimeout.String(),
	)
	runErr := f.Start(ctx, opts)

	_, _ = rep.Flush()
	sys.writeTradeSummaries(ctx, time.Now())

	report.RenderStatus(os.Stdout, f.Status())
	if rows, err := sys.summaries(context.WithoutCancel(ctx)); err == nil {
		report.RenderAccounts(os.Stdout, rows)
	}
	return runErr
}
