// Package cmd defines the CLI for the jobharvester executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/config"
	"github.com/postly/job-harvester/internal/logging"
	"github.com/postly/job-harvester/internal/state"
	sysclock "github.com/postly/job-harvester/internal/clock/system"
)

var (
	cfgFile    string
	flagResume bool
	flagReset  bool
	flagStatus bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobharvester",
		Short: "Resumable job-posting harvester",
		Long: `jobharvester scrapes paginated job boards into CSV, JSON and
optionally Postgres. Progress is checkpointed after every page, so an
interrupted run can continue where it left off with --resume.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runHarvest,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.Flags().BoolVar(&flagResume, "resume", false, "continue from the existing checkpoint")
	cmd.Flags().BoolVar(&flagReset, "reset", false, "delete the checkpoint and exit")
	cmd.Flags().BoolVar(&flagStatus, "status", false, "print the checkpoint and exit")

	return cmd
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	if flagResume && flagReset {
		return errors.New("--resume and --reset are mutually exclusive")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		if flagStatus {
			// Status should work even with an incomplete config; fall
			// back to defaults for everything but the state path.
			return printStatusWithDefaults()
		}
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	clock := sysclock.New()
	stateMgr := state.New(cfg.State.Path, clock, logger)

	if flagStatus {
		return printStatus(stateMgr)
	}
	if flagReset {
		if err := stateMgr.Reset(); err != nil {
			return fmt.Errorf("reset checkpoint: %w", err)
		}
		logger.Info("checkpoint reset", zap.String("path", cfg.State.Path))
		return nil
	}
	if flagResume && !stateMgr.CanResume() {
		logger.Warn("nothing to resume, starting fresh")
	}
	if !flagResume && stateMgr.CanResume() {
		logger.Info("incomplete checkpoint found; starting fresh from page 0 (use --resume to continue it, --reset to discard it)",
			zap.Int("last_processed_page", stateMgr.Snapshot().LastProcessedPage))
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := buildApp(ctx, cfg, stateMgr, clock, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.Harvester.Run(ctx); err != nil {
		logger.Error("harvest failed", zap.Error(err))
		return err
	}
	return nil
}

func printStatus(mgr *state.Manager) error {
	snap := mgr.Snapshot()
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	if mgr.CanResume() {
		fmt.Fprintln(os.Stdout, "resumable: yes (run with --resume)")
	} else if snap.IsComplete {
		fmt.Fprintln(os.Stdout, "resumable: no (previous run completed)")
	} else {
		fmt.Fprintln(os.Stdout, "resumable: no (no progress recorded)")
	}
	return nil
}

func printStatusWithDefaults() error {
	clock := sysclock.New()
	return printStatus(state.New("state/scraper-state.json", clock, zap.NewNop()))
}

// Execute is the main entry point.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}
