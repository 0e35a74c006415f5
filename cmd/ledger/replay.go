package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairLedger/internal/config"
	"pairLedger/internal/ledger"
	"pairLedger/internal/replay"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	custody, err := parseCustody(cfg.Custody)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg.PGDSN, cfg.Out, cfg.Snapshot, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// A checkpoint means an earlier run already moved balances.
	balanceSources := []string{cfg.Genesis}
	if cfg.CheckpointEnabled {
		if _, ok, err := replay.NewCheckpointStore(cfg.Checkpoint, true).Load(); err != nil {
			return err
		} else if ok {
			balanceSources = []string{cfg.Balances, cfg.Genesis}
		}
	}
	b, err := loadBank(custody, logger, balanceSources...)
	if err != nil {
		return err
	}

	events := replay.NewEventBuffer()
	l := ledger.New(ledger.Config{
		Custody:   custody,
		Notifiers: []ledger.Notifier{events},
	}, b, logger)

	runner := replay.NewRunner(replay.RunConfig{
		InputPath:         cfg.In,
		ErrorsPath:        cfg.Errors,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		Balances:          b,
		BalancesPath:      cfg.Balances,
	}, l, events, st.events, st.snapshots, logger)

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.String("custody", custody.Hex()),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	stats, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("replay complete",
		zap.Uint64("lines", stats.Lines),
		zap.Uint64("applied", stats.Applied),
		zap.Uint64("rejected", stats.Rejected),
		zap.Uint64("events", stats.Events),
		zap.Uint64("last_seq", stats.LastSeq),
	)
	return nil
}
