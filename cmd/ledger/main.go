package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "ledger",
		Short:        "Constant-product liquidity ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply a JSONL request stream to the ledger",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input requests JSONL")
	replayCmd.Flags().String("out", "./data/events.jsonl", "output ledger events JSONL")
	replayCmd.Flags().String("errors", "./data/request_errors.jsonl", "rejected requests JSONL")
	replayCmd.Flags().String("snapshot", "./data/snapshot.json", "snapshot file path")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN, replaces the event and snapshot files when set")
	replayCmd.Flags().String("genesis", "", "genesis balances JSON for the in-memory bank")
	replayCmd.Flags().String("balances", "./data/balances.json", "bank balances saved with every batch for resuming")
	replayCmd.Flags().String("custody", "", "custody account address")
	replayCmd.Flags().Uint64("batch-size", 500, "requests per batch")
	replayCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over JSON-RPC",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", "127.0.0.1:8645", "HTTP listen address")
	serveCmd.Flags().String("transferer", "memory", "asset backend (memory, erc20)")
	serveCmd.Flags().String("rpc", "", "EVM RPC URL for the erc20 backend and token metadata")
	serveCmd.Flags().String("custody-key", "", "custody private key for the erc20 backend")
	serveCmd.Flags().Uint64("gas-limit", 120_000, "gas limit per transfer, 0 estimates")
	serveCmd.Flags().String("genesis", "", "genesis balances JSON for the memory backend")
	serveCmd.Flags().String("custody", "", "custody account address for the memory backend")
	serveCmd.Flags().String("snapshot", "./data/snapshot.json", "snapshot file path")
	serveCmd.Flags().String("events", "./data/events.jsonl", "output ledger events JSONL")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN, replaces the event and snapshot files when set")
	serveCmd.Flags().Duration("lock-timeout", 30*time.Second, "maximum time a call may wait for its pool")
	serveCmd.Flags().Duration("settle-timeout", 2*time.Minute, "maximum time to wait for a broadcast transfer to be mined")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate ledger events into window metrics",
		RunE:  runReport,
	}

	reportCmd.Flags().String("rpc", "", "EVM RPC URL for token decimals")
	reportCmd.Flags().String("in", "", "input ledger events JSONL")
	reportCmd.Flags().String("out", "./data/window_metrics.jsonl", "output metrics JSONL when no Postgres DSN is set")
	reportCmd.Flags().String("window", "1h", "aggregation window (e.g. 5m, 1h, 24h)")
	reportCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	reportCmd.Flags().Int("batch-size", 1000, "batch size for metric writes")
	reportCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	reportCmd.Flags().Uint64("recompute-from", 0, "recompute from this event sequence")
	reportCmd.Flags().String("token-decimals", "", "decimals overrides (comma-separated address=decimals)")
	reportCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(reportCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
