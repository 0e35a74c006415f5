package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairLedger/internal/api"
	"pairLedger/internal/chain"
	"pairLedger/internal/config"
	"pairLedger/internal/ledger"
	"pairLedger/internal/metrics"
	"pairLedger/internal/storage"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transferer, custody, closeBackend, err := newTransferer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	st, err := openStores(ctx, cfg.PGDSN, cfg.Events, cfg.Snapshot, logger)
	if err != nil {
		return err
	}
	defer st.close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	stream := storage.NewEventStream(st.events, 1024, time.Second, logger)
	l := ledger.New(ledger.Config{
		Custody:     custody,
		Notifiers:   []ledger.Notifier{recorder, stream},
		LockTimeout: cfg.LockTimeout,
	}, transferer, logger)

	restored, err := ledger.LoadInto(ctx, st.snapshots, l)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	snap := l.Snapshot()
	recorder.Seed(l.Pools(), snap.LastSeq)
	logger.Info("ledger ready", zap.Bool("restored", restored), zap.Int("pools", len(snap.Pools)), zap.Uint64("last_seq", snap.LastSeq))

	rpcServer, err := api.NewServer(api.NewLedgerAPI(l, logger))
	if err != nil {
		return fmt.Errorf("register api: %w", err)
	}
	defer rpcServer.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", rpcServer)
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	streamCtx, stopStream := context.WithCancel(context.Background())
	streamDone := make(chan error, 1)
	go func() { streamDone <- stream.Run(streamCtx) }()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("serve start",
			zap.String("listen", cfg.Listen),
			zap.String("transferer", cfg.Transferer),
			zap.String("custody", custody.Hex()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	stopStream()
	if err := <-streamDone; err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("flush events: %w", err))
	}

	final := l.Snapshot()
	if st.snapshots != nil {
		if err := st.snapshots.SaveSnapshot(shutdownCtx, final); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("save snapshot: %w", err))
		}
	}
	logger.Info("serve stopped", zap.Uint64("last_seq", final.LastSeq), zap.Int("pools", len(final.Pools)))
	return runErr
}

func newTransferer(ctx context.Context, cfg config.ServeConfig, logger *zap.Logger) (ledger.Transferer, common.Address, func(), error) {
	switch cfg.Transferer {
	case config.TransfererMemory:
		custody, err := parseCustody(cfg.Custody)
		if err != nil {
			return nil, common.Address{}, nil, err
		}
		b, err := loadBank(custody, logger, cfg.Genesis)
		if err != nil {
			return nil, common.Address{}, nil, err
		}
		return b, custody, func() {}, nil
	case config.TransfererERC20:
		if cfg.RPCURL == "" {
			return nil, common.Address{}, nil, fmt.Errorf("rpc url is required")
		}
		if cfg.CustodyKey == "" {
			return nil, common.Address{}, nil, fmt.Errorf("custody key is required")
		}
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return nil, common.Address{}, nil, fmt.Errorf("connect rpc: %w", err)
		}
		chainID, err := chainClient.GetChainID(ctx)
		if err != nil {
			chainClient.Close()
			return nil, common.Address{}, nil, fmt.Errorf("get chain id: %w", err)
		}
		t, err := chain.NewERC20Transferer(chain.TransfererConfig{
			ChainID:       chainID,
			CustodyKey:    cfg.CustodyKey,
			GasLimit:      cfg.GasLimit,
			SettleTimeout: cfg.SettleTimeout,
		}, chainClient, logger)
		if err != nil {
			chainClient.Close()
			return nil, common.Address{}, nil, err
		}
		logger.Info("erc20 settlement", zap.String("chain_id", chainID.String()), zap.String("custody", t.Custody().Hex()))
		return t, t.Custody(), chainClient.Close, nil
	default:
		return nil, common.Address{}, nil, fmt.Errorf("unknown transferer %q", cfg.Transferer)
	}
}
