package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairLedger/internal/bank"
	"pairLedger/internal/ledger"
	"pairLedger/internal/model"
	"pairLedger/internal/storage"
	"pairLedger/internal/storage/postgres"
)

// stores bundles the event sink and snapshot store of a command.
type stores struct {
	events    storage.Storage
	snapshots ledger.SnapshotStore
	close     func()
}

func openStores(ctx context.Context, pgDSN, eventsPath, snapshotPath string, logger *zap.Logger) (stores, error) {
	if pgDSN != "" {
		store, err := postgres.NewStore(ctx, pgDSN)
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("using postgres storage", zap.String("pg_dsn", redactDSN(pgDSN)))
		return stores{events: store.EventSink(ctx), snapshots: store, close: store.Close}, nil
	}

	if eventsPath == "" {
		return stores{}, fmt.Errorf("events output path is required")
	}
	return stores{
		events:    storage.NewJsonlStorage(eventsPath),
		snapshots: &ledger.FileSnapshotStore{Path: snapshotPath},
		close:     func() {},
	}, nil
}

// loadBank seeds the in-memory bank from the first balances file that exists.
func loadBank(custody common.Address, logger *zap.Logger, paths ...string) (*bank.Bank, error) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat balances: %w", err)
		}
		genesis, err := bank.LoadGenesis(path)
		if err != nil {
			return nil, err
		}
		logger.Info("load balances", zap.String("path", path), zap.Int("entries", len(genesis.Balances)))
		return bank.FromGenesis(custody, genesis, logger)
	}
	logger.Warn("no balances loaded, every transfer will fail until accounts are funded")
	return bank.FromGenesis(custody, model.Genesis{}, logger)
}

func parseCustody(input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid custody address %q", input)
	}
	return common.HexToAddress(input), nil
}
