package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"pairLedger/internal/bank"
	"pairLedger/internal/ledger"
	"pairLedger/internal/model"
	"pairLedger/internal/storage"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	InputPath         string
	ErrorsPath        string
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	// Balances, when set, is written to BalancesPath with every batch so a
	// resumed run sees the account balances that match the snapshot.
	Balances     BalanceExporter
	BalancesPath string
}

// BalanceExporter exposes account balances in genesis form.
type BalanceExporter interface {
	Export() model.Genesis
}

// Stats summarizes a finished replay.
type Stats struct {
	Lines    uint64
	Applied  uint64
	Rejected uint64
	Events   uint64
	LastSeq  uint64
}

// Runner applies a JSONL stream of requests to a ledger and persists the
// resulting events and snapshots batch by batch.
type Runner struct {
	cfg        RunConfig
	ledger     *ledger.Ledger
	events     *EventBuffer
	storage    storage.Storage
	snapshots  ledger.SnapshotStore
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner. events must be registered as a notifier on l.
func NewRunner(cfg RunConfig, l *ledger.Ledger, events *EventBuffer, storageSink storage.Storage, snapshots ledger.SnapshotStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		ledger:     l,
		events:     events,
		storage:    storageSink,
		snapshots:  snapshots,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the replay loop.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if r.ledger == nil {
		return stats, fmt.Errorf("ledger is nil")
	}
	if r.events == nil {
		return stats, fmt.Errorf("event buffer is nil")
	}
	if r.storage == nil {
		return stats, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return stats, fmt.Errorf("batch size must be greater than zero")
	}

	var skipThrough uint64
	cp, resumed, err := r.checkpoint.Load()
	if err != nil {
		return stats, err
	}
	if resumed {
		restored, err := ledger.LoadInto(ctx, r.snapshots, r.ledger)
		if err != nil {
			return stats, fmt.Errorf("restore snapshot: %w", err)
		}
		if !restored {
			return stats, fmt.Errorf("checkpoint at line %d has no snapshot to resume from", cp.LastProcessedLine)
		}
		if seq := r.ledger.Snapshot().LastSeq; seq != cp.LastSeq {
			return stats, fmt.Errorf("snapshot at seq %d does not match checkpoint seq %d at line %d", seq, cp.LastSeq, cp.LastProcessedLine)
		}
		skipThrough = cp.LastProcessedLine
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedLine), zap.Uint64("last_seq", cp.LastSeq))
	}

	in, err := os.Open(r.cfg.InputPath)
	if err != nil {
		return stats, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	var rejects *storage.JSONLWriter
	if r.cfg.ErrorsPath != "" {
		rejects, err = storage.NewJSONLWriter(r.cfg.ErrorsPath, resumed)
		if err != nil {
			return stats, fmt.Errorf("open errors output: %w", err)
		}
		defer rejects.Close()
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var (
		lineNo  uint64
		pending uint64
	)
	for scanner.Scan() {
		lineNo++
		if lineNo <= skipThrough {
			continue
		}

		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.Lines++
		pending++

		var req model.Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			stats.Rejected++
			if err := r.reject(rejects, lineNo, "", fmt.Errorf("%w: parse request: %w", ledger.ErrInvalidInput, err)); err != nil {
				return stats, err
			}
		} else if err := Apply(ctx, r.ledger, req); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			stats.Rejected++
			if err := r.reject(rejects, lineNo, req.Op, err); err != nil {
				return stats, err
			}
		} else {
			stats.Applied++
		}

		if pending >= r.cfg.BatchSize {
			n, err := r.flush(ctx, rejects, lineNo)
			if err != nil {
				return stats, err
			}
			stats.Events += n
			pending = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}

	if pending > 0 {
		n, err := r.flush(ctx, rejects, lineNo)
		if err != nil {
			return stats, err
		}
		stats.Events += n
	}

	stats.LastSeq = r.ledger.Snapshot().LastSeq
	return stats, nil
}

func (r *Runner) reject(w *storage.JSONLWriter, line uint64, op string, cause error) error {
	r.logger.Debug("request rejected", zap.Uint64("line", line), zap.String("op", op), zap.Error(cause))
	if w == nil {
		return nil
	}
	rec := model.RequestError{
		Line:  line,
		Op:    op,
		Kind:  ledger.Kind(cause),
		Error: cause.Error(),
	}
	if err := w.Write(rec); err != nil {
		return fmt.Errorf("write request error: %w", err)
	}
	return nil
}

// flush persists buffered events and the current snapshot, then records
// lastLine as processed.
func (r *Runner) flush(ctx context.Context, rejects *storage.JSONLWriter, lastLine uint64) (uint64, error) {
	events := r.events.Drain()
	if len(events) > 0 {
		err := retry(ctx, r.logger, "store events", r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			return r.storage.PutEventBatch(events)
		})
		if err != nil {
			return 0, fmt.Errorf("store events: %w", err)
		}
	}

	snap := r.ledger.Snapshot()
	if r.snapshots != nil {
		err := retry(ctx, r.logger, "save snapshot", r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			return r.snapshots.SaveSnapshot(ctx, snap)
		})
		if err != nil {
			return 0, fmt.Errorf("save snapshot: %w", err)
		}
	}

	if r.cfg.Balances != nil && r.cfg.BalancesPath != "" {
		if err := bank.SaveGenesis(r.cfg.BalancesPath, r.cfg.Balances.Export()); err != nil {
			return 0, fmt.Errorf("save balances: %w", err)
		}
	}

	if err := rejects.Flush(); err != nil {
		return 0, fmt.Errorf("flush errors output: %w", err)
	}
	if err := r.checkpoint.Save(lastLine, snap.LastSeq); err != nil {
		return 0, err
	}

	r.logger.Info("batch complete", zap.Int("events", len(events)), zap.Uint64("line", lastLine), zap.Uint64("seq", snap.LastSeq))
	return uint64(len(events)), nil
}
