package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pairLedger/internal/model"
	"pairLedger/internal/storage"
)

// InsertEvents stores ledger events. Events already stored under the same
// sequence number are skipped, so replays after a crash are idempotent.
func (s *Store) InsertEvents(ctx context.Context, events []model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		decoded, err := json.Marshal(ev.Decoded)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", ev.Seq, err)
		}
		batch.Queue(`
			INSERT INTO ledger_events (
				seq, event_name, token0, token1, ts, decoded, reserve0, reserve1, total_shares, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
			ON CONFLICT (seq) DO NOTHING
		`,
			int64(ev.Seq),
			ev.EventName,
			ev.Token0,
			ev.Token1,
			int64(ev.Timestamp),
			decoded,
			ev.Reserve0,
			ev.Reserve1,
			ev.TotalShares,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return nil
}

// EventSink adapts the store to the storage.Storage interface.
func (s *Store) EventSink(ctx context.Context) storage.Storage {
	return &eventSink{ctx: ctx, store: s}
}

type eventSink struct {
	ctx   context.Context
	store *Store
}

func (e *eventSink) PutEventBatch(events []model.LedgerEvent) error {
	return e.store.InsertEvents(e.ctx, events)
}
