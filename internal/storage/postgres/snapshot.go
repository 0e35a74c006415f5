package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pairLedger/internal/model"
)

const snapshotStateName = "snapshot_seq"

// SaveSnapshot replaces the stored pool state with snap in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.LedgerSnapshot) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM pool_shares`); err != nil {
			return fmt.Errorf("clear pool shares: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM pools`); err != nil {
			return fmt.Errorf("clear pools: %w", err)
		}

		batch := &pgx.Batch{}
		queued := 0
		for _, pool := range snap.Pools {
			batch.Queue(`
				INSERT INTO pools (token0, token1, reserve0, reserve1, total_shares, updated_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, pool.Token0, pool.Token1, pool.Reserve0, pool.Reserve1, pool.TotalShares)
			queued++
			for _, share := range pool.Shares {
				batch.Queue(`
					INSERT INTO pool_shares (token0, token1, provider, shares)
					VALUES ($1, $2, $3, $4)
				`, pool.Token0, pool.Token1, share.Provider, share.Shares)
				queued++
			}
		}
		batch.Queue(saveStateSQL, snapshotStateName, int64(snap.LastSeq))
		queued++

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < queued; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("write snapshot: %w", err)
			}
		}
		return br.Close()
	})
}

// LoadSnapshot reads the stored pool state. It reports false when no snapshot
// was ever saved.
func (s *Store) LoadSnapshot(ctx context.Context) (model.LedgerSnapshot, bool, error) {
	lastSeq, ok, err := s.LoadState(ctx, snapshotStateName)
	if err != nil || !ok {
		return model.LedgerSnapshot{}, false, err
	}

	snap := model.LedgerSnapshot{LastSeq: lastSeq}
	rows, err := s.pool.Query(ctx, `
		SELECT token0, token1, reserve0::text, reserve1::text, total_shares::text
		FROM pools ORDER BY token0, token1
	`)
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("query pools: %w", err)
	}
	index := make(map[[2]string]int)
	for rows.Next() {
		var p model.PoolSnapshot
		if err := rows.Scan(&p.Token0, &p.Token1, &p.Reserve0, &p.Reserve1, &p.TotalShares); err != nil {
			rows.Close()
			return model.LedgerSnapshot{}, false, fmt.Errorf("scan pool: %w", err)
		}
		index[[2]string{p.Token0, p.Token1}] = len(snap.Pools)
		snap.Pools = append(snap.Pools, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("read pools: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT token0, token1, provider, shares::text
		FROM pool_shares ORDER BY token0, token1, provider
	`)
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("query pool shares: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var token0, token1 string
		var entry model.ShareEntry
		if err := rows.Scan(&token0, &token1, &entry.Provider, &entry.Shares); err != nil {
			return model.LedgerSnapshot{}, false, fmt.Errorf("scan pool share: %w", err)
		}
		i, ok := index[[2]string{token0, token1}]
		if !ok {
			return model.LedgerSnapshot{}, false, fmt.Errorf("share for unknown pool %s/%s", token0, token1)
		}
		snap.Pools[i].Shares = append(snap.Pools[i].Shares, entry)
	}
	if err := rows.Err(); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("read pool shares: %w", err)
	}
	return snap, true, nil
}
