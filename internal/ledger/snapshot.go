package ledger

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairLedger/internal/model"
)

// Snapshot captures every non-empty pool and the last event sequence number.
// Pools and share entries are sorted so equal states produce equal snapshots.
func (l *Ledger) Snapshot() model.LedgerSnapshot {
	l.reg.mu.RLock()
	defer l.reg.mu.RUnlock()

	keys := make([]PairKey, 0, len(l.reg.pools))
	for key := range l.reg.pools {
		keys = append(keys, key)
	}
	sortKeys(keys)

	snap := model.LedgerSnapshot{
		LastSeq: l.reg.seq,
		Pools:   make([]model.PoolSnapshot, 0, len(keys)),
	}
	for _, key := range keys {
		p := l.reg.pools[key]
		entry := model.PoolSnapshot{
			Token0:      key.Token0.Hex(),
			Token1:      key.Token1.Hex(),
			Reserve0:    FormatAmount(&p.reserve0),
			Reserve1:    FormatAmount(&p.reserve1),
			TotalShares: FormatAmount(&p.totalShares),
			Shares:      make([]model.ShareEntry, 0, len(p.shares)),
		}
		providers := make([]common.Address, 0, len(p.shares))
		for provider := range p.shares {
			providers = append(providers, provider)
		}
		sort.Slice(providers, func(i, j int) bool {
			return bytes.Compare(providers[i].Bytes(), providers[j].Bytes()) < 0
		})
		for _, provider := range providers {
			share := p.shares[provider]
			entry.Shares = append(entry.Shares, model.ShareEntry{
				Provider: provider.Hex(),
				Shares:   FormatAmount(&share),
			})
		}
		snap.Pools = append(snap.Pools, entry)
	}
	return snap
}

// Restore replaces the ledger state with snap after checking pool invariants.
// It must not run concurrently with ledger operations.
func (l *Ledger) Restore(snap model.LedgerSnapshot) error {
	pools := make(map[PairKey]*poolState, len(snap.Pools))
	for i, entry := range snap.Pools {
		key, p, err := restorePool(entry)
		if err != nil {
			return fmt.Errorf("restore pool %d: %w", i, err)
		}
		if _, dup := pools[key]; dup {
			return fmt.Errorf("restore pool %d: %w: duplicate pool %s", i, ErrInvalidInput, key)
		}
		if p.empty() {
			continue
		}
		pools[key] = p
	}

	l.reg.mu.Lock()
	l.reg.pools = pools
	l.reg.seq = snap.LastSeq
	l.reg.mu.Unlock()
	return nil
}

func restorePool(entry model.PoolSnapshot) (PairKey, *poolState, error) {
	token0, err := parseAddress(entry.Token0)
	if err != nil {
		return PairKey{}, nil, err
	}
	token1, err := parseAddress(entry.Token1)
	if err != nil {
		return PairKey{}, nil, err
	}
	key, err := Canonicalize(token0, token1)
	if err != nil {
		return PairKey{}, nil, err
	}
	if key.Token0 != token0 {
		return PairKey{}, nil, fmt.Errorf("%w: pool %s is not in canonical order", ErrInvalidInput, key)
	}

	p := &poolState{shares: make(map[common.Address]uint256.Int, len(entry.Shares))}
	for _, field := range []struct {
		dst   *uint256.Int
		value string
	}{
		{&p.reserve0, entry.Reserve0},
		{&p.reserve1, entry.Reserve1},
		{&p.totalShares, entry.TotalShares},
	} {
		v, err := ParseAmount(field.value)
		if err != nil {
			return PairKey{}, nil, err
		}
		field.dst.Set(v)
	}

	sum := new(uint256.Int)
	for _, share := range entry.Shares {
		provider, err := parseAddress(share.Provider)
		if err != nil {
			return PairKey{}, nil, err
		}
		if _, dup := p.shares[provider]; dup {
			return PairKey{}, nil, fmt.Errorf("%w: duplicate provider %s", ErrInvalidInput, provider.Hex())
		}
		v, err := ParseAmount(share.Shares)
		if err != nil {
			return PairKey{}, nil, err
		}
		if v.IsZero() {
			continue
		}
		if sum, err = checkedAdd(sum, v); err != nil {
			return PairKey{}, nil, err
		}
		p.shares[provider] = *v
	}

	if !sum.Eq(&p.totalShares) {
		return PairKey{}, nil, fmt.Errorf("%w: pool %s shares sum %s, total %s", ErrInvalidInput, key, FormatAmount(sum), FormatAmount(&p.totalShares))
	}
	if p.totalShares.IsZero() != (p.reserve0.IsZero() && p.reserve1.IsZero()) {
		return PairKey{}, nil, fmt.Errorf("%w: pool %s has inconsistent emptiness", ErrInvalidInput, key)
	}
	if !p.totalShares.IsZero() && (p.reserve0.IsZero() || p.reserve1.IsZero()) {
		return PairKey{}, nil, fmt.Errorf("%w: pool %s has a zero reserve", ErrInvalidInput, key)
	}
	return key, p, nil
}

func parseAddress(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", ErrInvalidInput, value)
	}
	return common.HexToAddress(value), nil
}
