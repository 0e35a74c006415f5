package ledger

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PairKey is the canonical ordered asset pair addressing one pool.
type PairKey struct {
	Token0 common.Address
	Token1 common.Address
}

func (k PairKey) String() string {
	return k.Token0.Hex() + "/" + k.Token1.Hex()
}

// Canonicalize orders two distinct assets by their byte representation.
func Canonicalize(assetA, assetB common.Address) (PairKey, error) {
	switch bytes.Compare(assetA.Bytes(), assetB.Bytes()) {
	case 0:
		return PairKey{}, fmt.Errorf("%w: identical assets %s", ErrInvalidInput, assetA.Hex())
	case -1:
		return PairKey{Token0: assetA, Token1: assetB}, nil
	default:
		return PairKey{Token0: assetB, Token1: assetA}, nil
	}
}

// poolState is the reserve/share ledger entry of one pair. A missing entry is
// the all-zero pool.
type poolState struct {
	reserve0    uint256.Int
	reserve1    uint256.Int
	totalShares uint256.Int
	shares      map[common.Address]uint256.Int
}

func (p *poolState) empty() bool {
	return p.totalShares.IsZero() && p.reserve0.IsZero() && p.reserve1.IsZero()
}

// registry maps canonical keys to pool state and per-pool locks.
type registry struct {
	mu    sync.RWMutex
	pools map[PairKey]*poolState
	locks map[PairKey]chan struct{}
	seq   uint64
}

func newRegistry() *registry {
	return &registry{
		pools: make(map[PairKey]*poolState),
		locks: make(map[PairKey]chan struct{}),
	}
}

func (r *registry) lockFor(key PairKey) chan struct{} {
	r.mu.RLock()
	ch, ok := r.locks[key]
	r.mu.RUnlock()
	if ok {
		return ch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok = r.locks[key]; !ok {
		ch = make(chan struct{}, 1)
		r.locks[key] = ch
	}
	return ch
}

// reserves returns copies of the pool totals.
func (r *registry) reserves(key PairKey) (reserve0, reserve1, totalShares uint256.Int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[key]
	if !ok {
		return
	}
	return p.reserve0, p.reserve1, p.totalShares
}

func (r *registry) shareOf(key PairKey, provider common.Address) uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[key]
	if !ok {
		return uint256.Int{}
	}
	return p.shares[provider]
}

// commit writes the new totals and one provider balance and returns the
// event sequence number. The caller holds the pool lock, so the values were
// computed against the current state.
func (r *registry) commit(key PairKey, reserve0, reserve1, totalShares uint256.Int, provider common.Address, share uint256.Int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[key]
	if !ok {
		p = &poolState{shares: make(map[common.Address]uint256.Int)}
		r.pools[key] = p
	}
	p.reserve0 = reserve0
	p.reserve1 = reserve1
	p.totalShares = totalShares
	if share.IsZero() {
		delete(p.shares, provider)
	} else {
		p.shares[provider] = share
	}
	if p.empty() {
		delete(r.pools, key)
	}
	r.seq++
	return r.seq
}

func (r *registry) commitReserves(key PairKey, reserve0, reserve1 uint256.Int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[key]; ok {
		p.reserve0 = reserve0
		p.reserve1 = reserve1
	}
	r.seq++
	return r.seq
}

func (r *registry) keys() []PairKey {
	r.mu.RLock()
	keys := make([]PairKey, 0, len(r.pools))
	for key := range r.pools {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	sortKeys(keys)
	return keys
}

func sortKeys(keys []PairKey) {
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].Token0.Bytes(), keys[j].Token0.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(keys[i].Token1.Bytes(), keys[j].Token1.Bytes()) < 0
	})
}
