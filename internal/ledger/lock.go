package ledger

import (
	"context"
	"fmt"
	"time"
)

type heldPoolsKey struct{}

// heldPools is the set of pools locked by the current call chain. It is
// copied on extension and never mutated once attached to a context.
type heldPools map[PairKey]struct{}

func holdsPool(ctx context.Context, key PairKey) bool {
	held, _ := ctx.Value(heldPoolsKey{}).(heldPools)
	_, ok := held[key]
	return ok
}

func withHeldPool(ctx context.Context, key PairKey) context.Context {
	prev, _ := ctx.Value(heldPoolsKey{}).(heldPools)
	next := make(heldPools, len(prev)+1)
	for k := range prev {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	return context.WithValue(ctx, heldPoolsKey{}, next)
}

// lockPool acquires the exclusive lock of a pool for one operation. Calls
// made with a context that already holds the pool are rejected instead of
// waiting on themselves. The returned context must be passed to every
// collaborator call made while the lock is held.
func (l *Ledger) lockPool(ctx context.Context, key PairKey) (context.Context, func(), error) {
	if holdsPool(ctx, key) {
		return nil, nil, fmt.Errorf("%w: pool %s is locked by the calling operation", ErrReentrancy, key)
	}

	var expired <-chan time.Time
	if l.cfg.LockTimeout > 0 {
		timer := time.NewTimer(l.cfg.LockTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	ch := l.reg.lockFor(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("lock pool %s: %w", key, ctx.Err())
	case <-expired:
		return nil, nil, fmt.Errorf("%w: pool %s busy for %s", ErrLockTimeout, key, l.cfg.LockTimeout)
	}

	return withHeldPool(ctx, key), func() { <-ch }, nil
}
