package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Transferer moves assets between accounts on behalf of the ledger. A
// returned error is treated as a rejected transfer unless it wraps
// ErrUnconfirmedTransfer.
//
// Calls into the ledger made from inside a Transferer must use the context
// they were given: that context marks the pools held by the running
// operation. A nested call on a fresh context waits for the pool lock like
// any other caller and only fails once Config.LockTimeout elapses.
type Transferer interface {
	Transfer(ctx context.Context, asset, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, asset, account common.Address) (*uint256.Int, error)
}

// Notifier receives committed events. Notify runs while the pool lock is held
// and must not call back into the ledger.
type Notifier interface {
	Notify(Event)
}

// FailureObserver is implemented by notifiers that also track rejected
// operations.
type FailureObserver interface {
	ObserveFailure(op string, err error)
}

// Config controls ledger wiring.
type Config struct {
	// Custody is the account holding pooled assets.
	Custody     common.Address
	Clock       func() time.Time
	Notifiers   []Notifier
	// LockTimeout bounds the wait for a busy pool. Zero waits until the
	// caller's context ends.
	LockTimeout time.Duration
}

// Ledger tracks reserves and shares for canonical asset pairs.
type Ledger struct {
	cfg      Config
	transfer Transferer
	logger   *zap.Logger
	reg      *registry
}

// PoolInfo is a read-only view of one pool.
type PoolInfo struct {
	Pair        PairKey
	Reserve0    *uint256.Int
	Reserve1    *uint256.Int
	TotalShares *uint256.Int
}

func New(cfg Config, transferer Transferer, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Ledger{
		cfg:      cfg,
		transfer: transferer,
		logger:   logger,
		reg:      newRegistry(),
	}
}

// Custody returns the account holding pooled assets.
func (l *Ledger) Custody() common.Address {
	return l.cfg.Custody
}

// GetReserves returns the pool reserves in canonical order.
func (l *Ledger) GetReserves(assetA, assetB common.Address) (reserve0, reserve1 *uint256.Int, err error) {
	key, err := Canonicalize(assetA, assetB)
	if err != nil {
		return nil, nil, err
	}
	r0, r1, _ := l.reg.reserves(key)
	return &r0, &r1, nil
}

// GetShare returns the shares held by provider in the pool.
func (l *Ledger) GetShare(assetA, assetB, provider common.Address) (*uint256.Int, error) {
	key, err := Canonicalize(assetA, assetB)
	if err != nil {
		return nil, err
	}
	share := l.reg.shareOf(key, provider)
	return &share, nil
}

func (l *Ledger) TotalShares(assetA, assetB common.Address) (*uint256.Int, error) {
	key, err := Canonicalize(assetA, assetB)
	if err != nil {
		return nil, err
	}
	_, _, total := l.reg.reserves(key)
	return &total, nil
}

// Pools lists non-empty pools sorted by canonical key.
func (l *Ledger) Pools() []PoolInfo {
	keys := l.reg.keys()
	out := make([]PoolInfo, 0, len(keys))
	for _, key := range keys {
		r0, r1, total := l.reg.reserves(key)
		if total.IsZero() {
			continue
		}
		out = append(out, PoolInfo{Pair: key, Reserve0: &r0, Reserve1: &r1, TotalShares: &total})
	}
	return out
}

func (l *Ledger) notify(ev Event) {
	for _, n := range l.cfg.Notifiers {
		n.Notify(ev)
	}
	l.logger.Debug("ledger commit",
		zap.Uint64("seq", ev.Seq),
		zap.String("event", ev.Name),
		zap.String("pool", ev.Pair.String()),
		zap.String("reserve0", FormatAmount(ev.Reserve0)),
		zap.String("reserve1", FormatAmount(ev.Reserve1)),
	)
}

func (l *Ledger) observe(op string, err error) {
	if err == nil {
		return
	}
	for _, n := range l.cfg.Notifiers {
		if obs, ok := n.(FailureObserver); ok {
			obs.ObserveFailure(op, err)
		}
	}
	l.logger.Debug("ledger reject", zap.String("op", op), zap.String("kind", Kind(err)), zap.Error(err))
}

func (l *Ledger) pull(ctx context.Context, asset, from common.Address, amount *uint256.Int) error {
	if err := l.transfer.TransferFrom(ctx, asset, from, l.cfg.Custody, amount); err != nil {
		return settlementError(fmt.Sprintf("pull %s %s from %s", FormatAmount(amount), asset.Hex(), from.Hex()), err)
	}
	return nil
}

func (l *Ledger) push(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	if err := l.transfer.Transfer(ctx, asset, to, amount); err != nil {
		return settlementError(fmt.Sprintf("push %s %s to %s", FormatAmount(amount), asset.Hex(), to.Hex()), err)
	}
	return nil
}

func settlementError(what string, err error) error {
	if errors.Is(err, ErrUnconfirmedTransfer) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransferFailure, what, err)
}

// compensate reverts the settled first leg after the second leg failed. An
// unconfirmed second leg is reported as is and nothing is reverted.
func (l *Ledger) compensate(err error, undo func() error, what string) error {
	if errors.Is(err, ErrUnconfirmedTransfer) {
		l.logger.Error("settlement unconfirmed, "+what+" skipped", zap.Error(err))
		return err
	}
	if uerr := undo(); uerr != nil {
		l.logger.Error(what+" failed", zap.Error(uerr))
		return errors.Join(err, fmt.Errorf("%s: %w", what, uerr))
	}
	return err
}

func positive(name string, v *uint256.Int) error {
	if v == nil || v.IsZero() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidInput, name)
	}
	return nil
}
