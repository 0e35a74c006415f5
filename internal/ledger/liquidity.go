package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairLedger/internal/model"
)

// AddResult describes a committed deposit in canonical order.
type AddResult struct {
	Pair         PairKey
	Amount0      *uint256.Int
	Amount1      *uint256.Int
	SharesIssued *uint256.Int
	Seq          uint64
}

// RemoveResult describes a committed withdrawal in canonical order.
type RemoveResult struct {
	Pair         PairKey
	Amount0      *uint256.Int
	Amount1      *uint256.Int
	SharesBurned *uint256.Int
	Seq          uint64
}

// AddLiquidity deposits amountA of assetA and amountB of assetB from provider
// and issues pool shares. The first deposit into an empty pool issues
// floor(sqrt(amount0*amount1)); later deposits must match the reserve ratio
// exactly.
func (l *Ledger) AddLiquidity(ctx context.Context, assetA, assetB common.Address, amountA, amountB *uint256.Int, provider common.Address) (AddResult, error) {
	res, err := l.addLiquidity(ctx, assetA, assetB, amountA, amountB, provider)
	l.observe(model.OpAddLiquidity, err)
	return res, err
}

func (l *Ledger) addLiquidity(ctx context.Context, assetA, assetB common.Address, amountA, amountB *uint256.Int, provider common.Address) (AddResult, error) {
	key, err := Canonicalize(assetA, assetB)
	if err != nil {
		return AddResult{}, err
	}
	if err := positive("amountA", amountA); err != nil {
		return AddResult{}, err
	}
	if err := positive("amountB", amountB); err != nil {
		return AddResult{}, err
	}

	amount0, amount1 := amountA.Clone(), amountB.Clone()
	if key.Token0 != assetA {
		amount0, amount1 = amount1, amount0
	}

	lctx, unlock, err := l.lockPool(ctx, key)
	if err != nil {
		return AddResult{}, err
	}
	defer unlock()

	reserve0, reserve1, total := l.reg.reserves(key)
	held := l.reg.shareOf(key, provider)

	var share *uint256.Int
	if total.IsZero() {
		product, err := checkedMul(amount0, amount1)
		if err != nil {
			return AddResult{}, fmt.Errorf("bootstrap shares %s: %w", key, err)
		}
		share = Sqrt(product)
	} else {
		lhs := new(big.Int).Mul(amount0.ToBig(), reserve1.ToBig())
		rhs := new(big.Int).Mul(amount1.ToBig(), reserve0.ToBig())
		if lhs.Cmp(rhs) != 0 {
			return AddResult{}, fmt.Errorf("%w: deposit %s:%s against reserves %s:%s",
				ErrRatioMismatch, FormatAmount(amount0), FormatAmount(amount1), FormatAmount(&reserve0), FormatAmount(&reserve1))
		}
		share, err = mulDiv(amount0, &total, &reserve0)
		if err != nil {
			return AddResult{}, fmt.Errorf("proportional shares %s: %w", key, err)
		}
	}
	if share.IsZero() {
		return AddResult{}, fmt.Errorf("%w: deposit issues zero shares", ErrInsufficientShares)
	}

	next0, err := checkedAdd(&reserve0, amount0)
	if err != nil {
		return AddResult{}, fmt.Errorf("reserve0 %s: %w", key, err)
	}
	next1, err := checkedAdd(&reserve1, amount1)
	if err != nil {
		return AddResult{}, fmt.Errorf("reserve1 %s: %w", key, err)
	}
	nextTotal, err := checkedAdd(&total, share)
	if err != nil {
		return AddResult{}, fmt.Errorf("total shares %s: %w", key, err)
	}
	nextHeld, err := checkedAdd(&held, share)
	if err != nil {
		return AddResult{}, fmt.Errorf("provider shares %s: %w", key, err)
	}

	if err := l.pull(lctx, key.Token0, provider, amount0); err != nil {
		return AddResult{}, err
	}
	settle := context.WithoutCancel(lctx)
	if err := l.pull(settle, key.Token1, provider, amount1); err != nil {
		return AddResult{}, l.compensate(err, func() error {
			return l.push(settle, key.Token0, provider, amount0)
		}, "refund")
	}

	seq := l.reg.commit(key, *next0, *next1, *nextTotal, provider, *nextHeld)
	l.notify(Event{
		Seq:         seq,
		Name:        model.EventLiquidityAdded,
		Pair:        key,
		Timestamp:   l.cfg.Clock(),
		Account:     provider,
		Amount0:     amount0,
		Amount1:     amount1,
		Shares:      share,
		Reserve0:    next0,
		Reserve1:    next1,
		TotalShares: nextTotal,
	})

	return AddResult{Pair: key, Amount0: amount0, Amount1: amount1, SharesIssued: share, Seq: seq}, nil
}

// RemoveLiquidity burns shareAmount of provider's shares and pays out the
// proportional reserves, rounded down.
func (l *Ledger) RemoveLiquidity(ctx context.Context, assetA, assetB common.Address, shareAmount *uint256.Int, provider common.Address) (RemoveResult, error) {
	res, err := l.removeLiquidity(ctx, assetA, assetB, shareAmount, provider)
	l.observe(model.OpRemoveLiquidity, err)
	return res, err
}

func (l *Ledger) removeLiquidity(ctx context.Context, assetA, assetB common.Address, shareAmount *uint256.Int, provider common.Address) (RemoveResult, error) {
	key, err := Canonicalize(assetA, assetB)
	if err != nil {
		return RemoveResult{}, err
	}
	if err := positive("shareAmount", shareAmount); err != nil {
		return RemoveResult{}, err
	}
	burn := shareAmount.Clone()

	lctx, unlock, err := l.lockPool(ctx, key)
	if err != nil {
		return RemoveResult{}, err
	}
	defer unlock()

	reserve0, reserve1, total := l.reg.reserves(key)
	held := l.reg.shareOf(key, provider)
	if held.Lt(burn) {
		return RemoveResult{}, fmt.Errorf("%w: provider holds %s, requested %s", ErrInsufficientShares, FormatAmount(&held), FormatAmount(burn))
	}

	amount0, err := mulDiv(burn, &reserve0, &total)
	if err != nil {
		return RemoveResult{}, fmt.Errorf("withdraw amount0 %s: %w", key, err)
	}
	amount1, err := mulDiv(burn, &reserve1, &total)
	if err != nil {
		return RemoveResult{}, fmt.Errorf("withdraw amount1 %s: %w", key, err)
	}
	if amount0.IsZero() || amount1.IsZero() {
		return RemoveResult{}, fmt.Errorf("%w: burning %s shares returns %s:%s",
			ErrInsufficientLiquidity, FormatAmount(burn), FormatAmount(amount0), FormatAmount(amount1))
	}

	next0, err := checkedSub(&reserve0, amount0)
	if err != nil {
		return RemoveResult{}, err
	}
	next1, err := checkedSub(&reserve1, amount1)
	if err != nil {
		return RemoveResult{}, err
	}
	nextTotal, err := checkedSub(&total, burn)
	if err != nil {
		return RemoveResult{}, err
	}
	nextHeld, err := checkedSub(&held, burn)
	if err != nil {
		return RemoveResult{}, err
	}

	if err := l.push(lctx, key.Token0, provider, amount0); err != nil {
		return RemoveResult{}, err
	}
	settle := context.WithoutCancel(lctx)
	if err := l.push(settle, key.Token1, provider, amount1); err != nil {
		return RemoveResult{}, l.compensate(err, func() error {
			return l.pull(settle, key.Token0, provider, amount0)
		}, "reclaim")
	}

	seq := l.reg.commit(key, *next0, *next1, *nextTotal, provider, *nextHeld)
	l.notify(Event{
		Seq:         seq,
		Name:        model.EventLiquidityRemoved,
		Pair:        key,
		Timestamp:   l.cfg.Clock(),
		Account:     provider,
		Amount0:     amount0,
		Amount1:     amount1,
		Shares:      burn,
		Reserve0:    next0,
		Reserve1:    next1,
		TotalShares: nextTotal,
	})

	return RemoveResult{Pair: key, Amount0: amount0, Amount1: amount1, SharesBurned: burn, Seq: seq}, nil
}
