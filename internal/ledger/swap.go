package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairLedger/internal/model"
)

// 0.3% of every input stays in the pool.
const (
	feeNumerator   = 997
	feeDenominator = 1000
)

// SwapResult describes a committed trade.
type SwapResult struct {
	Pair      PairKey
	AssetIn   common.Address
	AssetOut  common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	Seq       uint64
}

// Quote prices amountIn of assetIn against the current reserves. It returns
// zero for an empty pool, identical assets or a zero input.
func (l *Ledger) Quote(assetIn, assetOut common.Address, amountIn *uint256.Int) *uint256.Int {
	key, err := Canonicalize(assetIn, assetOut)
	if err != nil || amountIn == nil || amountIn.IsZero() {
		return new(uint256.Int)
	}
	reserve0, reserve1, _ := l.reg.reserves(key)
	reserveIn, reserveOut := orient(key, assetIn, &reserve0, &reserve1)
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return new(uint256.Int)
	}
	return amountOut(amountIn, reserveIn, reserveOut)
}

// Swap trades amountIn of assetIn for at least minAmountOut of assetOut.
// A nil minAmountOut accepts any positive output.
func (l *Ledger) Swap(ctx context.Context, assetIn, assetOut common.Address, amountIn, minAmountOut *uint256.Int, trader common.Address) (SwapResult, error) {
	res, err := l.swap(ctx, assetIn, assetOut, amountIn, minAmountOut, trader)
	l.observe(model.OpSwap, err)
	return res, err
}

func (l *Ledger) swap(ctx context.Context, assetIn, assetOut common.Address, amountIn, minAmountOut *uint256.Int, trader common.Address) (SwapResult, error) {
	key, err := Canonicalize(assetIn, assetOut)
	if err != nil {
		return SwapResult{}, err
	}
	if err := positive("amountIn", amountIn); err != nil {
		return SwapResult{}, err
	}
	in := amountIn.Clone()

	lctx, unlock, err := l.lockPool(ctx, key)
	if err != nil {
		return SwapResult{}, err
	}
	defer unlock()

	reserve0, reserve1, _ := l.reg.reserves(key)
	reserveIn, reserveOut := orient(key, assetIn, &reserve0, &reserve1)
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return SwapResult{}, fmt.Errorf("%w: pool %s is empty", ErrInsufficientLiquidity, key)
	}

	out := amountOut(in, reserveIn, reserveOut)
	if out.IsZero() {
		return SwapResult{}, fmt.Errorf("%w: input %s yields no output", ErrInsufficientLiquidity, FormatAmount(in))
	}
	if minAmountOut != nil && out.Lt(minAmountOut) {
		return SwapResult{}, fmt.Errorf("%w: output %s below minimum %s", ErrSlippageExceeded, FormatAmount(out), FormatAmount(minAmountOut))
	}

	nextIn, err := checkedAdd(reserveIn, in)
	if err != nil {
		return SwapResult{}, fmt.Errorf("reserve in %s: %w", key, err)
	}
	nextOut, err := checkedSub(reserveOut, out)
	if err != nil {
		return SwapResult{}, err
	}

	if err := l.pull(lctx, assetIn, trader, in); err != nil {
		return SwapResult{}, err
	}
	settle := context.WithoutCancel(lctx)
	if err := l.push(settle, assetOut, trader, out); err != nil {
		return SwapResult{}, l.compensate(err, func() error {
			return l.push(settle, assetIn, trader, in)
		}, "refund")
	}

	next0, next1 := nextIn, nextOut
	if key.Token0 != assetIn {
		next0, next1 = nextOut, nextIn
	}
	seq := l.reg.commitReserves(key, *next0, *next1)
	_, _, total := l.reg.reserves(key)
	l.notify(Event{
		Seq:         seq,
		Name:        model.EventSwapped,
		Pair:        key,
		Timestamp:   l.cfg.Clock(),
		Account:     trader,
		AssetIn:     assetIn,
		AssetOut:    assetOut,
		AmountIn:    in,
		AmountOut:   out,
		Reserve0:    next0,
		Reserve1:    next1,
		TotalShares: &total,
	})

	return SwapResult{Pair: key, AssetIn: assetIn, AssetOut: assetOut, AmountIn: in, AmountOut: out, Seq: seq}, nil
}

func orient(key PairKey, assetIn common.Address, reserve0, reserve1 *uint256.Int) (reserveIn, reserveOut *uint256.Int) {
	if key.Token0 == assetIn {
		return reserve0, reserve1
	}
	return reserve1, reserve0
}

// amountOut is floor(in*997*reserveOut / (reserveIn*1000 + in*997)). The
// result is always below reserveOut.
func amountOut(in, reserveIn, reserveOut *uint256.Int) *uint256.Int {
	inWithFee := new(big.Int).Mul(in.ToBig(), big.NewInt(feeNumerator))
	num := new(big.Int).Mul(inWithFee, reserveOut.ToBig())
	den := new(big.Int).Mul(reserveIn.ToBig(), big.NewInt(feeDenominator))
	den.Add(den, inWithFee)
	out, _ := uint256.FromBig(num.Quo(num, den))
	return out
}
