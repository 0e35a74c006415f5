package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"pairLedger/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	Token0      string
	Token1      string
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	AddCount    uint64
	RemoveCount uint64
	Volume0     *big.Int
	Volume1     *big.Int
	Fee0        *big.Int
	Fee1        *big.Int
	Reserve0    *big.Int
	Reserve1    *big.Int
	FirstSeq    uint64
	LastSeq     uint64
}

func NewAccumulator(record model.LedgerEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		Token0:      record.Token0,
		Token1:      record.Token1,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0:     big.NewInt(0),
		Volume1:     big.NewInt(0),
		Fee0:        big.NewInt(0),
		Fee1:        big.NewInt(0),
		Reserve0:    big.NewInt(0),
		Reserve1:    big.NewInt(0),
		FirstSeq:    record.Seq,
		LastSeq:     record.Seq,
	}
}

func (a *Accumulator) AddEvent(record model.LedgerEventRecord) error {
	if record.Seq < a.FirstSeq {
		a.FirstSeq = record.Seq
	}
	if record.Seq >= a.LastSeq {
		reserve0, err := parseBigInt(record.Reserve0)
		if err != nil {
			return fmt.Errorf("reserve0: %w", err)
		}
		reserve1, err := parseBigInt(record.Reserve1)
		if err != nil {
			return fmt.Errorf("reserve1: %w", err)
		}
		a.Reserve0, a.Reserve1 = reserve0, reserve1
		a.LastSeq = record.Seq
	}

	switch record.EventName {
	case model.EventSwapped:
		var swap model.SwappedData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		return a.applySwap(swap)
	case model.EventLiquidityAdded:
		a.AddCount++
	case model.EventLiquidityRemoved:
		a.RemoveCount++
	}
	return nil
}

func (a *Accumulator) applySwap(swap model.SwappedData) error {
	amountIn, err := parseBigInt(swap.AmountIn)
	if err != nil {
		return err
	}
	amountOut, err := parseBigInt(swap.AmountOut)
	if err != nil {
		return err
	}

	switch {
	case strings.EqualFold(swap.AssetIn, a.Token0):
		a.Volume0.Add(a.Volume0, amountIn)
		a.Volume1.Add(a.Volume1, amountOut)
		a.Fee0.Add(a.Fee0, feeFromAmount(amountIn))
	case strings.EqualFold(swap.AssetIn, a.Token1):
		a.Volume1.Add(a.Volume1, amountIn)
		a.Volume0.Add(a.Volume0, amountOut)
		a.Fee1.Add(a.Fee1, feeFromAmount(amountIn))
	default:
		return fmt.Errorf("swap input %s is not in pool %s/%s", swap.AssetIn, a.Token0, a.Token1)
	}

	a.SwapCount++
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

// feeFromAmount is the 0.3% of the input retained by the pool.
func feeFromAmount(amountIn *big.Int) *big.Int {
	if amountIn == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amountIn, big.NewInt(3))
	fee.Div(fee, big.NewInt(1000))
	return fee
}
