package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairLedger/internal/model"
)

// Event is a committed ledger operation with the post-operation pool state.
// Amount0/Amount1/Shares are set for liquidity events, AssetIn/AssetOut and
// AmountIn/AmountOut for swaps.
type Event struct {
	Seq         uint64
	Name        string
	Pair        PairKey
	Timestamp   time.Time
	Account     common.Address
	Amount0     *uint256.Int
	Amount1     *uint256.Int
	Shares      *uint256.Int
	AssetIn     common.Address
	AssetOut    common.Address
	AmountIn    *uint256.Int
	AmountOut   *uint256.Int
	Reserve0    *uint256.Int
	Reserve1    *uint256.Int
	TotalShares *uint256.Int
}

// Record converts the event to its storage representation.
func (e Event) Record() model.LedgerEvent {
	rec := model.LedgerEvent{
		Seq:         e.Seq,
		EventName:   e.Name,
		Token0:      e.Pair.Token0.Hex(),
		Token1:      e.Pair.Token1.Hex(),
		Timestamp:   uint64(e.Timestamp.Unix()),
		Reserve0:    FormatAmount(e.Reserve0),
		Reserve1:    FormatAmount(e.Reserve1),
		TotalShares: FormatAmount(e.TotalShares),
	}

	switch e.Name {
	case model.EventLiquidityAdded:
		rec.Decoded = model.LiquidityAddedData{
			Provider:     e.Account.Hex(),
			Token0:       rec.Token0,
			Token1:       rec.Token1,
			Amount0:      FormatAmount(e.Amount0),
			Amount1:      FormatAmount(e.Amount1),
			SharesIssued: FormatAmount(e.Shares),
		}
	case model.EventLiquidityRemoved:
		rec.Decoded = model.LiquidityRemovedData{
			Provider:     e.Account.Hex(),
			Token0:       rec.Token0,
			Token1:       rec.Token1,
			Amount0:      FormatAmount(e.Amount0),
			Amount1:      FormatAmount(e.Amount1),
			SharesBurned: FormatAmount(e.Shares),
		}
	case model.EventSwapped:
		rec.Decoded = model.SwappedData{
			Trader:    e.Account.Hex(),
			AssetIn:   e.AssetIn.Hex(),
			AssetOut:  e.AssetOut.Hex(),
			AmountIn:  FormatAmount(e.AmountIn),
			AmountOut: FormatAmount(e.AmountOut),
		}
	}
	return rec
}
