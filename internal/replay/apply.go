package replay

import (
	"context"
	"fmt"

	"pairLedger/internal/ledger"
	"pairLedger/internal/model"
)

// Apply executes one request against the ledger.
func Apply(ctx context.Context, l *ledger.Ledger, req model.Request) error {
	assetA, err := ParseAddress("asset_a", req.AssetA)
	if err != nil {
		return err
	}
	assetB, err := ParseAddress("asset_b", req.AssetB)
	if err != nil {
		return err
	}
	account, err := ParseAddress("account", req.Account)
	if err != nil {
		return err
	}

	switch req.Op {
	case model.OpAddLiquidity:
		amountA, err := parseAmount("amount_a", req.AmountA)
		if err != nil {
			return err
		}
		amountB, err := parseAmount("amount_b", req.AmountB)
		if err != nil {
			return err
		}
		_, err = l.AddLiquidity(ctx, assetA, assetB, amountA, amountB, account)
		return err
	case model.OpRemoveLiquidity:
		shares, err := parseAmount("shares", req.Shares)
		if err != nil {
			return err
		}
		_, err = l.RemoveLiquidity(ctx, assetA, assetB, shares, account)
		return err
	case model.OpSwap:
		amountIn, err := parseAmount("amount_a", req.AmountA)
		if err != nil {
			return err
		}
		minOut, err := parseOptionalAmount("min_amount_out", req.MinAmountOut)
		if err != nil {
			return err
		}
		_, err = l.Swap(ctx, assetA, assetB, amountIn, minOut, account)
		return err
	default:
		return fmt.Errorf("%w: unknown op %q", ledger.ErrInvalidInput, req.Op)
	}
}
