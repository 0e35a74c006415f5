package api

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pairLedger/internal/ledger"
)

// Namespace is the JSON-RPC namespace the ledger is served under.
const Namespace = "ledger"

// LedgerAPI exposes ledger operations over JSON-RPC. Amounts travel as
// decimal strings.
type LedgerAPI struct {
	ledger *ledger.Ledger
	logger *zap.Logger
}

func NewLedgerAPI(l *ledger.Ledger, logger *zap.Logger) *LedgerAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerAPI{ledger: l, logger: logger}
}

// NewServer registers the API on a fresh rpc.Server.
func NewServer(api *LedgerAPI) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(Namespace, api); err != nil {
		srv.Stop()
		return nil, err
	}
	return srv, nil
}

type AddLiquidityArgs struct {
	AssetA   common.Address `json:"assetA"`
	AssetB   common.Address `json:"assetB"`
	AmountA  string         `json:"amountA"`
	AmountB  string         `json:"amountB"`
	Provider common.Address `json:"provider"`
}

type AddLiquidityResult struct {
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	Amount0      string         `json:"amount0"`
	Amount1      string         `json:"amount1"`
	SharesIssued string         `json:"sharesIssued"`
	Seq          uint64         `json:"seq"`
}

func (api *LedgerAPI) AddLiquidity(ctx context.Context, args AddLiquidityArgs) (*AddLiquidityResult, error) {
	amountA, err := parseAmount("amountA", args.AmountA)
	if err != nil {
		return nil, err
	}
	amountB, err := parseAmount("amountB", args.AmountB)
	if err != nil {
		return nil, err
	}

	res, err := api.ledger.AddLiquidity(ctx, args.AssetA, args.AssetB, amountA, amountB, args.Provider)
	if err != nil {
		return nil, toRPCError(err)
	}
	return &AddLiquidityResult{
		Token0:       res.Pair.Token0,
		Token1:       res.Pair.Token1,
		Amount0:      ledger.FormatAmount(res.Amount0),
		Amount1:      ledger.FormatAmount(res.Amount1),
		SharesIssued: ledger.FormatAmount(res.SharesIssued),
		Seq:          res.Seq,
	}, nil
}

type RemoveLiquidityArgs struct {
	AssetA   common.Address `json:"assetA"`
	AssetB   common.Address `json:"assetB"`
	Shares   string         `json:"shares"`
	Provider common.Address `json:"provider"`
}

type RemoveLiquidityResult struct {
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	Amount0      string         `json:"amount0"`
	Amount1      string         `json:"amount1"`
	SharesBurned string         `json:"sharesBurned"`
	Seq          uint64         `json:"seq"`
}

func (api *LedgerAPI) RemoveLiquidity(ctx context.Context, args RemoveLiquidityArgs) (*RemoveLiquidityResult, error) {
	shares, err := parseAmount("shares", args.Shares)
	if err != nil {
		return nil, err
	}

	res, err := api.ledger.RemoveLiquidity(ctx, args.AssetA, args.AssetB, shares, args.Provider)
	if err != nil {
		return nil, toRPCError(err)
	}
	return &RemoveLiquidityResult{
		Token0:       res.Pair.Token0,
		Token1:       res.Pair.Token1,
		Amount0:      ledger.FormatAmount(res.Amount0),
		Amount1:      ledger.FormatAmount(res.Amount1),
		SharesBurned: ledger.FormatAmount(res.SharesBurned),
		Seq:          res.Seq,
	}, nil
}

type SwapArgs struct {
	AssetIn      common.Address `json:"assetIn"`
	AssetOut     common.Address `json:"assetOut"`
	AmountIn     string         `json:"amountIn"`
	MinAmountOut string         `json:"minAmountOut,omitempty"`
	Trader       common.Address `json:"trader"`
}

type SwapResult struct {
	AssetIn   common.Address `json:"assetIn"`
	AssetOut  common.Address `json:"assetOut"`
	AmountIn  string         `json:"amountIn"`
	AmountOut string         `json:"amountOut"`
	Seq       uint64         `json:"seq"`
}

func (api *LedgerAPI) Swap(ctx context.Context, args SwapArgs) (*SwapResult, error) {
	amountIn, err := parseAmount("amountIn", args.AmountIn)
	if err != nil {
		return nil, err
	}
	var minOut *uint256.Int
	if args.MinAmountOut != "" {
		if minOut, err = parseAmount("minAmountOut", args.MinAmountOut); err != nil {
			return nil, err
		}
	}

	res, err := api.ledger.Swap(ctx, args.AssetIn, args.AssetOut, amountIn, minOut, args.Trader)
	if err != nil {
		return nil, toRPCError(err)
	}
	return &SwapResult{
		AssetIn:   res.AssetIn,
		AssetOut:  res.AssetOut,
		AmountIn:  ledger.FormatAmount(res.AmountIn),
		AmountOut: ledger.FormatAmount(res.AmountOut),
		Seq:       res.Seq,
	}, nil
}

// Quote prices a swap without executing it.
func (api *LedgerAPI) Quote(assetIn, assetOut common.Address, amountIn string) (string, error) {
	amount, err := parseAmount("amountIn", amountIn)
	if err != nil {
		return "", err
	}
	return ledger.FormatAmount(api.ledger.Quote(assetIn, assetOut, amount)), nil
}

type PoolState struct {
	Token0      common.Address `json:"token0"`
	Token1      common.Address `json:"token1"`
	Reserve0    string         `json:"reserve0"`
	Reserve1    string         `json:"reserve1"`
	TotalShares string         `json:"totalShares"`
}

func (api *LedgerAPI) GetReserves(assetA, assetB common.Address) (*PoolState, error) {
	key, err := ledger.Canonicalize(assetA, assetB)
	if err != nil {
		return nil, toRPCError(err)
	}
	reserve0, reserve1, err := api.ledger.GetReserves(assetA, assetB)
	if err != nil {
		return nil, toRPCError(err)
	}
	total, err := api.ledger.TotalShares(assetA, assetB)
	if err != nil {
		return nil, toRPCError(err)
	}
	return &PoolState{
		Token0:      key.Token0,
		Token1:      key.Token1,
		Reserve0:    ledger.FormatAmount(reserve0),
		Reserve1:    ledger.FormatAmount(reserve1),
		TotalShares: ledger.FormatAmount(total),
	}, nil
}

func (api *LedgerAPI) GetShare(assetA, assetB, provider common.Address) (string, error) {
	share, err := api.ledger.GetShare(assetA, assetB, provider)
	if err != nil {
		return "", toRPCError(err)
	}
	return ledger.FormatAmount(share), nil
}

// Pools lists every non-empty pool.
func (api *LedgerAPI) Pools() []PoolState {
	pools := api.ledger.Pools()
	out := make([]PoolState, 0, len(pools))
	for _, p := range pools {
		out = append(out, PoolState{
			Token0:      p.Pair.Token0,
			Token1:      p.Pair.Token1,
			Reserve0:    ledger.FormatAmount(p.Reserve0),
			Reserve1:    ledger.FormatAmount(p.Reserve1),
			TotalShares: ledger.FormatAmount(p.TotalShares),
		})
	}
	return out
}

func parseAmount(field, value string) (*uint256.Int, error) {
	amount, err := ledger.ParseAmount(value)
	if err != nil {
		return nil, toRPCError(fmt.Errorf("%s: %w", field, err))
	}
	return amount, nil
}
