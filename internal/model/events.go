package model

// Ledger event names.
const (
	EventLiquidityAdded   = "LiquidityAdded"
	EventLiquidityRemoved = "LiquidityRemoved"
	EventSwapped          = "Swapped"
)

// LiquidityAddedData is the LiquidityAdded event payload.
type LiquidityAddedData struct {
	Provider     string `json:"provider"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SharesIssued string `json:"shares_issued"`
}

// LiquidityRemovedData is the LiquidityRemoved event payload.
type LiquidityRemovedData struct {
	Provider     string `json:"provider"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SharesBurned string `json:"shares_burned"`
}

// SwappedData is the Swapped event payload.
type SwappedData struct {
	Trader    string `json:"trader"`
	AssetIn   string `json:"asset_in"`
	AssetOut  string `json:"asset_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}
