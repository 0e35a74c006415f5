package model

// Request operations.
const (
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
	OpSwap            = "swap"
)

// Request is one ledger operation read from a replay input.
//
// For swaps AssetA is the input asset, AssetB the output asset and AmountA the
// input amount.
type Request struct {
	Op           string `json:"op"`
	AssetA       string `json:"asset_a"`
	AssetB       string `json:"asset_b"`
	AmountA      string `json:"amount_a,omitempty"`
	AmountB      string `json:"amount_b,omitempty"`
	Shares       string `json:"shares,omitempty"`
	MinAmountOut string `json:"min_amount_out,omitempty"`
	Account      string `json:"account"`
}

// RequestError records a rejected request line.
type RequestError struct {
	Line  uint64 `json:"line"`
	Op    string `json:"op"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}
