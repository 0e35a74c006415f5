package model

// LedgerSnapshot is the full persisted ledger state.
type LedgerSnapshot struct {
	LastSeq uint64         `json:"last_seq"`
	Pools   []PoolSnapshot `json:"pools"`
}

// PoolSnapshot captures one canonical pool.
type PoolSnapshot struct {
	Token0      string       `json:"token0"`
	Token1      string       `json:"token1"`
	Reserve0    string       `json:"reserve0"`
	Reserve1    string       `json:"reserve1"`
	TotalShares string       `json:"total_shares"`
	Shares      []ShareEntry `json:"shares"`
}

// ShareEntry is one provider balance.
type ShareEntry struct {
	Provider string `json:"provider"`
	Shares   string `json:"shares"`
}
