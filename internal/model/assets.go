package model

// TokenMeta captures ERC20 metadata used to scale reported amounts.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// Genesis seeds the in-memory bank. The bank also exports its balances in
// this form so replays can resume.
type Genesis struct {
	Balances []GenesisBalance `json:"balances"`
}

type GenesisBalance struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"` // base units, decimal
}
