package model

import "encoding/json"

// LedgerEvent is a committed ledger operation enriched with the post-operation
// pool state.
type LedgerEvent struct {
	Seq         uint64      `json:"seq"`
	EventName   string      `json:"event_name"`
	Token0      string      `json:"token0"`
	Token1      string      `json:"token1"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
	Reserve0    string      `json:"reserve0"`
	Reserve1    string      `json:"reserve1"`
	TotalShares string      `json:"total_shares"`
}

// LedgerEventRecord is the JSON representation used for aggregation.
type LedgerEventRecord struct {
	Seq         uint64          `json:"seq"`
	EventName   string          `json:"event_name"`
	Token0      string          `json:"token0"`
	Token1      string          `json:"token1"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	Reserve0    string          `json:"reserve0"`
	Reserve1    string          `json:"reserve1"`
	TotalShares string          `json:"total_shares"`
}
