package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pairLedger/internal/ledger"
	"pairLedger/internal/model"
)

func TestRecorderNotify(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	key, err := ledger.Canonicalize(
		common.HexToAddress("0x2000000000000000000000000000000000000002"),
		common.HexToAddress("0x1000000000000000000000000000000000000001"),
	)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	r.Notify(ledger.Event{
		Seq:         7,
		Name:        model.EventSwapped,
		Pair:        key,
		Timestamp:   time.Unix(1700000000, 0),
		AssetIn:     key.Token0,
		AssetOut:    key.Token1,
		AmountIn:    uint256.NewInt(10),
		AmountOut:   uint256.NewInt(36),
		Reserve0:    uint256.NewInt(110),
		Reserve1:    uint256.NewInt(364),
		TotalShares: uint256.NewInt(200),
	})
	r.ObserveFailure(model.OpSwap, fmt.Errorf("quote: %w", ledger.ErrSlippageExceeded))

	if got := testutil.ToFloat64(r.Operations.WithLabelValues(model.OpSwap, "ok")); got != 1 {
		t.Fatalf("ok swaps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.Operations.WithLabelValues(model.OpSwap, "slippage_exceeded")); got != 1 {
		t.Fatalf("failed swaps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.Reserves.WithLabelValues(key.String(), key.Token1.Hex())); got != 364 {
		t.Fatalf("reserve1 = %v, want 364", got)
	}
	if got := testutil.ToFloat64(r.Volume.WithLabelValues(key.String(), key.Token0.Hex(), model.OpSwap)); got != 10 {
		t.Fatalf("volume = %v, want 10", got)
	}
	if got := testutil.ToFloat64(r.LastSeq); got != 7 {
		t.Fatalf("last seq = %v, want 7", got)
	}
}
