package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"pairLedger/internal/model"
)

const (
	tokenX = "0x1000000000000000000000000000000000000001"
	tokenY = "0x2000000000000000000000000000000000000002"
)

type memoryStore struct {
	metrics []model.PoolWindowMetrics
}

func (m *memoryStore) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	m.metrics = append(m.metrics, metrics...)
	return nil
}

type fakeTokens struct {
	calls int
}

func (f *fakeTokens) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	f.calls++
	if token == common.HexToAddress(tokenX) {
		return model.TokenMeta{Address: tokenX, Decimals: 3}, nil
	}
	return model.TokenMeta{}, errors.New("no code at address")
}

func eventLine(t *testing.T, seq, ts uint64, name string, decoded interface{}, r0, r1, total string) string {
	t.Helper()
	data, err := json.Marshal(model.LedgerEvent{
		Seq:         seq,
		EventName:   name,
		Token0:      tokenX,
		Token1:      tokenY,
		Timestamp:   ts,
		Decoded:     decoded,
		Reserve0:    r0,
		Reserve1:    r1,
		TotalShares: total,
	})
	require.NoError(t, err)
	return string(data)
}

func writeEvents(t *testing.T) string {
	t.Helper()
	lines := []string{
		eventLine(t, 1, 1000, model.EventLiquidityAdded,
			model.LiquidityAddedData{Provider: "0xa1", Token0: tokenX, Token1: tokenY, Amount0: "100000", Amount1: "400000", SharesIssued: "200000"},
			"100000", "400000", "200000"),
		eventLine(t, 2, 1100, model.EventSwapped,
			model.SwappedData{Trader: "0xb0", AssetIn: tokenX, AssetOut: tokenY, AmountIn: "10000", AmountOut: "36000"},
			"110000", "364000", "200000"),
		"{not json",
		eventLine(t, 3, 4000, model.EventSwapped,
			model.SwappedData{Trader: "0xb0", AssetIn: strings.ToUpper(tokenY[:2]) + tokenY[2:], AssetOut: tokenX, AmountIn: "40000", AmountOut: "11000"},
			"99000", "404000", "200000"),
	}
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestAggregatorWindows(t *testing.T) {
	input := writeEvents(t)
	store := &memoryStore{}
	tokens := &fakeTokens{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}

	agg := NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, store, tokens, nil)
	stats, err := agg.Run(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 4, Windows: 2, Failed: 1}, stats)
	require.Len(t, store.metrics, 2)
	require.Equal(t, 2, tokens.calls)

	first := store.metrics[0]
	require.Equal(t, int64(0), first.WindowStart.Unix())
	require.Equal(t, int64(3600), first.WindowEnd.Unix())
	require.Equal(t, uint64(1), first.SwapCount)
	require.Equal(t, uint64(1), first.AddCount)
	require.Equal(t, "10.000", first.Volume0)
	require.Equal(t, "36000", first.Volume1)
	require.Equal(t, "0.030", first.Fee0)
	require.Equal(t, "0", first.Fee1)
	require.Equal(t, "110.000", *first.TVL0)
	require.Equal(t, "364000", *first.TVL1)
	require.NotNil(t, first.FeeRate0)
	require.Nil(t, first.FeeRate1)
	require.NotNil(t, first.APR)
	require.Equal(t, uint64(2), first.LastSeq)

	second := store.metrics[1]
	require.Equal(t, int64(3600), second.WindowStart.Unix())
	require.Equal(t, "11.000", second.Volume0)
	require.Equal(t, "40000", second.Volume1)
	require.Equal(t, "120", second.Fee1)
	require.Nil(t, second.FeeRate0)
	require.NotNil(t, second.FeeRate1)
	require.Equal(t, uint64(3), second.LastSeq)

	last, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), last)

	rerun := &memoryStore{}
	stats, err = NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, rerun, nil, nil).Run(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Skipped)
	require.Empty(t, rerun.metrics)
}

func TestAggregatorRecomputeFrom(t *testing.T) {
	input := writeEvents(t)
	store := &memoryStore{}
	agg := NewAggregator(Config{WindowSeconds: 3600, RecomputeFrom: 3}, store, nil, nil)
	stats, err := agg.Run(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Skipped)
	require.Len(t, store.metrics, 1)
	require.Equal(t, "11000", store.metrics[0].Volume0)
}

func TestAggregatorRequiresWindow(t *testing.T) {
	_, err := NewAggregator(Config{}, &memoryStore{}, nil, nil).Run(context.Background(), "unused")
	require.Error(t, err)
}

func TestComputeAPR(t *testing.T) {
	rate := "0.001"
	apr := computeAPR(&rate, nil, 365*24*3600)
	require.NotNil(t, apr)
	require.Equal(t, "0.000500000000000000", *apr)

	both := computeAPR(&rate, &rate, 365*24*3600)
	require.Equal(t, "0.001000000000000000", *both)

	require.Nil(t, computeAPR(nil, nil, 3600))
	require.Nil(t, computeAPR(&rate, nil, 0))
}

func TestFeeFromAmount(t *testing.T) {
	fee, _ := parseBigInt("999")
	require.Equal(t, "2", feeFromAmount(fee).String())
}

func TestFileMetricsStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	store := &FileMetricsStore{Path: path}
	require.NoError(t, store.UpsertWindowMetrics(context.Background(), []model.PoolWindowMetrics{{Token0: tokenX, Token1: tokenY, SwapCount: 2}}))
	require.NoError(t, store.UpsertWindowMetrics(context.Background(), []model.PoolWindowMetrics{{Token0: tokenX, Token1: tokenY, SwapCount: 3}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var got model.PoolWindowMetrics
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	require.Equal(t, uint64(3), got.SwapCount)
}

func TestStaticTokenMeta(t *testing.T) {
	decimals, err := ParseStaticDecimals(map[string]string{tokenX: "6"})
	require.NoError(t, err)

	fallback := &fakeTokens{}
	source := &StaticTokenMeta{Decimals: decimals, Fallback: fallback}
	meta, err := source.TokenMeta(context.Background(), common.HexToAddress(tokenX))
	require.NoError(t, err)
	require.Equal(t, uint8(6), meta.Decimals)
	require.Zero(t, fallback.calls)

	_, err = source.TokenMeta(context.Background(), common.HexToAddress(tokenY))
	require.Error(t, err)
	require.Equal(t, 1, fallback.calls)

	_, err = ParseStaticDecimals(map[string]string{tokenX: "300"})
	require.Error(t, err)
}
