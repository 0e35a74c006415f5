package metrics

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pairLedger/internal/ledger"
	"pairLedger/internal/model"
)

const namespace = "pair_ledger"

// Recorder exports ledger activity as Prometheus metrics.
type Recorder struct {
	Operations  *prometheus.CounterVec
	Volume      *prometheus.CounterVec
	Reserves    *prometheus.GaugeVec
	TotalShares *prometheus.GaugeVec
	LastSeq     prometheus.Gauge
}

// NewRecorder registers the ledger metrics on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Ledger operations by outcome",
			},
			[]string{"op", "status"},
		),
		Volume: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "volume_total",
				Help:      "Asset units moved through each pool",
			},
			[]string{"pool", "token", "op"},
		),
		Reserves: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_reserve",
				Help:      "Post-operation pool reserve in base units",
			},
			[]string{"pool", "token"},
		),
		TotalShares: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_total_shares",
				Help:      "Outstanding pool shares",
			},
			[]string{"pool"},
		),
		LastSeq: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_event_seq",
			Help:      "Sequence number of the last committed event",
		}),
	}
}

func (r *Recorder) Notify(ev ledger.Event) {
	pool := ev.Pair.String()
	token0, token1 := ev.Pair.Token0.Hex(), ev.Pair.Token1.Hex()

	switch ev.Name {
	case model.EventLiquidityAdded:
		r.Operations.WithLabelValues(model.OpAddLiquidity, "ok").Inc()
		r.Volume.WithLabelValues(pool, token0, model.OpAddLiquidity).Add(toFloat(ev.Amount0))
		r.Volume.WithLabelValues(pool, token1, model.OpAddLiquidity).Add(toFloat(ev.Amount1))
	case model.EventLiquidityRemoved:
		r.Operations.WithLabelValues(model.OpRemoveLiquidity, "ok").Inc()
		r.Volume.WithLabelValues(pool, token0, model.OpRemoveLiquidity).Add(toFloat(ev.Amount0))
		r.Volume.WithLabelValues(pool, token1, model.OpRemoveLiquidity).Add(toFloat(ev.Amount1))
	case model.EventSwapped:
		r.Operations.WithLabelValues(model.OpSwap, "ok").Inc()
		r.Volume.WithLabelValues(pool, ev.AssetIn.Hex(), model.OpSwap).Add(toFloat(ev.AmountIn))
	}

	r.Reserves.WithLabelValues(pool, token0).Set(toFloat(ev.Reserve0))
	r.Reserves.WithLabelValues(pool, token1).Set(toFloat(ev.Reserve1))
	r.TotalShares.WithLabelValues(pool).Set(toFloat(ev.TotalShares))
	r.LastSeq.Set(float64(ev.Seq))
}

// ObserveFailure counts a rejected operation under its error kind.
func (r *Recorder) ObserveFailure(op string, err error) {
	r.Operations.WithLabelValues(op, ledger.Kind(err)).Inc()
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

// Seed sets the pool gauges from restored state.
func (r *Recorder) Seed(pools []ledger.PoolInfo, lastSeq uint64) {
	for _, p := range pools {
		pool := p.Pair.String()
		r.Reserves.WithLabelValues(pool, p.Pair.Token0.Hex()).Set(toFloat(p.Reserve0))
		r.Reserves.WithLabelValues(pool, p.Pair.Token1.Hex()).Set(toFloat(p.Reserve1))
		r.TotalShares.WithLabelValues(pool).Set(toFloat(p.TotalShares))
	}
	r.LastSeq.Set(float64(lastSeq))
}
