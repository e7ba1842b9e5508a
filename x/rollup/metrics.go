package rollup

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyli-org/degen-party/metrics"
)

type executorMetrics struct {
	blocksProcessed prometheus.Counter
	txsExecuted     *prometheus.CounterVec
	txsSettled      prometheus.Counter
	txsCancelled    prometheus.Counter
	replays         prometheus.Counter
	unsettledDepth  prometheus.Gauge
	tickDuration    prometheus.Histogram
}

func newExecutorMetrics(reg prometheus.Registerer) *executorMetrics {
	r := metrics.NewComponentRegistry("rollup", reg)
	return &executorMetrics{
		blocksProcessed: r.NewCounter(prometheus.CounterOpts{
			Name: "blocks_processed_total",
			Help: "Sequenced blocks applied to the store.",
		}),
		txsExecuted: r.NewCounterVec(prometheus.CounterOpts{
			Name: "txs_executed_total",
			Help: "Transactions executed optimistically, by observation source.",
		}, []string{"source"}),
		txsSettled: r.NewCounter(prometheus.CounterOpts{
			Name: "txs_settled_total",
			Help: "Transactions confirmed settled and applied to the baseline.",
		}),
		txsCancelled: r.NewCounter(prometheus.CounterOpts{
			Name: "txs_cancelled_total",
			Help: "Transactions dropped after the ledger rejected or timed them out.",
		}),
		replays: r.NewCounter(prometheus.CounterOpts{
			Name: "replays_total",
			Help: "Speculative view rebuilds from the settled baseline.",
		}),
		unsettledDepth: r.NewGauge(prometheus.GaugeOpts{
			Name: "unsettled_txs",
			Help: "Current depth of the unsettled transaction log.",
		}),
		tickDuration: r.NewHistogram(prometheus.HistogramOpts{
			Name:    "tick_duration_seconds",
			Help:    "Duration of one executor loop iteration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
