package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-side collectors, registered once at package load like the HTTP
// middleware metrics.
var (
	MappingsIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gift_indexer_mappings_indexed_total",
		Help: "Total number of gift mappings upserted",
	})

	Duplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gift_indexer_duplicates_total",
		Help: "Total number of re-delivered logs already stored",
	})

	Conflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gift_indexer_conflicts_total",
		Help: "Total number of mappings replaced by a higher-ordered event",
	})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gift_indexer_decode_failures_total",
		Help: "Total number of logs routed to the DLQ",
	})

	BlocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gift_indexer_blocks_processed_total",
		Help: "Total number of blocks scanned",
	})

	Repairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gift_indexer_reconcile_repairs_total",
		Help: "Total number of mappings repaired from chain state",
	})

	Remediations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gift_indexer_remediations_total",
		Help: "Total number of health monitor remediation actions",
	}, []string{"metric", "tier"})

	LastMappedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gift_indexer_last_mapped_block",
		Help: "Highest block number with a stored mapping",
	})

	BatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gift_indexer_batch_size_blocks",
		Help: "Current adaptive log query range size",
	})

	LagSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gift_indexer_lag_seconds",
		Help: "Seconds between now and the newest mapped block time",
	})

	DLQSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gift_indexer_dlq_size",
		Help: "Number of entries in the dead-letter queue",
	})

	BatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gift_indexer_batch_latency_seconds",
		Help:    "Time taken to process one batch of blocks",
		Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
	})
)
