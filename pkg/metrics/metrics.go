package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Alert metrics
	AlertsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aman_alerts_created_total",
			Help: "Total number of alerts accepted by the server",
		},
	)

	AlertsDeduplicatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aman_alerts_deduplicated_total",
			Help: "Total number of alert creations rejected as duplicates",
		},
	)

	AlertsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aman_alerts_purged_total",
			Help: "Total number of expired alerts removed by the purge job",
		},
	)

	AlertsHiddenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aman_alerts_hidden_total",
			Help: "Total number of alerts hidden after reaching the report threshold",
		},
	)

	// Sync metrics
	SyncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aman_sync_cycles_total",
			Help: "Total number of sync cycles by outcome",
		},
		[]string{"outcome"},
	)

	SyncCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aman_sync_cycle_duration_seconds",
			Help:    "Duration of sync cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aman_queue_depth",
			Help: "Number of pending actions in the durable local queue",
		},
	)

	ReplayOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aman_replay_outcomes_total",
			Help: "Total number of replayed actions by outcome",
		},
		[]string{"outcome"},
	)

	// Replication facade metrics
	ReplicationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aman_replication_requests_total",
			Help: "Total number of replication protocol requests by operation",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		AlertsCreatedTotal,
		AlertsDeduplicatedTotal,
		AlertsPurgedTotal,
		AlertsHiddenTotal,
		SyncCyclesTotal,
		SyncCycleDuration,
		QueueDepth,
		ReplayOutcomesTotal,
		ReplicationRequestsTotal,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
