// Package metrics exposes Prometheus collectors for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

var (
	// SyncDuration tracks wall time of finished sync runs.
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "favsync_sync_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"provider", "status"},
	)

	// SyncRecords is the record count of the last successful sync.
	SyncRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "favsync_snapshot_records",
			Help: "Number of records in the current snapshot",
		},
		[]string{"provider"},
	)

	// SyncErrors counts failed runs by error kind.
	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favsync_sync_errors_total",
			Help: "Total number of failed sync runs",
		},
		[]string{"provider", "kind"},
	)

	// SyncConflicts counts triggers rejected because a run was active.
	SyncConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favsync_sync_conflicts_total",
			Help: "Total number of sync triggers rejected while running",
		},
		[]string{"provider"},
	)

	// SyncLastSuccess is the unix time of the last successful run.
	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "favsync_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync",
		},
		[]string{"provider"},
	)

	// SyncRunning is 1 while a run is active.
	SyncRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "favsync_sync_running",
			Help: "Whether a sync is currently running (1) or not (0)",
		},
		[]string{"provider"},
	)

	// BatchRetries counts batch re-attempts during retry rounds.
	BatchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favsync_batch_retries_total",
			Help: "Total number of batch retries",
		},
		[]string{"provider"},
	)

	// BatchesExhausted counts batches that failed every round.
	BatchesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favsync_batches_exhausted_total",
			Help: "Total number of batches that exhausted their retry rounds",
		},
		[]string{"provider"},
	)

	// EnrichmentResults counts per-item enrichment outcomes.
	EnrichmentResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favsync_enrichment_items_total",
			Help: "Per-item enrichment outcomes",
		},
		[]string{"provider", "outcome"}, // enriched, reused, degraded
	)

	// Relogins counts session refreshes after an authentication failure.
	Relogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favsync_relogins_total",
			Help: "Total number of session re-logins",
		},
		[]string{"provider", "result"},
	)

	// MirrorFailovers counts requests served by a non-primary mirror.
	MirrorFailovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favsync_mirror_failovers_total",
			Help: "Total number of requests that failed over to another mirror",
		},
		[]string{"mirror"},
	)

	// BackupsPruned counts backup files removed by retention.
	BackupsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favsync_backups_pruned_total",
			Help: "Total number of backup files removed by retention",
		},
		[]string{"provider"},
	)

	// HTTPPanics counts handler panics turned into 500 responses.
	HTTPPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favsync_http_panics_total",
			Help: "Total number of recovered handler panics",
		},
		[]string{"route"},
	)

	// CircuitBreakerState tracks breaker state (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "favsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// BreakerStateValue maps a gobreaker state onto the gauge value.
func BreakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
