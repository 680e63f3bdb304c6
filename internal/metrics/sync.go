package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Bulk sync metrics, recorded by the CLI and the admin server.
var (
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meilisync",
			Name:      "sync_runs_total",
			Help:      "Total number of bulk sync runs",
		},
		[]string{"index", "status"},
	)

	SyncDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meilisync",
			Name:      "sync_documents_total",
			Help:      "Documents pushed or skipped by bulk sync",
		},
		[]string{"index", "result"}, // "pushed" / "skipped"
	)

	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meilisync",
			Name:      "sync_duration_seconds",
			Help:      "Bulk sync duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"index"},
	)
)

var registerSync sync.Once

// RegisterSyncMetrics registers the bulk sync collectors on the default registry.
func RegisterSyncMetrics() {
	registerSync.Do(func() {
		prometheus.MustRegister(SyncRunsTotal, SyncDocumentsTotal, SyncDuration)
	})
}

// RecordSync records one bulk sync run.
func RecordSync(index string, pushed, skipped int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	SyncRunsTotal.WithLabelValues(index, status).Inc()
	SyncDocumentsTotal.WithLabelValues(index, "pushed").Add(float64(pushed))
	SyncDocumentsTotal.WithLabelValues(index, "skipped").Add(float64(skipped))
	SyncDuration.WithLabelValues(index).Observe(d.Seconds())
}
