// Package metrics provides Prometheus metrics for the AQI service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts served requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqi",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration measures handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aqi",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// UpstreamCallsTotal counts model service calls.
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqi",
			Name:      "upstream_calls_total",
			Help:      "Total number of model service calls",
		},
		[]string{"operation", "status"},
	)

	// UpstreamDuration measures model service latency.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aqi",
			Name:      "upstream_duration_seconds",
			Help:      "Duration of model service calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// SnapshotsTotal counts collector prediction snapshots.
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqi",
			Name:      "collector_snapshots_total",
			Help:      "Total number of prediction snapshots collected",
		},
		[]string{"status"},
	)

	// RowsImportedTotal counts CSV rows by outcome.
	RowsImportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqi",
			Name:      "rows_imported_total",
			Help:      "Total number of CSV rows processed during import",
		},
		[]string{"status"},
	)

	// BandCommands observes how many band draw commands a chart produced.
	BandCommands = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aqi",
			Name:      "band_commands",
			Help:      "Distribution of threshold band draw commands per chart",
			Buckets:   []float64{0, 2, 4, 6, 8, 10, 12},
		},
	)
)

// RecordRequest records a served HTTP request.
func RecordRequest(route, method, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration)
}

// RecordUpstream records a model service call.
func RecordUpstream(operation, status string, duration float64) {
	UpstreamCallsTotal.WithLabelValues(operation, status).Inc()
	UpstreamDuration.WithLabelValues(operation).Observe(duration)
}

// RecordSnapshot records a collector outcome.
func RecordSnapshot(status string) {
	SnapshotsTotal.WithLabelValues(status).Inc()
}

// RecordImport records CSV import outcomes.
func RecordImport(accepted, rejected int) {
	RowsImportedTotal.WithLabelValues("accepted").Add(float64(accepted))
	RowsImportedTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordBands records the number of band commands drawn.
func RecordBands(n int) {
	BandCommands.Observe(float64(n))
}
