// Package metrics defines Prometheus metrics for the cardvision service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// DownloadsTotal counts remote image downloads by resource type and outcome.
	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardvision",
			Name:      "image_downloads_total",
			Help:      "Total remote image downloads",
		},
		[]string{"type", "status"}, // status: "ok" / "error"
	)

	// DownloadsCoalescedTotal counts callers that waited on an in-flight
	// download instead of starting their own.
	DownloadsCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardvision",
			Name:      "image_downloads_coalesced_total",
			Help:      "Callers coalesced onto an in-flight download",
		},
	)

	// EmbeddingsTotal counts generated fingerprints by kind and outcome.
	EmbeddingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardvision",
			Name:      "embeddings_total",
			Help:      "Total fingerprint generation attempts",
		},
		[]string{"kind", "status"}, // status: "ok" / "error"
	)

	// SearchRequestsTotal counts search requests by mode.
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardvision",
			Name:      "search_requests_total",
			Help:      "Total search requests",
		},
		[]string{"mode"}, // "text" / "image" / "similar" / "name"
	)

	// SearchDuration observes search latency by mode.
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardvision",
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"mode"},
	)

	// RankingSkippedTotal counts corpus entries skipped during ranking
	// because the persisted payload was unreadable or mis-dimensioned.
	// A rising rate is a data-quality signal, not a request failure.
	RankingSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardvision",
			Name:      "ranking_skipped_entries_total",
			Help:      "Corpus entries skipped during ranking",
		},
		[]string{"reason"}, // "unreadable" / "dimension" / "nan"
	)
)

var registered bool

// Register registers all cardvision metrics with the default registry.
// Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(DownloadsTotal)
	prometheus.MustRegister(DownloadsCoalescedTotal)
	prometheus.MustRegister(EmbeddingsTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(RankingSkippedTotal)
	registered = true
}
