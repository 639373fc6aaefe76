// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal              *prometheus.CounterVec
	recordsTotal            *prometheus.CounterVec
	fetchDurationSeconds    *prometheus.HistogramVec
	rateLimitDelaySeconds   prometheus.Histogram
	cacheEventsTotal        *prometheus.CounterVec
	aiExtractionsTotal      *prometheus.CounterVec
	softBlocksTotal         *prometheus.CounterVec
	inflightPages           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Total pages fetched, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total records processed, labeled by disposition.",
			},
			[]string{"disposition"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies per strategy.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 45},
			},
			[]string{"strategy"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of rate limiter admission waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		cacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_cache_events_total",
				Help: "Cache activity, labeled by event (hit, miss, set, eviction).",
			},
			[]string{"event"},
		)

		aiExtractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_ai_extractions_total",
				Help: "AI extraction calls, labeled by result (ok, empty_input, parse_failure, backend_error).",
			},
			[]string{"result"},
		)

		softBlocksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_soft_blocks_total",
				Help: "Soft-block detections, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		inflightPages = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_inflight_pages",
				Help: "Number of page fetches currently in flight.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records the outcome of one page fetch.
func ObservePage(strategy, outcome string, duration time.Duration) {
	pagesTotal.WithLabelValues(strategy, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveRecord counts one record disposition (saved, updated, skipped, errored).
func ObserveRecord(disposition string) {
	recordsTotal.WithLabelValues(disposition).Inc()
}

// ObserveRateLimitDelay records a rate limiter admission wait.
func ObserveRateLimitDelay(duration time.Duration) {
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveCache counts a cache event.
func ObserveCache(event string) {
	cacheEventsTotal.WithLabelValues(event).Inc()
}

// ObserveAIExtraction counts an AI extraction attempt by result.
func ObserveAIExtraction(result string) {
	aiExtractionsTotal.WithLabelValues(result).Inc()
}

// ObserveSoftBlock counts a soft-block detection for a strategy.
func ObserveSoftBlock(strategy string) {
	softBlocksTotal.WithLabelValues(strategy).Inc()
}

// IncInflight increments the in-flight page gauge.
func IncInflight() {
	inflightPages.Inc()
}

// DecInflight decrements the in-flight page gauge.
func DecInflight() {
	inflightPages.Dec()
}
