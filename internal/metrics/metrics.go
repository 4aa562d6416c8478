// Package metrics exposes Prometheus collectors for the crawler.
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
	scraperPlayersTotal        *prometheus.CounterVec
	scraperRetriesTotal        prometheus.Counter
	scraperFetchDurationSecs   prometheus.Histogram
	scraperActiveWorkers       prometheus.Gauge
	scraperCrawlsTotal         prometheus.Counter
	cacheLookupsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperPlayersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_players_total",
				Help: "Total number of players processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		scraperRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_retry_candidates_total",
				Help: "Total number of failed fetch attempts considered for retry.",
			},
		)

		scraperFetchDurationSecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_fetch_duration_seconds",
				Help:    "Histogram of per-player profile fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently fetching a player profile.",
			},
		)

		scraperCrawlsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_crawls_total",
				Help: "Total number of full crawls started.",
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_lookups_total",
				Help: "Total number of cache read operations, labeled by kind.",
			},
			[]string{"kind"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePlayer increments the player outcome counter.
func ObservePlayer(status string) {
	if scraperPlayersTotal == nil {
		return
	}
	scraperPlayersTotal.WithLabelValues(status).Inc()
}

// ObserveRetryCandidate counts a failed attempt entering retry triage.
func ObserveRetryCandidate() {
	if scraperRetriesTotal == nil {
		return
	}
	scraperRetriesTotal.Inc()
}

// ObserveFetchDuration records one profile fetch latency.
func ObserveFetchDuration(duration time.Duration) {
	if scraperFetchDurationSecs == nil {
		return
	}
	scraperFetchDurationSecs.Observe(duration.Seconds())
}

// ObserveCrawl counts a crawl start.
func ObserveCrawl() {
	if scraperCrawlsTotal == nil {
		return
	}
	scraperCrawlsTotal.Inc()
}

// ObserveCacheLookup counts a cache read by kind (player, item, vehicle).
func ObserveCacheLookup(kind string) {
	if cacheLookupsTotal == nil {
		return
	}
	cacheLookupsTotal.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest records one API request latency.
func ObserveHTTPRequest(method, route string, duration time.Duration) {
	if httpRequestDurationSeconds == nil {
		return
	}
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if scraperActiveWorkers == nil {
		return
	}
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if scraperActiveWorkers == nil {
		return
	}
	scraperActiveWorkers.Dec()
}
