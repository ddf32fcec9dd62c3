// Package metrics exposes Prometheus collectors for the crawl engine
// and the status API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlBytesTotal            *prometheus.CounterVec
	crawlRecordsTotal          *prometheus.CounterVec
	crawlDuplicatesTotal       prometheus.Counter
	crawlDetailFetchesTotal    *prometheus.CounterVec
	crawlActiveSiteWorkers     prometheus.Gauge
	crawlRateLimitDelaySeconds *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_crawl_pages_total",
				Help: "Total number of search pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_crawl_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_crawl_records_total",
				Help: "Total number of job records kept after extraction, labeled by site.",
			},
			[]string{"site"},
		)

		crawlDuplicatesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jobradar_crawl_duplicates_total",
				Help: "Total number of records dropped by the deduplicator.",
			},
		)

		crawlDetailFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_crawl_detail_fetches_total",
				Help: "Total number of detail page fetches, labeled by site.",
			},
			[]string{"site"},
		)

		crawlActiveSiteWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobradar_crawl_active_site_workers",
				Help: "Number of site workers currently crawling.",
			},
		)

		crawlRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobradar_crawl_rate_limit_delay_seconds",
				Help:    "Histogram of effective per-site pacing delays.",
				Buckets: []float64{1, 3, 5, 10, 15, 30, 60, 120},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// NormalizeSite lowercases a site label and substitutes "unknown" for
// blanks so label cardinality stays predictable.
func NormalizeSite(site string) string {
	site = strings.ToLower(strings.TrimSpace(site))
	if site == "" {
		return "unknown"
	}
	return site
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl counts one page fetch attempt outcome.
func ObserveCrawl(site, outcome string, bytesFetched int) {
	normalized := NormalizeSite(site)
	crawlPagesTotal.WithLabelValues(normalized, outcome).Inc()
	if bytesFetched > 0 {
		crawlBytesTotal.WithLabelValues(normalized).Add(float64(bytesFetched))
	}
}

// ObserveRecords counts records kept from one extracted page.
func ObserveRecords(site string, count int) {
	if count > 0 {
		crawlRecordsTotal.WithLabelValues(NormalizeSite(site)).Add(float64(count))
	}
}

// ObserveDuplicates counts records dropped by the deduplicator.
func ObserveDuplicates(count int) {
	if count > 0 {
		crawlDuplicatesTotal.Add(float64(count))
	}
}

// ObserveDetailFetch counts one detail page enrichment fetch.
func ObserveDetailFetch(site string) {
	crawlDetailFetchesTotal.WithLabelValues(NormalizeSite(site)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active site workers gauge.
func IncActiveWorkers() {
	crawlActiveSiteWorkers.Inc()
}

// DecActiveWorkers decrements the active site workers gauge.
func DecActiveWorkers() {
	crawlActiveSiteWorkers.Dec()
}

// ObserveRateLimitDelay records the pacing delay currently in force for
// a site.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	crawlRateLimitDelaySeconds.WithLabelValues(NormalizeSite(site)).Observe(duration.Seconds())
}
