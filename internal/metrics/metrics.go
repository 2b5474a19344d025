// Package metrics exposes Prometheus collectors for the tracker service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_crawl_pages_total",
			Help: "Category listing pages fetched, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	productURLsDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_product_urls_discovered_total",
			Help: "Product URLs upserted by the category crawler.",
		},
	)

	scrapesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_scrapes_total",
			Help: "Per-URL scrapes, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	pricesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_price_observations_total",
			Help: "Immutable price observations written.",
		},
	)

	eventTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_active_event_transitions_total",
			Help: "Active-event transitions applied (no-op re-activations excluded).",
		},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// CrawlPage records one category page fetch with its outcome
// ("ok", "not_found", "exhausted", "error").
func CrawlPage(outcome string) {
	crawlPagesTotal.WithLabelValues(outcome).Inc()
}

// URLsDiscovered records product URLs upserted during a crawl pass.
func URLsDiscovered(n int) {
	productURLsDiscovered.Add(float64(n))
}

// Scrape records one per-URL scrape with its outcome ("ok", "error").
func Scrape(outcome string) {
	scrapesTotal.WithLabelValues(outcome).Inc()
}

// PricesRecorded records price observations written by one scrape.
func PricesRecorded(n int) {
	pricesRecorded.Add(float64(n))
}

// EventTransition records one applied active-event transition.
func EventTransition() {
	eventTransitions.Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, duration time.Duration) {
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
