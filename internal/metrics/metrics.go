// Package metrics exposes Prometheus collectors for the collector and the catalog API.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes.
const (
	FetchSuccess = "success"
	FetchRetry   = "retry"
	FetchError   = "error"
)

var (
	booksTotal                 *prometheus.CounterVec
	bookChapters               prometheus.Histogram
	stageFailuresTotal         *prometheus.CounterVec
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	retryDelaySeconds          *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		booksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classichero_books_total",
				Help: "Total number of books processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		bookChapters = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "classichero_book_chapters",
				Help:    "Histogram of chapter counts of collected books.",
				Buckets: []float64{1, 2, 5, 10, 15, 20, 50, 100},
			},
		)

		stageFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classichero_stage_failures_total",
				Help: "Total number of per-book pipeline failures, labeled by stage.",
			},
			[]string{"stage"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classichero_fetch_attempts_total",
				Help: "Total number of HTTP fetch attempts, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classichero_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		retryDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "classichero_retry_delay_seconds",
				Help:    "Histogram of backoff waits between fetch attempts.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "classichero_rate_limit_delay_seconds",
				Help:    "Histogram of waits imposed by the per-host request limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
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

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBook records the final outcome of one book. chapters is ignored for
// failed books.
func ObserveBook(outcome string, chapters int) {
	Init()
	booksTotal.WithLabelValues(outcome).Inc()
	if chapters > 0 {
		bookChapters.Observe(float64(chapters))
	}
}

// ObserveStageFailure increments the failure counter for a pipeline stage.
func ObserveStageFailure(stage string) {
	Init()
	stageFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveFetch records a single fetch attempt against rawURL.
func ObserveFetch(rawURL, outcome string, bytesFetched int) {
	Init()
	host := SanitizeHost(rawURL)
	fetchAttemptsTotal.WithLabelValues(host, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveRetryDelay records the backoff wait before retrying rawURL.
func ObserveRetryDelay(rawURL string, delay time.Duration) {
	Init()
	retryDelaySeconds.WithLabelValues(SanitizeHost(rawURL)).Observe(delay.Seconds())
}

// ObserveRateLimitDelay records how long a request to host waited for a token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
