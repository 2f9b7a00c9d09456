// Package metrics exposes Prometheus collectors for the fixtures bot.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	lflSearchesTotal              *prometheus.CounterVec
	lflTeamIdentifiersTotal       prometheus.Counter
	lflCalendarFetchesTotal       *prometheus.CounterVec
	lflPipelineDurationSeconds    prometheus.Histogram
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	paymentWatchesTotal           *prometheus.CounterVec
	paymentActiveWatchers         prometheus.Gauge
	fetcherRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		lflSearchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lfl_searches_total",
				Help: "Total number of team searches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		lflTeamIdentifiersTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lfl_team_identifiers_total",
				Help: "Total number of distinct team identifiers resolved from searches.",
			},
		)

		lflCalendarFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lfl_calendar_fetches_total",
				Help: "Total number of calendar fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		lflPipelineDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lfl_pipeline_duration_seconds",
				Help:    "Histogram of end-to-end fixture resolution latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
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

		paymentWatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_watches_total",
				Help: "Total number of payment settlement watches, labeled by final status.",
			},
			[]string{"status"},
		)

		paymentActiveWatchers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "payment_active_watchers",
				Help: "Number of workers currently polling a payment.",
			},
		)

		fetcherRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fetcher_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearch records a team search with its outcome and the number of identifiers it produced.
func ObserveSearch(outcome string, identifiers int) {
	Init()
	lflSearchesTotal.WithLabelValues(outcome).Inc()
	if identifiers > 0 {
		lflTeamIdentifiersTotal.Add(float64(identifiers))
	}
}

// ObserveCalendarFetch increments the calendar fetch counter for the given outcome.
func ObserveCalendarFetch(outcome string) {
	Init()
	lflCalendarFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObservePipeline records the duration of one pipeline run.
func ObservePipeline(duration time.Duration) {
	Init()
	lflPipelineDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePaymentWatch increments the payment watch counter for the given final status.
func ObservePaymentWatch(status string) {
	Init()
	paymentWatchesTotal.WithLabelValues(status).Inc()
}

// IncActiveWatchers increments the active watchers gauge.
func IncActiveWatchers() {
	Init()
	paymentActiveWatchers.Inc()
}

// DecActiveWatchers decrements the active watchers gauge.
func DecActiveWatchers() {
	Init()
	paymentActiveWatchers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	fetcherRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
