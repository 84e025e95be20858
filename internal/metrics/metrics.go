// Package metrics exposes Prometheus collectors for the bot.
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
	cyclesTotal           *prometheus.CounterVec
	fetchesTotal          *prometheus.CounterVec
	fetchRetriesTotal     prometheus.Counter
	fetchDurationSeconds  prometheus.Histogram
	parseSkipsTotal       *prometheus.CounterVec
	checkpointsLastParse  prometheus.Gauge
	postsTotal            *prometheus.CounterVec
	lastSuccessUnixTime   prometheus.Gauge
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDurSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times. The observe helpers are
// no-ops until it runs, so leaf packages may record unconditionally.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waitbot_cycles_total",
				Help: "Total pipeline cycles, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waitbot_fetches_total",
				Help: "Total page fetches, labeled by result.",
			},
			[]string{"result"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "waitbot_fetch_retries_total",
				Help: "Total fetch attempts beyond the first within a cycle.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "waitbot_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		parseSkipsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waitbot_parse_skips_total",
				Help: "Checkpoint entries dropped during parsing, labeled by reason.",
			},
			[]string{"reason"},
		)

		checkpointsLastParse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "waitbot_checkpoints_last_parse",
				Help: "Checkpoint count extracted by the most recent parse.",
			},
		)

		postsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waitbot_posts_total",
				Help: "Posting attempts, labeled by status.",
			},
			[]string{"status"},
		)

		lastSuccessUnixTime = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "waitbot_last_success_timestamp_seconds",
				Help: "Unix time of the last cycle that published successfully.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waitbot_http_requests_total",
				Help: "Ops server requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waitbot_http_request_duration_seconds",
				Help:    "Histogram of ops server request latencies.",
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

// ObserveCycle increments the cycle counter for the given outcome.
func ObserveCycle(outcome string) {
	if cyclesTotal == nil {
		return
	}
	cyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records one fetch with its result and latency.
func ObserveFetch(result string, duration time.Duration) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(result).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveFetchRetry counts a retry attempt.
func ObserveFetchRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// ObserveParseSkip counts a dropped checkpoint entry.
func ObserveParseSkip(reason string) {
	if parseSkipsTotal == nil {
		return
	}
	parseSkipsTotal.WithLabelValues(reason).Inc()
}

// SetCheckpointCount records how many checkpoints the latest parse produced.
func SetCheckpointCount(n int) {
	if checkpointsLastParse == nil {
		return
	}
	checkpointsLastParse.Set(float64(n))
}

// ObservePost increments the posting counter for the given status.
func ObservePost(status string) {
	if postsTotal == nil {
		return
	}
	postsTotal.WithLabelValues(status).Inc()
}

// SetLastSuccess records the completion time of a fully published cycle.
func SetLastSuccess(t time.Time) {
	if lastSuccessUnixTime == nil {
		return
	}
	lastSuccessUnixTime.Set(float64(t.Unix()))
}

// ObserveHTTPRequest increments the ops server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
