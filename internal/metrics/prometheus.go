// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReportsReceived tracks inventory reports by outcome.
	ReportsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equipment_reports_total",
			Help: "Total inventory reports received by status",
		},
		[]string{"status"},
	)

	// HeartbeatsReceived tracks heartbeat pings by outcome.
	HeartbeatsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equipment_heartbeats_total",
			Help: "Total heartbeats received by status",
		},
		[]string{"status"},
	)

	// EstimationScore tracks the distribution of computed performance scores.
	EstimationScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "equipment_estimation_score",
			Help:    "Distribution of computed equipment performance scores",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	// SweepsTotal tracks liveness sweeps by result.
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveness_sweeps_total",
			Help: "Total liveness sweeps by result",
		},
		[]string{"result"},
	)

	// SweepDuration tracks liveness sweep duration.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "liveness_sweep_duration_seconds",
			Help:    "Liveness sweep duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// MarkedOffline tracks devices flipped offline by the sweeper.
	MarkedOffline = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "equipment_marked_offline_total",
			Help: "Total devices marked offline by the liveness sweeper",
		},
	)

	// RealtimeSubscribers tracks currently connected realtime viewers.
	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscribers",
			Help: "Current number of connected realtime subscribers",
		},
	)

	// RealtimeEventsPublished tracks published equipment records by source.
	RealtimeEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Total equipment records published to realtime subscribers by source",
		},
		[]string{"source"},
	)

	// RealtimeEventsDropped tracks events dropped for slow subscribers.
	RealtimeEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Total realtime events dropped because a subscriber queue was full",
		},
	)

	// HTTPRequestsTotal tracks total HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DatabaseQueryDuration tracks database query duration.
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// RegisterMetricsEndpoint registers the /metrics endpoint on a Gin router.
func RegisterMetricsEndpoint(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// HTTPMetrics returns a Gin middleware recording request counts and latency.
// The route template is used as the path label to keep cardinality bounded.
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()))
		RecordHTTPRequestDuration(c.Request.Method, path, time.Since(start).Seconds())
	}
}

// RecordReport records an inventory report outcome.
func RecordReport(status string) {
	ReportsReceived.WithLabelValues(status).Inc()
}

// RecordHeartbeat records a heartbeat outcome.
func RecordHeartbeat(status string) {
	HeartbeatsReceived.WithLabelValues(status).Inc()
}

// RecordEstimation records a computed performance score.
func RecordEstimation(score float64) {
	EstimationScore.Observe(score)
}

// RecordSweep records one liveness sweep.
func RecordSweep(err error, flipped int, seconds float64) {
	SweepDuration.Observe(seconds)
	if err != nil {
		SweepsTotal.WithLabelValues("error").Inc()
		return
	}
	SweepsTotal.WithLabelValues("ok").Inc()
	MarkedOffline.Add(float64(flipped))
}

// SetRealtimeSubscribers sets the number of connected realtime subscribers.
func SetRealtimeSubscribers(count int) {
	RealtimeSubscribers.Set(float64(count))
}

// RecordEventsPublished records records published to realtime subscribers.
func RecordEventsPublished(source string, count int) {
	RealtimeEventsPublished.WithLabelValues(source).Add(float64(count))
}

// RecordEventDropped records an event dropped for a slow subscriber.
func RecordEventDropped() {
	RealtimeEventsDropped.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(method, path string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordDatabaseQuery records database query duration.
func RecordDatabaseQuery(operation string, seconds float64) {
	DatabaseQueryDuration.WithLabelValues(operation).Observe(seconds)
}
