// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Feed
	FeedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skyfeed_feed_frames_total",
			Help: "Total number of frames read from the upstream feed",
		},
	)

	FeedDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfeed_feed_dropped_total",
			Help: "Total number of feed frames discarded without producing a post",
		},
		[]string{"reason"}, // "binary", "utf8", "json", "kind", "missing_field"
	)

	FeedConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfeed_feed_connects_total",
			Help: "Total number of upstream connection attempts",
		},
		[]string{"result"}, // "success", "error"
	)

	FeedConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skyfeed_feed_connected",
			Help: "1 while the upstream feed connection is open, 0 otherwise",
		},
	)

	// Ingest
	IngestQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skyfeed_ingest_queued_posts",
			Help: "Number of posts waiting in the ingest buffer",
		},
	)

	IngestFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfeed_ingest_flushes_total",
			Help: "Total number of non-empty buffer flushes",
		},
		[]string{"trigger", "result"}, // trigger: "size", "timer", "shutdown"; result: "success", "error"
	)

	IngestInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skyfeed_ingest_inserted_total",
			Help: "Total number of posts newly written to the store",
		},
	)

	IngestDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skyfeed_ingest_duplicates_total",
			Help: "Total number of flushed posts skipped because their URI was already stored",
		},
	)

	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skyfeed_ingest_flush_duration_seconds",
			Help:    "Duration of buffer flushes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	Evicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skyfeed_store_evicted_total",
			Help: "Total number of posts removed by retention eviction",
		},
	)

	// Live sessions
	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skyfeed_live_sessions",
			Help: "Number of live sessions currently streaming",
		},
	)

	Renders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfeed_live_renders_total",
			Help: "Total number of live session renders",
		},
		[]string{"result"}, // "success", "error"
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfeed_notifications_total",
			Help: "Total number of notifications published",
		},
		[]string{"topic"}, // "global", "scoped"
	)
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
