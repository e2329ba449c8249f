package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Gateway metrics
	ConnectedSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicechat_ws_connected_sockets",
			Help: "Currently registered websocket connections",
		},
	)

	FramesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_ws_frames_delivered_total",
			Help: "Frames queued to websocket connections",
		},
		[]string{"channel"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_ws_frames_dropped_total",
			Help: "Bus payloads dropped before fan-out",
		},
		[]string{"channel", "reason"},
	)

	SlowConsumerDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicechat_ws_slow_consumer_disconnects_total",
			Help: "Connections dropped because their send queue was full",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_auth_failures_total",
			Help: "Rejected tokens",
		},
		[]string{"stage"}, // "connect", "heartbeat" or "http"
	)

	BusPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_bus_publish_errors_total",
			Help: "Failed bus publishes",
		},
		[]string{"channel"},
	)

	// Business metrics
	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicechat_messages_posted_total",
			Help: "Chat messages accepted by the write handler",
		},
	)

	SearchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicechat_search_queries_total",
			Help: "Total search queries",
		},
	)

	// Sync metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voicechat_sync_duration_seconds",
			Help:    "Duration of the boot-time hot/cold synchronization",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	SyncMessagesMigrated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicechat_sync_messages_migrated_total",
			Help: "Hot messages written to the cold store during sync",
		},
	)

	SyncDuplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicechat_sync_duplicates_skipped_total",
			Help: "Hot messages already present in the cold store",
		},
	)

	SyncMessagesRepopulated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicechat_sync_messages_repopulated_total",
			Help: "Cold messages loaded into the hot store during sync",
		},
	)
)
