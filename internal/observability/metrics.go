package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "verifications_total",
		Help:      "Face verifications by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "verify_stage_duration_seconds",
		Help:      "Duration of verification stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	RemoteFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "remote_fetches_total",
		Help:      "Reference image fetches by status class",
	}, []string{"status"})

	AnalyzerSlotsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "analyzer_slots_in_use",
		Help:      "Face analysis worker slots currently held",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "events_published_total",
		Help:      "Attendance events published to NATS",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
