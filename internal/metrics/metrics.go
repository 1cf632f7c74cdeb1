package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamgate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamgate",
		Name:      "active_sessions",
		Help:      "Number of currently active swarm sessions.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamgate",
		Name:      "download_speed_bytes",
		Help:      "Current aggregate download speed in bytes per second.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamgate",
		Name:      "peers_connected",
		Help:      "Total number of peers connected across all sessions.",
	})

	AggregatorSearchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "aggregator_searches_total",
		Help:      "Total number of aggregated stream searches.",
	})

	ConnectorFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "connector_failures_total",
		Help:      "Total number of connector failures by source.",
	}, []string{"source"})

	ConnectorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamgate",
		Name:      "connector_duration_seconds",
		Help:      "Duration of connector searches in seconds.",
		Buckets:   []float64{0.1, 0.3, 0.5, 1, 2, 5, 10, 15},
	}, []string{"source"})

	TranscodeStartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "transcode_starts_total",
		Help:      "Total number of media transcode processes started.",
	})

	TranscodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "transcode_failures_total",
		Help:      "Total number of media transcode processes that exited with an error before any output.",
	})

	BypassFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "bypass_fallbacks_total",
		Help:      "Total number of headless-browser fallbacks for protected hosts.",
	})

	SessionEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "session_evictions_total",
		Help:      "Total number of swarm sessions evicted by the age sweep.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		DownloadSpeedBytes,
		PeersConnected,
		AggregatorSearchesTotal,
		ConnectorFailuresTotal,
		ConnectorDuration,
		TranscodeStartsTotal,
		TranscodeFailuresTotal,
		BypassFallbacksTotal,
		SessionEvictionsTotal,
	)
}
