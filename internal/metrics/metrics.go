package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_open",
			Help: "Currently open peer connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_rooms_active",
			Help: "Rooms with at least one member",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total peer connections accepted",
		},
	)

	// Signaling metrics
	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_relayed_total",
			Help: "Negotiation messages forwarded between peers",
		},
		[]string{"type"}, // "offer", "answer", "ice-candidate"
	)

	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_protocol_errors_total",
			Help: "Error frames sent to clients",
		},
		[]string{"reason"},
	)

	PingTerminations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_ping_terminations_total",
			Help: "Connections terminated for missing a pong cycle",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_hits_total",
			Help: "Connection attempts rejected by the rate limiter",
		},
	)
)
