// Package metrics exposes Prometheus instruments for the matchmaking service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Coordinator gauges, refreshed by the owner loop after every event
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "match_sessions_active",
		Help: "The current number of open sessions.",
	})
	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "match_queue_length",
		Help: "The current number of connections waiting for an opponent.",
	})
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "match_connections_live",
		Help: "The current number of connections known to the coordinator.",
	})

	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_sessions_created_total",
		Help: "The total number of sessions created by pairing.",
	}, []string{"mode"})
	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_sessions_closed_total",
		Help: "The total number of sessions torn down.",
	}, []string{"reason"})
	RoundsRevealed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "match_rounds_revealed_total",
		Help: "The total number of rounds that reached reveal.",
	})
	Forfeits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "match_forfeits_total",
		Help: "The total number of results auto-recorded at the submission deadline.",
	})
	Rejoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_rejoins_total",
		Help: "The total number of rejoin attempts.",
	}, []string{"outcome"})
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_rate_limited_total",
		Help: "The total number of requests rejected by the rate governor.",
	}, []string{"category"})
	CoordinatorPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "match_coordinator_panics_total",
		Help: "The total number of events that panicked and were recovered.",
	})

	// WebSocket Metrics
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_received_total",
		Help: "The total number of messages received from clients.",
	})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_sent_total",
		Help: "The total number of messages queued for clients.",
	})
	SendDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_dropped_total",
		Help: "The total number of outbound messages dropped because the client was gone or slow.",
	})

	// Outbox Metrics
	OutboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "match_outbox_published_total",
		Help: "The total number of lifecycle events published to the event bus.",
	})
	OutboxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "match_outbox_publish_retries_total",
		Help: "The total number of retries when publishing lifecycle events.",
	})
	OutboxDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_outbox_dropped_total",
		Help: "The total number of lifecycle events that were never published.",
	}, []string{"reason"})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
