// Package metrics 定義 Prometheus 指標
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesAppendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_room_messages_appended_total",
			Help: "Messages persisted to room logs",
		},
		[]string{"kind"},
	)

	FeedbackRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_room_feedback_requests_total",
			Help: "Feedback generation attempts by capability and outcome",
		},
		[]string{"capability", "outcome"},
	)

	FeedbackDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debate_room_feedback_duration_seconds",
			Help:    "Feedback provider call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"capability"},
	)

	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_room_circuit_breaker_state_changes_total",
			Help: "Circuit breaker transitions around feedback providers",
		},
		[]string{"name", "from", "to"},
	)

	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_room_broadcasts_total",
			Help: "Events broadcast to room subscribers",
		},
	)

	BroadcastSendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_room_broadcast_send_failures_total",
			Help: "Connections pruned because a send failed during broadcast",
		},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "debate_room_websocket_connections",
			Help: "Currently subscribed WebSocket connections",
		},
	)

	ResidentSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "debate_room_resident_sessions",
			Help: "Live sessions held in memory",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_room_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)
