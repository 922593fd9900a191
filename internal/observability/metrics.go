// Package observability provides prometheus metrics and tracing bootstrap.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts domain events published to the bus by topic.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_events_published_total",
		Help: "Total number of domain events published to the event bus",
	}, []string{"topic"})

	// EventsDelivered counts event frames delivered to websocket subscribers by topic.
	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_events_delivered_total",
		Help: "Total number of event frames fanned out to subscribers",
	}, []string{"topic"})

	// MessagesSent counts persisted chat messages by chat type.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_messages_sent_total",
		Help: "Total number of chat messages persisted",
	}, []string{"chat_type"})

	// ActiveSubscriptions is the gauge of live topic subscriptions.
	ActiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parley_active_subscriptions",
		Help: "Number of live websocket topic subscriptions",
	}, []string{"topic"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// RedisErrors counts failed Redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_redis_errors_total",
		Help: "Total number of Redis command errors",
	}, []string{"command"})
)
