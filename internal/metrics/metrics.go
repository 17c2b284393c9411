// Package metrics provides Prometheus metrics for gophbeat.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gophbeat"

var (
	// HeartbeatsTotal counts heartbeat attempts by source and result
	// (sent, failed, idle, disabled, in_flight).
	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeat attempts by source and result",
		},
		[]string{"source", "result"},
	)

	// NotificationsTotal counts notification requests by outcome
	// (sent, suppressed, rate_limited, failed).
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification requests by outcome",
		},
		[]string{"result"},
	)

	// PushMessagesTotal counts inbound push messages by payload type.
	PushMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_messages_total",
			Help:      "Inbound push messages by type",
		},
		[]string{"type"},
	)

	// ChannelMessagesTotal counts inter-process messages by direction and type.
	ChannelMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_messages_total",
			Help:      "Inter-process channel messages by direction and type",
		},
		[]string{"direction", "type"},
	)

	// IntentsPending tracks retry intents waiting for the worker.
	IntentsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_intents_pending",
			Help:      "Retry intents waiting for the background worker",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
