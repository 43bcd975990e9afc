// Package metrics exposes the Prometheus instrumentation for the coordinator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meetwave_connections_active",
		Help: "Live WebSocket connections.",
	})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meetwave_rooms_active",
		Help: "Meetings with at least one member.",
	})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetwave_events_delivered_total",
		Help: "Outbound events delivered, by event name.",
	}, []string{"event"})

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetwave_frames_dropped_total",
		Help: "Outbound frames dropped on backpressure or dead targets.",
	})

	ChatPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetwave_chat_persist_failures_total",
		Help: "Chat messages that failed to persist (broadcast unaffected).",
	})
)

// Handler exposes the default registry at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
