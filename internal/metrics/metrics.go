package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livechat"

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Open gateway connections.",
	})

	RoomMemberships = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_room_memberships",
		Help:      "Connection-to-room memberships currently held by the hub.",
	})

	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_events_received_total",
		Help:      "Client events received, by event type.",
	}, []string{"event"})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_events_delivered_total",
		Help:      "Server events queued to connections, by event type.",
	}, []string{"event"})

	DroppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_dropped_sends_total",
		Help:      "Sends that found a full connection queue; the connection is evicted.",
	})

	Evictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_evictions_total",
		Help:      "Connections removed by the hub, by reason.",
	}, []string{"reason"})

	MessagesPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_persisted_total",
		Help:      "Messages appended to the store, by target kind.",
	}, []string{"target"})
)
