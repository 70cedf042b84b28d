package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "collab_active_connections",
		Help:      "Registered collaboration connections",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "collab_active_rooms",
		Help:      "Note rooms with at least one member",
	})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collab_transitions_total",
		Help:      "Committed membership transitions by kind",
	}, []string{"kind"})

	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collab_rejections_total",
		Help:      "Rejected collaboration operations by reason",
	}, []string{"reason"})

	BroadcastFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collab_broadcast_frames_total",
		Help:      "Frames queued for delivery by frame type",
	}, []string{"type"})

	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collab_delivery_failures_total",
		Help:      "Frames that could not be queued for a connection",
	}, []string{"type"})

	PresenceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collab_presence_writes_total",
		Help:      "Presence mirror writes to Redis by result",
	}, []string{"result"})
)
