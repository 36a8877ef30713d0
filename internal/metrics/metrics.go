package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_connections_active",
			Help: "Live signaling connections",
		},
	)

	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_messages_relayed_total",
			Help: "Inbound messages fanned out to room peers",
		},
		[]string{"type"},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_delivery_failures_total",
			Help: "Per-peer send failures that triggered eviction",
		},
	)

	JoinsRefused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_joins_refused_total",
			Help: "Connections refused because the room was missing or closed",
		},
	)

	RoomsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_rooms_closed_total",
			Help: "Rooms closed after their last participant left",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_store_errors_total",
			Help: "Best-effort store operations that failed",
		},
		[]string{"op"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_rate_limit_hits_total",
			Help: "Inbound messages rejected by the per-participant rate limit",
		},
	)
)
