// Package server exports Prometheus instrumentation for connection, room,
// and message activity, served at /metrics.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomchat_connected_clients",
		Help: "Number of currently open WebSocket connections.",
	})

	metricOpenRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomchat_open_rooms",
		Help: "Number of registered rooms. Rooms are never deleted, so this only grows.",
	})

	metricMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomchat_messages_total",
		Help: "Total chat messages broadcast to rooms.",
	})

	metricReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomchat_reaped_connections_total",
		Help: "Total connections terminated by the heartbeat sweep.",
	})
)
