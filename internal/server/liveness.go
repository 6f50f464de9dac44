// Package server detects and reaps dead connections through a periodic
// heartbeat sweep over every open client.
package server

import (
	"log"
	"time"
)

// StartLivenessMonitor launches the heartbeat sweep on a fixed interval. Each
// tick, a connection whose liveness flag was never raised since the previous
// tick is forcibly terminated through the normal disconnect path; every other
// connection has its flag lowered and receives a ping probe. A pong raises
// the flag again, so a connection survives one missed probe and is reaped on
// two consecutive misses. The monitor stops when the hub shuts down.
func (h *Hub) StartLivenessMonitor(interval time.Duration) {
	if interval <= 0 {
		interval = defaultConfig().HeartbeatInterval
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Printf("Liveness monitor started with %s interval", interval)
		for {
			select {
			case <-h.ctx.Done():
				return
			case <-ticker.C:
				h.sweepClients()
			}
		}
	}()
}

// sweepClients performs one heartbeat pass over a snapshot of the open
// connections. Termination of a dead client runs the same cleanup as an
// explicit disconnect, including the user_left notification to its room.
func (h *Hub) sweepClients() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if !client.alive.Load() {
			log.Printf("Client %s from %s failed two heartbeat probes; terminating", client.id, client.addr)
			metricReapedTotal.Inc()
			h.disconnectClient(client)
			continue
		}

		client.alive.Store(false)
		client.queuePing()
	}
}
