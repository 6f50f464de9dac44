// Package server wires HTTP handlers into a ServeMux for the RoomChat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: the WebSocket endpoint, health check, Prometheus metrics, and the
// static file root for the browser client assets.
func SetupRoutes(hub *Hub) *http.ServeMux {
	cfg := currentConfig()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", WebSocketHandler(hub))
	mux.HandleFunc("/healthz", HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	return mux
}
