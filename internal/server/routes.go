// Package server wires the gateway handlers into a ServeMux via routing
// helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with the gateway routes:
// the health check and the WebSocket endpoint.
func (g *Gateway) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", g.WebSocketHandler)
	return mux
}
