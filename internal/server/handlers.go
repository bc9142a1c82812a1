// Package server exposes the WebSocket gateway handlers, including connection
// upgrades and health checks.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Gateway serves the relay protocol over WebSocket as a second listener next
// to the TCP server. Upgraded connections run through the exact same session,
// registry, and dispatcher machinery as TCP peers.
type Gateway struct {
	hub      *Hub
	registry *Registry
	dispatch *Dispatcher
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewGateway creates a WebSocket gateway bound to the given hub, registry,
// and dispatcher.
func NewGateway(hub *Hub, registry *Registry, dispatcher *Dispatcher, logger zerolog.Logger) *Gateway {
	g := &Gateway{
		hub:      hub,
		registry: registry,
		dispatch: dispatcher,
		log:      logger.With().Str("component", "gateway").Logger(),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if isOriginAllowed(r) {
		return true
	}

	g.log.Warn().Str("origin", r.Header.Get("Origin")).Msg("Blocked WebSocket connection from disallowed origin")
	return false
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection, wraps it in a
// session, and registers the session with the hub, which launches the pumps.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	cfg := currentConfig()
	session := newSession(newWSConn(conn, cfg.MaxFrameSize), g.hub, g.registry, g.dispatch)
	g.hub.Register(session)
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the relay is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "ChatRelay server is running!")
}
