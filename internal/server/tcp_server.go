// Package server implements the TCP listener that is the relay's primary
// transport.
package server

import (
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

// TCPServer accepts raw TCP connections and hands each one to the hub as a
// newline-framed session.
type TCPServer struct {
	addr     string
	hub      *Hub
	registry *Registry
	dispatch *Dispatcher
	log      zerolog.Logger
	listener net.Listener
}

// NewTCPServer creates a TCP listener bound to addr (host:port) once Start is
// called.
func NewTCPServer(addr string, hub *Hub, registry *Registry, dispatcher *Dispatcher, logger zerolog.Logger) *TCPServer {
	return &TCPServer{
		addr:     addr,
		hub:      hub,
		registry: registry,
		dispatch: dispatcher,
		log:      logger.With().Str("component", "tcp").Logger(),
	}
}

// Start begins listening and accepting connections. It returns once the
// listener is bound; accepted connections are handled on a background
// goroutine.
func (s *TCPServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listener = listener

	s.log.Info().Str("addr", listener.Addr().String()).Msg("Serving")
	go s.acceptLoop()
	return nil
}

// Addr returns the listener's bound address, useful when the configured port
// was 0 and the OS picked one.
func (s *TCPServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener. Established sessions stay up; the hub owns their
// shutdown.
func (s *TCPServer) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *TCPServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("Accept failed")
			continue
		}

		session := NewTCPSession(conn, s.hub, s.registry, s.dispatch)
		s.hub.Register(session)
	}
}
