// Package server manages individual relay sessions, handling read/write pumps
// and lifecycle control for each connection.
package server

import (
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session represents one live connection in the relay, independent of whether
// it arrived over TCP or WebSocket. It tracks the peer's identity (set exactly
// once by the first inbound frame), its current chatroom (at most one), and
// the outbound send queue drained by the write pump.
type Session struct {
	id   string
	conn streamConn
	send chan []byte
	addr string

	hub      *Hub
	registry *Registry
	dispatch *Dispatcher
	log      zerolog.Logger

	mu       sync.Mutex
	identity string
	room     string
	closed   bool

	disconnectOnce sync.Once
}

func newSession(conn streamConn, hub *Hub, registry *Registry, dispatcher *Dispatcher) *Session {
	cfg := currentConfig()
	id := uuid.NewString()
	return &Session{
		id:       id,
		conn:     conn,
		send:     make(chan []byte, cfg.SendBuffer),
		addr:     conn.RemoteAddr(),
		hub:      hub,
		registry: registry,
		dispatch: dispatcher,
		log:      hub.log.With().Str("session", id).Str("addr", conn.RemoteAddr()).Logger(),
	}
}

// NewTCPSession wraps a raw TCP connection in a newline-framed session. The
// caller still has to register the session with the hub, which launches the
// read and write pumps.
func NewTCPSession(conn net.Conn, hub *Hub, registry *Registry, dispatcher *Dispatcher) *Session {
	cfg := currentConfig()
	return newSession(newTCPConn(conn, cfg.MaxFrameSize), hub, registry, dispatcher)
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Addr returns the remote address of the session's transport.
func (s *Session) Addr() string {
	return s.addr
}

// Identity returns the peer's identity, or the empty string while the session
// is still unidentified.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Room returns the name of the chatroom the session currently belongs to, or
// the empty string when it has none.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
}

func (s *Session) setRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
}

// trySend queues a payload for delivery without blocking. It reports false
// when the session is closed or its send buffer is full; callers treat both
// as a best-effort delivery failure, never as a fatal condition.
func (s *Session) trySend(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// markClosed flips the session into its terminal state and closes the send
// queue so the write pump drains and exits. Only the hub calls this, exactly
// once per session.
func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// Disconnect runs the session teardown path: leave the current chatroom,
// unregister from the hub, and announce the departure to every live session.
// It is idempotent; a second invocation is a no-op.
func (s *Session) Disconnect() {
	s.disconnectOnce.Do(func() {
		s.registry.Leave(s)
		s.hub.requestUnregister(s)
		s.hub.announceAll(EncodeEnvelope(s.addr+" disconnected", ServerAuthor, EventServer))
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn().Err(err).Msg("Error closing connection during disconnect")
		}
	})
}

func (s *Session) readPump() {
	defer s.Disconnect()

	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			if !isExpectedCloseError(err) {
				s.log.Warn().Err(err).Msg("Read failed")
			}
			return
		}
		s.dispatch.Dispatch(s, frame)
	}
}

func (s *Session) writePump() {
	defer func() {
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn().Err(err).Msg("Error closing connection in write pump")
		}
	}()

	for payload := range s.send {
		if err := s.conn.WriteFrame(payload); err != nil {
			if !isExpectedCloseError(err) {
				s.log.Warn().Err(err).Msg("Write failed")
			}
			return
		}
	}
}
