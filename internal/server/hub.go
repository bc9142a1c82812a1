// Package server coordinates session registration, server-wide announcements,
// and connection cleanup for the ChatRelay system via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hub manages the set of all live sessions across every transport. It owns
// session registration/unregistration and the server-wide announcement path
// used for disconnect notices, which deliberately reach every live session
// rather than only the departing session's chatroom.
type Hub struct {
	sessions   map[*Session]bool
	register   chan *Session
	unregister chan *Session
	announce   chan []byte
	mu         sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        zerolog.Logger
}

// NewHub creates and initializes a new Hub instance with all necessary
// channels and the session set. The returned Hub is ready to manage
// connections once Run is started.
func NewHub(logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		announce:   make(chan []byte),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        logger.With().Str("component", "hub").Logger(),
	}
}

// Register hands a new session to the hub. The hub adds it to the live set
// and launches its read and write pumps. Registration is dropped when the hub
// is already shutting down.
func (h *Hub) Register(s *Session) {
	select {
	case h.register <- s:
	case <-h.ctx.Done():
	}
}

// requestUnregister removes the session from the live set. Safe to invoke for
// a session that was already removed; the removal is guarded by map presence.
// Once the hub is shutting down the event loop is gone, so the removal runs
// inline to unblock the session's write pump.
func (h *Hub) requestUnregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.ctx.Done():
		h.removeSession(s)
	}
}

// announceAll queues a payload for delivery to every live session.
func (h *Hub) announceAll(payload []byte) {
	select {
	case h.announce <- payload:
	case <-h.ctx.Done():
	}
}

// SessionCount returns the number of currently registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Run starts the hub's main event loop, handling session registration,
// unregistration, and server-wide announcements. This method should be called
// in a separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case s := <-h.register:
			if s == nil {
				h.log.Warn().Msg("Received nil session registration; skipping")
				continue
			}

			h.mu.Lock()
			h.sessions[s] = true
			sessionCount := len(h.sessions)
			h.mu.Unlock()
			h.log.Info().Str("addr", s.addr).Int("total", sessionCount).Msg("Session registered")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				s.writePump()
			}()
			go func() {
				defer h.wg.Done()
				s.readPump()
			}()

		case s := <-h.unregister:
			h.removeSession(s)

		case payload := <-h.announce:
			h.handleAnnouncement(payload)
		}
	}
}

// removeSession deletes the session from the live set and closes its send
// queue. A session that was already removed is left untouched, which keeps
// the disconnect path idempotent even if it is signaled more than once.
func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	sessionCount := len(h.sessions)
	h.mu.Unlock()

	s.markClosed()
	h.log.Info().Str("addr", s.addr).Int("total", sessionCount).Msg("Session unregistered")
}

// handleAnnouncement fans the payload out to a snapshot of the live set and
// evicts sessions whose send buffers are full.
func (h *Hub) handleAnnouncement(payload []byte) {
	sessions := h.sessionSnapshot()

	var failed []*Session
	for _, s := range sessions {
		if !s.trySend(payload) {
			failed = append(failed, s)
		}
	}

	for _, s := range failed {
		h.removeSession(s)
		h.log.Warn().Str("addr", s.addr).Msg("Session removed due to full send buffer")
	}
}

// sessionSnapshot returns a thread-safe snapshot of all current sessions.
func (h *Hub) sessionSnapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// shutdownSessions closes all active session transports.
func (h *Hub) shutdownSessions() {
	sessions := h.sessionSnapshot()

	for _, s := range sessions {
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn().Str("addr", s.addr).Err(err).Msg("Error closing session connection")
		}
	}

	h.log.Info().Int("count", len(sessions)).Msg("Closed session connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all session
// goroutines to complete. It returns after all connections are closed and the
// pumps have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("Initiating hub shutdown")

	h.cancel()

	// Wait for Run() to complete.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
