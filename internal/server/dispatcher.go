// Package server routes inbound frames to the correct handler based on the
// originating session's state.
package server

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const joinCommand = "/join "

// Dispatcher interprets inbound payloads against session state. The first
// frame a session ever sends is its identity, whatever it contains; after
// that a frame is either a join command, a chatroom message, or unroutable.
type Dispatcher struct {
	registry *Registry
	log      zerolog.Logger
}

// NewDispatcher creates a Dispatcher bound to the given chatroom registry.
func NewDispatcher(registry *Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch routes one inbound frame. Client-to-server payloads are raw text,
// not envelopes: the identity line, the literal "/join <room>" command, or
// message content relayed to the session's chatroom. A message from an
// identified session with no chatroom earns a servermsg rejection and is
// dropped, never queued.
func (d *Dispatcher) Dispatch(s *Session, payload []byte) {
	text := strings.TrimSpace(string(payload))

	if s.Identity() == "" {
		s.setIdentity(text)
		s.trySend(EncodeEnvelope(fmt.Sprintf("Connected as %s.", text), ServerAuthor, EventServer))
		d.log.Info().Str("addr", s.Addr()).Str("identity", text).Msg("Session identified")
		return
	}

	if strings.HasPrefix(text, joinCommand) {
		roomName := text[len(joinCommand):]
		d.registry.Join(s, roomName)
		return
	}

	if room := s.Room(); room != "" {
		d.registry.Broadcast(room, EncodeEnvelope(text, s.Identity(), EventMessage))
		return
	}

	s.trySend(EncodeEnvelope("You need to join a chatroom first.", ServerAuthor, EventServer))
	d.log.Debug().Str("addr", s.Addr()).Msg("Dropped message from session without a chatroom")
}
