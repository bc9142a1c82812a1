// Package server coordinates chatroom membership through the Registry type,
// which owns the room-name-to-member mapping shared by every session.
package server

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the process-wide mapping from chatroom names to their member
// sessions. Rooms are created lazily on first join and pruned when the last
// member leaves; no listing operation exists, so pruning is unobservable.
//
// Membership mutation and the snapshot used by Broadcast share one RWMutex so
// a concurrent join or leave can never corrupt a fan-out in progress.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
	log   zerolog.Logger
}

// NewRegistry creates an empty chatroom registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]map[*Session]struct{}),
		log:   logger.With().Str("component", "registry").Logger(),
	}
}

// Join adds the session to the named chatroom, creating the room if it has
// not been seen before. A session belongs to at most one room, so joining
// while a member of another room leaves that room first; re-joining the
// current room collapses to a leave immediately followed by a re-add. The
// joining session receives a confirmation servermsg. Room names are taken
// verbatim; the empty string is a valid, if unusual, room name.
func (r *Registry) Join(s *Session, roomName string) {
	r.mu.Lock()
	if prev := s.Room(); prev != "" {
		r.leaveLocked(s, prev)
	}

	members, ok := r.rooms[roomName]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[roomName] = members
		r.log.Info().Str("room", roomName).Msg("Chatroom created")
	}
	members[s] = struct{}{}
	s.setRoom(roomName)
	memberCount := len(members)
	r.mu.Unlock()

	s.trySend(EncodeEnvelope(fmt.Sprintf("Joined chatroom: %s", roomName), ServerAuthor, EventServer))
	r.log.Info().Str("room", roomName).Str("identity", s.Identity()).Int("members", memberCount).Msg("Session joined chatroom")
}

// Leave removes the session from its current chatroom, if any, and clears the
// session's room attribute. A session with no room is a no-op.
func (r *Registry) Leave(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := s.Room()
	if room == "" {
		return
	}
	r.leaveLocked(s, room)
}

// leaveLocked requires r.mu to be held for writing.
func (r *Registry) leaveLocked(s *Session, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	s.setRoom("")
	s.trySend(EncodeEnvelope(fmt.Sprintf("Left chatroom: %s", room), ServerAuthor, EventServer))
}

// Broadcast delivers the payload to every member of the named chatroom,
// including the sender if it is a member; echo suppression is a client-side
// concern. Delivery is best-effort per member: a failed or slow recipient is
// skipped and never prevents delivery to the rest. The member set is read as
// a consistent snapshot, but the writes themselves are not atomic across
// members.
func (r *Registry) Broadcast(roomName string, payload []byte) {
	r.mu.RLock()
	members := r.rooms[roomName]
	snapshot := make([]*Session, 0, len(members))
	for member := range members {
		snapshot = append(snapshot, member)
	}
	r.mu.RUnlock()

	for _, member := range snapshot {
		if !member.trySend(payload) {
			r.log.Warn().Str("room", roomName).Str("addr", member.Addr()).Msg("Dropping broadcast for unreachable member")
		}
	}
}

// MemberCount returns the number of sessions currently in the named chatroom.
func (r *Registry) MemberCount(roomName string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomName])
}

// RoomCount returns the number of chatrooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
