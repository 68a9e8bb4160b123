/*
Package relay contains the core logic of the real-time chat relay.

This file defines the Registry, the authoritative in-memory record of which
sessions currently belong to which rooms. It holds no other room state, so an
empty room and an absent room are interchangeable.
*/
package relay

// Registry maps room identifiers to the set of currently connected sessions.
//
// It is owned by the Hub's event loop and must only be touched from there.
// Every mutation happens synchronously inside a single loop iteration, which
// is what lets the registry stay lock-free.
type Registry struct {
	// sessions holds every currently connected session, for process-wide fan-out.
	sessions map[*Session]struct{}

	// rooms maps a room identifier to its membership set. Rooms are created
	// implicitly on first join and garbage-collected when their last member leaves.
	rooms map[string]map[*Session]struct{}
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[*Session]struct{}),
		rooms:    make(map[string]map[*Session]struct{}),
	}
}

// AddSession records a newly connected session. The session starts with no
// room memberships.
func (reg *Registry) AddSession(s *Session) {
	reg.sessions[s] = struct{}{}
}

// Join adds the session to the room's membership set, creating the room
// record if it does not exist yet. Joining a room twice has no additional
// effect.
func (reg *Registry) Join(s *Session, roomID string) {
	members, ok := reg.rooms[roomID]
	if !ok {
		members = make(map[*Session]struct{})
		reg.rooms[roomID] = members
	}

	members[s] = struct{}{}
	s.rooms[roomID] = struct{}{}
}

// Leave removes the session from the room's membership set. Leaving a room
// the session never joined, or a room that does not exist, is a no-op.
func (reg *Registry) Leave(s *Session, roomID string) {
	members, ok := reg.rooms[roomID]
	if !ok {
		return
	}

	delete(members, s)
	delete(s.rooms, roomID)

	if len(members) == 0 {
		delete(reg.rooms, roomID)
	}
}

// RemoveSession removes the session from every room it belonged to and from
// the connected-session set. It is safe to call for a session that was
// already removed.
func (reg *Registry) RemoveSession(s *Session) {
	for roomID := range s.rooms {
		reg.Leave(s, roomID)
	}

	delete(reg.sessions, s)
}

// Members returns the current membership set of the room. An absent room
// yields an empty slice, not an error.
func (reg *Registry) Members(roomID string) []*Session {
	members := reg.rooms[roomID]

	result := make([]*Session, 0, len(members))
	for s := range members {
		result = append(result, s)
	}

	return result
}

// Sessions returns every currently connected session, the audience of the
// unscoped global channel.
func (reg *Registry) Sessions() []*Session {
	result := make([]*Session, 0, len(reg.sessions))
	for s := range reg.sessions {
		result = append(result, s)
	}

	return result
}

// SessionCount reports the number of currently connected sessions.
func (reg *Registry) SessionCount() int {
	return len(reg.sessions)
}

// RoomCount reports the number of rooms with at least one member.
func (reg *Registry) RoomCount() int {
	return len(reg.rooms)
}
