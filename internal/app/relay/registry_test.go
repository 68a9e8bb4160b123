package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gravechat/internal/app/user"
)

func newTestSession() *Session {
	return &Session{
		id:    "test-session",
		user:  user.User{ID: "u1", Nickname: "alice"},
		send:  make(chan []byte, sendQueueSize),
		rooms: make(map[string]struct{}),
	}
}

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	s := newTestSession()
	reg.AddSession(s)

	reg.Join(s, "r1")
	reg.Join(s, "r1")

	assert.Len(t, reg.Members("r1"), 1, "joining twice must not grow the membership set")
	assert.Contains(t, s.rooms, "r1")
}

func TestRegistry_LeaveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	s := newTestSession()
	reg.AddSession(s)

	// Leaving a room that was never joined is a no-op, not an error.
	reg.Leave(s, "r1")
	assert.Empty(t, reg.Members("r1"))

	reg.Join(s, "r1")
	reg.Leave(s, "r1")
	reg.Leave(s, "r1")

	assert.Empty(t, reg.Members("r1"))
	assert.NotContains(t, s.rooms, "r1")
}

func TestRegistry_MembersOfAbsentRoom(t *testing.T) {
	reg := NewRegistry()

	members := reg.Members("never-created")
	assert.NotNil(t, members)
	assert.Empty(t, members)
}

func TestRegistry_EmptyRoomIsCollected(t *testing.T) {
	reg := NewRegistry()
	s := newTestSession()
	reg.AddSession(s)

	reg.Join(s, "r1")
	assert.Equal(t, 1, reg.RoomCount())

	reg.Leave(s, "r1")
	assert.Equal(t, 0, reg.RoomCount(), "a room with no members holds no state worth keeping")
}

func TestRegistry_RemoveSessionClearsAllRooms(t *testing.T) {
	reg := NewRegistry()
	s := newTestSession()
	other := newTestSession()
	reg.AddSession(s)
	reg.AddSession(other)

	reg.Join(s, "r1")
	reg.Join(s, "r2")
	reg.Join(other, "r1")

	reg.RemoveSession(s)

	assert.NotContains(t, reg.Members("r1"), s)
	assert.Empty(t, reg.Members("r2"))
	assert.Contains(t, reg.Members("r1"), other, "other sessions keep their membership")
	assert.Equal(t, 1, reg.SessionCount())

	// A second removal of the same session must be harmless.
	reg.RemoveSession(s)
	assert.Equal(t, 1, reg.SessionCount())
}

func TestRegistry_SessionsReturnsAllConnected(t *testing.T) {
	reg := NewRegistry()
	a := newTestSession()
	b := newTestSession()
	reg.AddSession(a)
	reg.AddSession(b)

	assert.ElementsMatch(t, []*Session{a, b}, reg.Sessions())
}
