package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gravechat/internal/app/user"
	"gravechat/internal/pkg/errs"
)

const deliveryTimeout = time.Second

// connectSession registers a fresh session with the hub. Pumps are not
// started; tests read frames straight off the send queue.
func connectSession(t *testing.T, h *Hub, userID string) *Session {
	t.Helper()

	s := NewSession(h, nil, user.User{ID: userID, Nickname: userID})
	h.Register(s)
	return s
}

// sendEvent pushes a raw client event into the hub's event loop.
func sendEvent(t *testing.T, h *Hub, s *Session, eventType EventType, payload any) {
	t.Helper()

	payloadBytes, err := json.Marshal(payload)
	require.NoError(t, err)

	h.events <- sessionEvent{
		session:  s,
		envelope: Envelope{Type: eventType, Payload: payloadBytes},
	}
}

// recvMessage waits for one MESSAGE frame delivered to the session.
func recvMessage(t *testing.T, s *Session) Message {
	t.Helper()

	select {
	case frame := <-s.send:
		env, err := DecodeEnvelope(frame)
		require.NoError(t, err)
		require.Equal(t, EventMessage, env.Type)

		var msg Message
		require.NoError(t, json.Unmarshal(env.Payload, &msg))
		return msg

	case <-time.After(deliveryTimeout):
		t.Fatal("timeout: no frame delivered to session")
		return Message{}
	}
}

// assertNoFrame asserts that nothing is queued for the session. Callers must
// first synchronize on a delivery to another session so the hub has already
// processed the event in question.
func assertNoFrame(t *testing.T, s *Session) {
	t.Helper()

	select {
	case frame, ok := <-s.send:
		if ok {
			t.Fatalf("unexpected frame delivered: %s", frame)
		}
	default:
	}
}

func TestHub_RoomFanOutReachesMembersIncludingSender(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	a := connectSession(t, h, "alice")
	b := connectSession(t, h, "bob")
	outsider := connectSession(t, h, "carol")

	sendEvent(t, h, a, EventJoin, RoomRef{RoomID: "r1"})
	sendEvent(t, h, b, EventJoin, RoomRef{RoomID: "r1"})

	sent := Message{SenderName: "alice", SenderID: "alice", Text: "hi", RoomID: "r1", Timestamp: "t0"}
	sendEvent(t, h, a, EventMessage, sent)

	got := recvMessage(t, b)
	assert.Equal(t, sent, got, "payload must be rebroadcast verbatim")

	// The sender's own session is part of the audience; suppressing the echo
	// is the client's job.
	assert.Equal(t, sent, recvMessage(t, a))

	assertNoFrame(t, outsider)
}

func TestHub_EmptyRoomFanOutIsNoOp(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	a := connectSession(t, h, "alice")

	// Nobody has joined r1, not even the sender.
	sendEvent(t, h, a, EventMessage, Message{SenderName: "alice", Text: "hello?", RoomID: "r1"})

	// Synchronize on a follow-up global broadcast so the first event is
	// known to have been processed.
	sendEvent(t, h, a, EventMessage, Message{SenderName: "alice", Text: "global"})
	got := recvMessage(t, a)
	assert.Equal(t, "global", got.Text)

	assertNoFrame(t, a)
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	a := connectSession(t, h, "alice")
	b := connectSession(t, h, "bob")

	sendEvent(t, h, a, EventJoin, RoomRef{RoomID: "r1"})
	sendEvent(t, h, b, EventJoin, RoomRef{RoomID: "r1"})
	sendEvent(t, h, a, EventLeave, RoomRef{RoomID: "r1"})

	sendEvent(t, h, b, EventMessage, Message{SenderName: "bob", SenderID: "bob", Text: "anyone?", RoomID: "r1"})

	assert.Equal(t, "anyone?", recvMessage(t, b).Text)
	assertNoFrame(t, a)
}

func TestHub_DisconnectRemovesSessionFromAllRooms(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	a := connectSession(t, h, "alice")
	b := connectSession(t, h, "bob")

	sendEvent(t, h, a, EventJoin, RoomRef{RoomID: "r1"})
	sendEvent(t, h, a, EventJoin, RoomRef{RoomID: "r2"})
	sendEvent(t, h, b, EventJoin, RoomRef{RoomID: "r1"})

	h.unregister <- a

	sendEvent(t, h, b, EventMessage, Message{SenderName: "bob", SenderID: "bob", Text: "still here", RoomID: "r1"})

	assert.Equal(t, "still here", recvMessage(t, b).Text)

	// The disconnected session's queue was closed without any fan-out frame.
	select {
	case frame, ok := <-a.send:
		assert.False(t, ok, "expected closed send queue, got frame: %s", frame)
	case <-time.After(deliveryTimeout):
		t.Fatal("timeout: send queue was not closed on disconnect")
	}
}

func TestHub_DisconnectAfterShutdownDoesNotBlock(t *testing.T) {
	h := NewHub()
	s := connectSession(t, h, "alice")

	h.Shutdown()

	finished := make(chan struct{})
	go func() {
		s.signalDisconnect()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(deliveryTimeout):
		t.Fatal("timeout: disconnect hand-off blocked after hub shutdown")
	}
}

func TestHub_GlobalBroadcastWithoutRoomID(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	a := connectSession(t, h, "alice")
	b := connectSession(t, h, "bob")
	c := connectSession(t, h, "carol")

	// b sits in a room; the unscoped channel still reaches it.
	sendEvent(t, h, b, EventJoin, RoomRef{RoomID: "r1"})

	sendEvent(t, h, a, EventMessage, Message{SenderName: "alice", Text: "everyone"})

	for _, s := range []*Session{a, b, c} {
		assert.Equal(t, "everyone", recvMessage(t, s).Text)
	}
}

func TestHub_OversizedMessageIsRejected(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	a := connectSession(t, h, "alice")
	b := connectSession(t, h, "bob")

	sendEvent(t, h, a, EventJoin, RoomRef{RoomID: "r1"})
	sendEvent(t, h, b, EventJoin, RoomRef{RoomID: "r1"})

	huge := make([]byte, MaxContentBytes+1)
	for i := range huge {
		huge[i] = 'x'
	}
	sendEvent(t, h, a, EventMessage, Message{SenderName: "alice", Text: string(huge), RoomID: "r1"})

	select {
	case frame := <-a.send:
		env, err := DecodeEnvelope(frame)
		require.NoError(t, err)
		assert.Equal(t, EventError, env.Type)

		var notice ErrorNotice
		require.NoError(t, json.Unmarshal(env.Payload, &notice))
		assert.Equal(t, errs.ErrMessageContentTooLong, notice.Code)

	case <-time.After(deliveryTimeout):
		t.Fatal("timeout: sender did not receive an error notice")
	}

	assertNoFrame(t, b)
}

func TestHub_InvalidJoinPayloadIsIgnored(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	a := connectSession(t, h, "alice")

	h.events <- sessionEvent{
		session:  a,
		envelope: Envelope{Type: EventJoin, Payload: json.RawMessage(`{"roomId":""}`)},
	}

	// The hub keeps running and still serves the session.
	sendEvent(t, h, a, EventMessage, Message{SenderName: "alice", Text: "ping"})
	assert.Equal(t, "ping", recvMessage(t, a).Text)
}
