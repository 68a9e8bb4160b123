/*
Package relay contains the core logic of the real-time chat relay: the room
registry, the hub event loop that fans messages out to room members, and the
per-connection session lifecycle.

This file defines the wire protocol shared by the server and the Go client:
a small JSON envelope carrying one of four event kinds over a persistent
WebSocket connection.
*/
package relay

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of event carried by an Envelope.
type EventType string

const (
	// EventJoin registers the sending session as a member of a room.
	EventJoin EventType = "JOIN"

	// EventLeave removes the sending session from a room.
	EventLeave EventType = "LEAVE"

	// EventMessage carries a chat message. The relay rebroadcasts the payload
	// verbatim to the resolved audience.
	EventMessage EventType = "MESSAGE"

	// EventError carries a server-side error notice back to the offending session.
	EventError EventType = "ERROR"
)

// MaxContentBytes is the maximum allowed size (in bytes) for message text.
const MaxContentBytes = 5000

// Envelope is the frame exchanged over the WebSocket in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomRef is the payload of JOIN and LEAVE events.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// Message is the payload of a MESSAGE event.
//
// The sender assigns Timestamp at the moment the message is persisted and
// emits the identical payload to the relay, so (Timestamp, SenderID) works as
// a de-duplication key on the receiving side regardless of which path a copy
// arrived through. An empty RoomID addresses the unscoped global channel.
type Message struct {
	SenderName string `json:"senderName"`
	SenderID   string `json:"senderId,omitempty"`
	Text       string `json:"text"`
	RoomID     string `json:"roomId,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// DedupKey returns the composite identity of a message delivery, built from
// the creation timestamp and the sender identity.
func (m Message) DedupKey() string {
	return m.Timestamp + "|" + m.SenderID
}

// ErrorNotice is the payload of an ERROR event.
type ErrorNotice struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DecodeEnvelope parses a raw frame into an Envelope.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	return env, nil
}

// EncodeEnvelope marshals the payload and wraps it in an Envelope of the given type.
func EncodeEnvelope(eventType EventType, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return json.Marshal(Envelope{
		Type:    eventType,
		Payload: payloadBytes,
	})
}
