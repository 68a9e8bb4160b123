/*
Package chatclient implements the client side of the chat core: an explicitly
owned relay connection, the persistence-collaborator adapter, and the
conversation view that reconciles persisted history with live relay events.

This file defines the RelayClient, the one connection object a client process
creates and keeps for its lifetime. It dials the relay, routes inbound
MESSAGE events to per-room subscriptions, and transparently redials on
transport failure, re-emitting JOIN for every room the client still
considers active.
*/
package chatclient

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gravechat/internal/app/relay"
	"gravechat/internal/pkg/logx"
)

const (
	// relayWriteWait bounds every write to the relay connection.
	relayWriteWait = 10 * time.Second

	// redialBaseDelay and redialMaxDelay bound the reconnect backoff.
	redialBaseDelay = time.Second
	redialMaxDelay  = 30 * time.Second

	// eventBuffer is the capacity of each room subscription stream.
	eventBuffer = 64
)

// RelayClient is a live connection to the relay server. All methods are safe
// for concurrent use.
type RelayClient struct {
	url    string
	dialer *websocket.Dialer

	// mu guards conn, joined, subs, and serializes writes to the connection.
	mu     sync.Mutex
	conn   *websocket.Conn
	joined map[string]struct{}

	// subs maps a room id to its subscriber's event stream. One connection
	// serves every open conversation in the process, so inbound messages are
	// demultiplexed by room here rather than handed to a single consumer.
	subs map[string]chan relay.Message

	closed    chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

// DialRelay establishes the relay connection and starts the read loop.
func DialRelay(ctx context.Context, url string) (*RelayClient, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	rc := &RelayClient{
		url:    url,
		dialer: dialer,
		conn:   conn,
		joined: make(map[string]struct{}),
		subs:   make(map[string]chan relay.Message),
		closed: make(chan struct{}),
		logger: logx.Logger().With().Str("component", "RelayClient").Logger(),
	}

	go rc.readLoop()

	return rc, nil
}

// Subscribe returns the stream of live MESSAGE events addressed to the given
// room. Messages without a room id (the unscoped global channel) are fanned
// out to every subscription. Subscribing to the same room twice yields the
// same stream. The channel is closed by Unsubscribe or when the client is
// closed.
func (rc *RelayClient) Subscribe(roomID string) <-chan relay.Message {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	ch, ok := rc.subs[roomID]
	if !ok {
		ch = make(chan relay.Message, eventBuffer)
		rc.subs[roomID] = ch
	}

	return ch
}

// Unsubscribe removes the room's subscription and closes its stream.
// Unsubscribing a room that has no subscription is a no-op.
func (rc *RelayClient) Unsubscribe(roomID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if ch, ok := rc.subs[roomID]; ok {
		delete(rc.subs, roomID)
		close(ch)
	}
}

// Join subscribes this connection to a room. Membership is remembered so it
// can be reestablished after a transport-level reconnect.
func (rc *RelayClient) Join(roomID string) error {
	rc.mu.Lock()
	rc.joined[roomID] = struct{}{}
	rc.mu.Unlock()

	return rc.writeEnvelope(relay.EventJoin, relay.RoomRef{RoomID: roomID})
}

// Leave unsubscribes this connection from a room.
func (rc *RelayClient) Leave(roomID string) error {
	rc.mu.Lock()
	delete(rc.joined, roomID)
	rc.mu.Unlock()

	return rc.writeEnvelope(relay.EventLeave, relay.RoomRef{RoomID: roomID})
}

// Emit sends a chat message to the relay. Emission is fire-and-forget: the
// relay sends no acknowledgment, and the sender's own copy comes back through
// the room fan-out.
func (rc *RelayClient) Emit(msg relay.Message) error {
	return rc.writeEnvelope(relay.EventMessage, msg)
}

// writeEnvelope encodes and writes one frame, serialized against concurrent writers.
func (rc *RelayClient) writeEnvelope(eventType relay.EventType, payload any) error {
	frame, err := relay.EncodeEnvelope(eventType, payload)
	if err != nil {
		return err
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if err := rc.conn.SetWriteDeadline(time.Now().Add(relayWriteWait)); err != nil {
		return err
	}

	return rc.conn.WriteMessage(websocket.TextMessage, frame)
}

// readLoop reads frames until the client is closed, redialing on failure.
func (rc *RelayClient) readLoop() {
	defer rc.closeSubscriptions()

	for {
		rc.mu.Lock()
		conn := rc.conn
		rc.mu.Unlock()

		_, frame, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-rc.closed:
				return
			default:
			}

			rc.logger.Warn().Err(err).Msg("Relay connection lost, redialing")
			if !rc.redial() {
				return
			}
			continue
		}

		rc.dispatchFrame(frame)
	}
}

// dispatchFrame routes inbound MESSAGE payloads to the subscription of the
// addressed room. Other event kinds carry nothing a client consumer needs.
func (rc *RelayClient) dispatchFrame(frame []byte) {
	msg, eventType, err := decodeMessageFrame(frame)
	if err != nil {
		rc.logger.Warn().Err(err).Msg("Relay sent undecodable frame")
		return
	}

	if eventType != relay.EventMessage {
		if eventType == relay.EventError {
			rc.logger.Warn().Bytes("frame", frame).Msg("Relay reported an error")
		}
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if msg.RoomID != "" {
		if ch, ok := rc.subs[msg.RoomID]; ok {
			rc.deliver(ch, msg)
		}
		return
	}

	for _, ch := range rc.subs {
		rc.deliver(ch, msg)
	}
}

// deliver queues one event for a subscriber without blocking the read loop.
// Caller holds mu, so the channel cannot be closed mid-send.
func (rc *RelayClient) deliver(ch chan relay.Message, msg relay.Message) {
	select {
	case ch <- msg:
	default:
		rc.logger.Warn().Str("room_id", msg.RoomID).Msg("Subscriber stream full, dropping event")
	}
}

// closeSubscriptions closes every subscription stream when the read loop ends.
func (rc *RelayClient) closeSubscriptions() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for roomID, ch := range rc.subs {
		delete(rc.subs, roomID)
		close(ch)
	}
}

// redial reconnects with capped exponential backoff and re-joins every room
// the client still considers active. History is not re-fetched here; only new
// live events resume. Returns false when the client was closed while waiting.
func (rc *RelayClient) redial() bool {
	delay := redialBaseDelay

	for {
		select {
		case <-rc.closed:
			return false
		case <-time.After(delay):
		}

		conn, _, err := rc.dialer.Dial(rc.url, nil)
		if err != nil {
			rc.logger.Warn().Err(err).Dur("next_attempt_in", delay).Msg("Relay redial failed")
			delay = min(delay*2, redialMaxDelay)
			continue
		}

		rc.mu.Lock()
		rc.conn = conn
		activeRooms := make([]string, 0, len(rc.joined))
		for roomID := range rc.joined {
			activeRooms = append(activeRooms, roomID)
		}
		rc.mu.Unlock()

		for _, roomID := range activeRooms {
			if err := rc.writeEnvelope(relay.EventJoin, relay.RoomRef{RoomID: roomID}); err != nil {
				rc.logger.Warn().Err(err).Str("room_id", roomID).Msg("Failed to rejoin room after redial")
			}
		}

		rc.logger.Info().Int("rejoined_rooms", len(activeRooms)).Msg("Relay connection reestablished")
		return true
	}
}

// Close tears the connection down. Safe to call more than once.
func (rc *RelayClient) Close() error {
	var err error

	rc.closeOnce.Do(func() {
		close(rc.closed)

		rc.mu.Lock()
		err = rc.conn.Close()
		rc.mu.Unlock()
	})

	return err
}
