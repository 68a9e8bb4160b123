/*
Package chatclient implements the client side of the chat core.

This file defines the Conversation, the reconciliation layer that produces a
single, duplicate-free, time-ordered view of one direct conversation by
merging persisted history with live relay events.
*/
package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"gravechat/internal/app/relay"
	"gravechat/internal/app/user"
	"gravechat/internal/pkg/logx"
)

// State describes where a Conversation is in its lifecycle.
type State int

const (
	// StateIdle means the view is not open; no listeners are attached.
	StateIdle State = iota

	// StateLoading means the room is being resolved and history fetched.
	StateLoading

	// StateLive means history is loaded and live events are being merged.
	StateLive
)

// Relay is the live-event collaborator contract the Conversation consumes.
// *RelayClient satisfies it.
type Relay interface {
	Join(roomID string) error
	Leave(roomID string) error
	Emit(msg relay.Message) error
	Subscribe(roomID string) <-chan relay.Message
	Unsubscribe(roomID string)
}

// Conversation merges a room's persisted history with live relay events into
// one duplicate-free, append-ordered view.
type Conversation struct {
	store Store
	relay Relay

	// self is the local participant. Sending requires a non-anonymous identity.
	self user.User

	// peerID identifies the other participant of the direct conversation.
	peerID string

	// roomID is resolved deterministically from (self, peer) when the view opens.
	roomID string

	// events is this room's subscription stream, obtained before joining so
	// no live event is missed.
	events <-chan relay.Message

	// mu guards state, view, and seen.
	mu    sync.Mutex
	state State
	view  []relay.Message
	seen  map[string]struct{}

	stop chan struct{}
	wg   sync.WaitGroup

	logger zerolog.Logger
}

// NewConversation prepares an idle conversation view with the peer.
func NewConversation(store Store, relayConn Relay, self user.User, peerID string) *Conversation {
	return &Conversation{
		store:  store,
		relay:  relayConn,
		self:   self,
		peerID: peerID,
		state:  StateIdle,
		seen:   make(map[string]struct{}),
		logger: logx.Logger().With().Str("component", "Conversation").Str("peer_id", peerID).Logger(),
	}
}

// Open resolves the conversation's room, loads its persisted history as the
// initial view, and subscribes to the relay for live events. On failure the
// view returns to Idle and stays empty rather than half-initialized.
func (cv *Conversation) Open(ctx context.Context) error {
	cv.mu.Lock()
	if cv.state != StateIdle {
		cv.mu.Unlock()
		return fmt.Errorf("conversation is already open")
	}
	cv.state = StateLoading
	cv.mu.Unlock()

	roomID, err := cv.store.ResolveRoom(ctx, cv.peerID)
	if err != nil {
		cv.reset()
		return fmt.Errorf("failed to resolve conversation room: %w", err)
	}

	history, err := cv.store.History(ctx, roomID)
	if err != nil {
		cv.reset()
		return fmt.Errorf("failed to load conversation history: %w", err)
	}

	cv.mu.Lock()
	cv.roomID = roomID
	cv.view = append([]relay.Message(nil), history...)
	cv.seen = make(map[string]struct{}, len(history))
	for _, msg := range history {
		cv.seen[msg.DedupKey()] = struct{}{}
	}
	cv.state = StateLive
	cv.stop = make(chan struct{})
	cv.events = cv.relay.Subscribe(roomID)
	cv.mu.Unlock()

	if err := cv.relay.Join(roomID); err != nil {
		cv.relay.Unsubscribe(roomID)
		cv.reset()
		return fmt.Errorf("failed to subscribe to room %q: %w", roomID, err)
	}

	cv.wg.Add(1)
	go cv.consumeEvents()

	cv.logger.Info().Str("room_id", roomID).Int("history_len", len(history)).Msg("Conversation is live.")
	return nil
}

// reset returns the view to Idle after a failed Open.
func (cv *Conversation) reset() {
	cv.mu.Lock()
	cv.state = StateIdle
	cv.roomID = ""
	cv.view = nil
	cv.seen = make(map[string]struct{})
	cv.events = nil
	cv.mu.Unlock()
}

// consumeEvents merges live relay events for this room into the view until
// the conversation is closed or the event stream ends.
func (cv *Conversation) consumeEvents() {
	defer cv.wg.Done()

	for {
		select {
		case msg, ok := <-cv.events:
			if !ok {
				return
			}
			if msg.RoomID != cv.RoomID() {
				continue
			}
			cv.Apply(msg)

		case <-cv.stop:
			return
		}
	}
}

// Apply merges one live message into the view. A message whose
// (timestamp, sender identity) key is already present is discarded; anything
// else is appended to the end of the view.
func (cv *Conversation) Apply(msg relay.Message) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	if cv.state != StateLive {
		return
	}

	key := msg.DedupKey()
	if _, duplicate := cv.seen[key]; duplicate {
		cv.logger.Debug().Str("dedup_key", key).Msg("Suppressed duplicate delivery.")
		return
	}

	cv.seen[key] = struct{}{}
	cv.view = append(cv.view, msg)
}

// Send persists the message, optimistically appends the stored record to the
// local view, and emits the identical payload to the relay.
//
// Persistence comes first: when the write fails the message is not relayed,
// the error is returned, and the caller keeps the draft for retry. The
// optimistic append records the de-duplication key, which is what suppresses
// the sender's own relayed echo.
func (cv *Conversation) Send(ctx context.Context, text string) (relay.Message, error) {
	cv.mu.Lock()
	if cv.state != StateLive {
		cv.mu.Unlock()
		return relay.Message{}, fmt.Errorf("conversation is not live")
	}
	roomID := cv.roomID
	cv.mu.Unlock()

	if cv.self.ID == "" {
		return relay.Message{}, fmt.Errorf("sending requires an identified user")
	}

	stored, err := cv.store.AppendMessage(ctx, roomID, text)
	if err != nil {
		return relay.Message{}, fmt.Errorf("failed to persist message: %w", err)
	}

	cv.Apply(stored)

	if err := cv.relay.Emit(stored); err != nil {
		// The message is durably persisted; others pick it up on their next
		// history fetch even though this live emission was lost.
		cv.logger.Warn().Err(err).Msg("Failed to emit persisted message to relay.")
	}

	return stored, nil
}

// Messages returns a snapshot of the current view.
func (cv *Conversation) Messages() []relay.Message {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	return append([]relay.Message(nil), cv.view...)
}

// RoomID returns the resolved room identifier, or "" before Open succeeds.
func (cv *Conversation) RoomID() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	return cv.roomID
}

// State returns the current lifecycle state.
func (cv *Conversation) State() State {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	return cv.state
}

// Close tears the view down: the live-event consumer is detached
// synchronously, the relay is notified of the leave, and the conversation
// returns to Idle.
func (cv *Conversation) Close() {
	cv.mu.Lock()
	if cv.state != StateLive {
		cv.mu.Unlock()
		return
	}
	cv.state = StateIdle
	roomID := cv.roomID
	close(cv.stop)
	cv.mu.Unlock()

	cv.wg.Wait()

	cv.relay.Unsubscribe(roomID)

	if err := cv.relay.Leave(roomID); err != nil {
		cv.logger.Warn().Err(err).Str("room_id", roomID).Msg("Failed to notify relay of leave.")
	}

	cv.logger.Info().Str("room_id", roomID).Msg("Conversation closed.")
}

// decodeMessageFrame parses a raw relay frame and, for MESSAGE events, its payload.
func decodeMessageFrame(frame []byte) (relay.Message, relay.EventType, error) {
	env, err := relay.DecodeEnvelope(frame)
	if err != nil {
		return relay.Message{}, "", err
	}

	if env.Type != relay.EventMessage {
		return relay.Message{}, env.Type, nil
	}

	var msg relay.Message
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return relay.Message{}, env.Type, fmt.Errorf("failed to decode MESSAGE payload: %w", err)
	}

	return msg, env.Type, nil
}
