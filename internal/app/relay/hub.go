/*
Package relay contains the core logic of the real-time chat relay.

This file defines the Hub, the single event loop that wires transport-level
lifecycle events to Registry mutations and fans inbound chat messages out to
their audience. The Hub handles one event at a time, so the Registry and the
per-session room sets need no locking.
*/
package relay

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"gravechat/internal/pkg/errs"
	"gravechat/internal/pkg/logx"
)

const eventChannelBuffer = 1024

// sessionEvent pairs an inbound envelope with the session that sent it.
type sessionEvent struct {
	session  *Session
	envelope Envelope
}

// Hub coordinates every connected session in the process.
type Hub struct {
	// registry is the room-membership bookkeeping, owned by the Run loop.
	registry *Registry

	// register receives sessions whose connection was just upgraded.
	register chan *Session

	// unregister receives sessions whose connection terminated.
	unregister chan *Session

	// events receives parsed inbound envelopes from session read pumps.
	events chan sessionEvent

	// stop signals the Run loop to terminate.
	stop chan struct{}

	// done is closed when the run loop has exited, releasing any session
	// still trying to hand off its disconnect.
	done chan struct{}

	// wg is used to wait for the Run loop to finish during shutdown.
	wg sync.WaitGroup

	// structured logger with Hub context.
	logger zerolog.Logger
}

// NewHub constructs a Hub and starts its event loop.
func NewHub() *Hub {
	hubLogger := logx.Logger().With().Str("component", "Hub").Logger()

	h := &Hub{
		registry:   NewRegistry(),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		events:     make(chan sessionEvent, eventChannelBuffer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     hubLogger,
	}

	h.wg.Add(1)

	go h.run()

	return h
}

// Register hands a newly connected session to the event loop.
func (h *Hub) Register(s *Session) {
	h.register <- s
}

// run is the Hub's main event loop. It owns the Registry: every membership
// mutation and every fan-out read happens inside this goroutine.
func (h *Hub) run() {
	defer h.wg.Done()
	defer close(h.done)

	h.logger.Info().Msg("Hub event loop started.")

	for {
		select {
		case s := <-h.register:
			h.registry.AddSession(s)
			h.logger.Info().
				Str("session_id", s.id).
				Int("total_sessions", h.registry.SessionCount()).
				Msg("Session connected.")

		case s := <-h.unregister:
			h.registry.RemoveSession(s)
			h.closeSessionQueue(s)
			h.logger.Info().
				Str("session_id", s.id).
				Int("total_sessions", h.registry.SessionCount()).
				Msg("Session disconnected and removed from all rooms.")

		case ev := <-h.events:
			h.handleEvent(ev)

		case <-h.stop:
			h.logger.Info().Msg("Hub event loop stopping.")

			for _, s := range h.registry.Sessions() {
				h.registry.RemoveSession(s)
				h.closeSessionQueue(s)
			}

			return
		}
	}
}

// handleEvent dispatches one parsed inbound envelope.
func (h *Hub) handleEvent(ev sessionEvent) {
	switch ev.envelope.Type {
	case EventJoin:
		roomRef, ok := h.decodeRoomRef(ev)
		if !ok {
			return
		}

		h.registry.Join(ev.session, roomRef.RoomID)
		h.logger.Info().
			Str("session_id", ev.session.id).
			Str("room_id", roomRef.RoomID).
			Int("room_members", len(h.registry.Members(roomRef.RoomID))).
			Msg("Session joined room.")

	case EventLeave:
		roomRef, ok := h.decodeRoomRef(ev)
		if !ok {
			return
		}

		h.registry.Leave(ev.session, roomRef.RoomID)
		h.logger.Info().
			Str("session_id", ev.session.id).
			Str("room_id", roomRef.RoomID).
			Msg("Session left room.")

	case EventMessage:
		h.relayMessage(ev)
	}
}

// decodeRoomRef parses the JOIN/LEAVE payload, rejecting frames without a room id.
func (h *Hub) decodeRoomRef(ev sessionEvent) (RoomRef, bool) {
	var roomRef RoomRef
	if err := json.Unmarshal(ev.envelope.Payload, &roomRef); err != nil || roomRef.RoomID == "" {
		h.logger.Warn().
			Str("session_id", ev.session.id).
			Str("event_type", string(ev.envelope.Type)).
			Msg("Session sent invalid room reference payload")
		return RoomRef{}, false
	}

	return roomRef, true
}

// relayMessage forwards an inbound chat message to its audience: every
// session in the addressed room (the sender's own session included), or
// every connected session when no room id is present. The relay never
// persists the payload; that is the sending client's responsibility.
func (h *Hub) relayMessage(ev sessionEvent) {
	var msg Message
	if err := json.Unmarshal(ev.envelope.Payload, &msg); err != nil {
		h.logger.Warn().
			Str("session_id", ev.session.id).
			Msg("Session sent invalid MESSAGE payload")
		return
	}

	if len(msg.Text) > MaxContentBytes {
		ev.session.SendError(errs.NewError(errs.ErrMessageContentTooLong))
		return
	}

	// Rebroadcast the payload exactly as it arrived so the sender's
	// de-duplication key survives the round trip.
	frame, err := EncodeEnvelope(EventMessage, msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode MESSAGE for fan-out")
		return
	}

	var audience []*Session
	if msg.RoomID != "" {
		audience = h.registry.Members(msg.RoomID)
	} else {
		audience = h.registry.Sessions()
	}

	// An empty room simply has no one to deliver to.
	for _, target := range audience {
		if err := target.queueFrame(frame); err != nil {
			h.logger.Warn().
				Str("session_id", target.id).
				Str("room_id", msg.RoomID).
				Msg("Dropped fan-out frame for slow session")
		}
	}

	h.logger.Debug().
		Str("room_id", msg.RoomID).
		Str("sender_id", msg.SenderID).
		Int("audience", len(audience)).
		Msg("Relayed message.")
}

// closeSessionQueue closes a removed session's send channel, unblocking its
// WritePump. Safe because the event loop is the only writer and the session
// has already been removed from the Registry.
func (h *Hub) closeSessionQueue(s *Session) {
	close(s.send)
}

// Shutdown stops the event loop and waits for it to drain.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down Hub...")

	close(h.stop)
	h.wg.Wait()

	h.logger.Info().Msg("Hub shutdown complete.")
}
