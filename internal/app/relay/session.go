/*
Package relay contains the core logic of the real-time chat relay.

This file defines the Session struct, representing one active WebSocket
connection. It manages the connection's lifecycle, the message pumps
(ReadPump and WritePump), and the exactly-once disconnect hand-off to the Hub.
*/
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gravechat/internal/app/user"
	"gravechat/internal/pkg/errs"
	"gravechat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxFrameSize = 8192

	// capacity of the per-session outbound queue.
	sendQueueSize = 256
)

// Session represents an active WebSocket connection and its associated identity.
type Session struct {
	// id is the opaque session identifier assigned on connect.
	id string

	// hub is the event loop this session reports to.
	hub *Hub

	// conn is the underlying WebSocket connection object.
	conn *websocket.Conn

	// user is the identity attached at upgrade time. The relay itself is
	// identity-agnostic; this exists for logging and is zero for anonymous visitors.
	user user.User

	// send is a buffered channel used to queue frames waiting to be written.
	send chan []byte

	// rooms is the set of room identifiers this session has joined.
	// It is owned by the Hub's event loop, like the Registry it mirrors.
	rooms map[string]struct{}

	// disconnectOnce guarantees the Hub sees exactly one unregister per
	// session, no matter how many transport teardown paths fire.
	disconnectOnce sync.Once

	// structured logger with session context.
	logger zerolog.Logger
}

// NewSession constructs a Session for an upgraded connection. The session is
// not registered with the Hub until Register is called.
func NewSession(hub *Hub, conn *websocket.Conn, usr user.User) *Session {
	sessionID := uuid.New().String()

	sessionLogger := logx.Logger().With().
		Str("session_id", sessionID).
		Str("user_id", usr.ID).
		Logger()

	return &Session{
		id:     sessionID,
		hub:    hub,
		conn:   conn,
		user:   usr,
		send:   make(chan []byte, sendQueueSize),
		rooms:  make(map[string]struct{}),
		logger: sessionLogger,
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string {
	return s.id
}

// ReadPump reads frames from the WebSocket connection and hands parsed events
// to the Hub. It handles heartbeats (Pong) and performs the disconnect
// hand-off when the connection terminates for any reason.
func (s *Session) ReadPump() {
	defer s.signalDisconnect()

	s.conn.SetReadLimit(maxFrameSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		s.processInboundFrame(frame)
	}
}

// signalDisconnect notifies the Hub of the session's terminal disconnect and
// closes the underlying connection. Runs at most once per session.
func (s *Session) signalDisconnect() {
	s.disconnectOnce.Do(func() {
		s.logger.Info().Msg("Session disconnect cleanup starting.")

		// When the hub has already stopped, it closed every queue itself and
		// no longer receives; blocking here would leak the read pump.
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}

		if s.conn == nil {
			return
		}
		if err := s.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug().Err(err).Msg("Session connection close error")
		}
	})
}

// processInboundFrame parses a raw frame into an Envelope and forwards it to the Hub.
func (s *Session) processInboundFrame(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		s.logger.Warn().Err(err).
			Bytes("frame", frame).
			Msg("Session sent invalid JSON")
		return
	}

	switch env.Type {
	case EventJoin, EventLeave, EventMessage:
		s.hub.events <- sessionEvent{session: s, envelope: env}

	default:
		s.logger.Warn().Str("event_type", string(env.Type)).Msg("Session sent unsupported event type")
	}
}

// WritePump writes frames queued on the send channel to the WebSocket
// connection and keeps the heartbeat alive.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := s.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug().Err(err).Msg("Session connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if !s.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !s.writePingFrame() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the send channel.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (s *Session) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			s.logger.Debug().Err(err).Msg("Error writing close frame")
		}
		return false
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePingFrame sends a periodic Ping to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (s *Session) writePingFrame() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.logger.Info().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// queueFrame attempts to enqueue a frame for delivery to this session.
// A full queue drops the frame rather than blocking the Hub's event loop.
func (s *Session) queueFrame(frame []byte) error {
	select {
	case s.send <- frame:
		return nil
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Session send queue full, dropping frame")
		return fmt.Errorf("session send queue full")
	}
}

// SendError builds and queues an ERROR event for this session.
func (s *Session) SendError(err error) {
	var code int
	var message string

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		code = customErr.Code
		message = customErr.Message
	} else {
		code = errs.ErrUnknown
		message = fmt.Sprintf("Internal server error: %v", err)
	}

	frame, encErr := EncodeEnvelope(EventError, ErrorNotice{
		Code:    code,
		Message: message,
	})
	if encErr != nil {
		s.logger.Error().Err(encErr).Msg("Failed to build ERROR event")
		return
	}

	if err := s.queueFrame(frame); err != nil {
		s.logger.Error().Err(err).Msg("Failed to queue ERROR event")
	}
}
