/*
Package db provides the PostgreSQL-backed persistence collaborator.

This file defines the Store, which exposes the three operations the chat core
consumes: create-or-fetch a direct room by its participant pair, append an
immutable message record, and fetch a room's full history ordered by
timestamp ascending.
*/
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"gravechat/internal/app/rooms"
	"gravechat/internal/pkg/logx"
	"gravechat/internal/pkg/randx"
)

// Room is a persisted direct-conversation room between two participants.
// The participant columns are stored sorted, matching the id derivation.
type Room struct {
	ID        string    `json:"id"`
	UserA     string    `json:"userA"`
	UserB     string    `json:"userB"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a persisted chat message record. Records are immutable once created.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store wraps the connection pool with the queries the chat core needs.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewStore constructs a Store on top of an initialized connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	storeLogger := logx.Logger().With().Str("component", "Store").Logger()

	return &Store{
		pool:   pool,
		logger: storeLogger,
	}
}

// EnsureDirectRoom creates the direct-conversation room for the unordered
// pair (a, b) if it does not exist and returns the room either way.
//
// The insert races with the other participant's first contact: the unique
// constraint on the sorted pair makes the loser's insert a no-op, and both
// callers fall through to the same fetch.
func (st *Store) EnsureDirectRoom(ctx context.Context, a, b string) (Room, error) {
	if a == b {
		return Room{}, fmt.Errorf("direct room requires two distinct participants")
	}

	userA, userB := rooms.NormalizePair(a, b)
	roomID := rooms.DirectRoomID(a, b)

	_, err := st.pool.Exec(ctx,
		`INSERT INTO rooms (id, user_a, user_b) VALUES ($1, $2, $3)`,
		roomID, userA, userB,
	)
	if err != nil && !IsUniqueViolation(err) {
		return Room{}, fmt.Errorf("failed to create room: %w", err)
	}
	if err == nil {
		st.logger.Info().Str("room_id", roomID).Msg("Created direct room.")
	}

	return st.RoomByID(ctx, roomID)
}

// RoomByID fetches a room record. A missing room yields pgx.ErrNoRows.
func (st *Store) RoomByID(ctx context.Context, roomID string) (Room, error) {
	var room Room

	err := st.pool.QueryRow(ctx,
		`SELECT id, user_a, user_b, created_at FROM rooms WHERE id = $1`,
		roomID,
	).Scan(&room.ID, &room.UserA, &room.UserB, &room.CreatedAt)
	if err != nil {
		return Room{}, fmt.Errorf("failed to fetch room %q: %w", roomID, err)
	}

	return room, nil
}

// AppendMessage persists a new message record. The caller supplies the
// creation timestamp; when it is zero, the moment of persistence is used.
// The stored record, including its assigned id and timestamp, is returned.
func (st *Store) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = randx.MessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = normalizeTimestamp(msg.CreatedAt)

	_, err := st.pool.Exec(ctx,
		`INSERT INTO messages (id, room_id, sender_id, sender_name, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	return msg, nil
}

// normalizeTimestamp clamps a creation timestamp to what the timestamptz
// column can hold. Postgres keeps microseconds, so any nanosecond remainder
// returned here would make the record's wire timestamp differ from the one a
// later history fetch yields.
func normalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// RoomMessages fetches the full message history for a room, ordered by
// timestamp ascending for history replay.
func (st *Store) RoomMessages(ctx context.Context, roomID string) ([]Message, error) {
	queryRows, err := st.pool.Query(ctx,
		`SELECT id, room_id, sender_id, sender_name, content, created_at
		 FROM messages WHERE room_id = $1 ORDER BY created_at ASC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for room %q: %w", roomID, err)
	}

	messages, err := pgx.CollectRows(queryRows, func(row pgx.CollectableRow) (Message, error) {
		var msg Message
		err := row.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName, &msg.Content, &msg.CreatedAt)
		return msg, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan messages for room %q: %w", roomID, err)
	}

	return messages, nil
}
