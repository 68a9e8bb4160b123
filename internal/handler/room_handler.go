/*
Package handler provides HTTP handler functions for resolving direct-conversation
rooms and reading/appending their persisted message history.
*/
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"gravechat/internal/app/db"
	"gravechat/internal/app/relay"
	"gravechat/internal/pkg/auth/jwt"
	"gravechat/internal/pkg/errs"
	"gravechat/internal/pkg/logx"
	"gravechat/internal/pkg/req"
	"gravechat/internal/pkg/resp"
)

type ResolveRoomInput struct {
	// PeerID identifies the other participant of the direct conversation.
	PeerID string `json:"peerId"`
}

// HandleResolveRoom creates-or-fetches the direct room between the caller and
// the peer. Both participants resolve to the same room id regardless of who
// initiates, and concurrent first contact lands on one row.
func HandleResolveRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input ResolveRoomInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.PeerID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if input.PeerID == identity.ID {
			resp.RespondError(w, r, errs.NewError(errs.ErrSelfConversation))
			return
		}

		room, err := deps.Store.EnsureDirectRoom(r.Context(), identity.ID, input.PeerID)
		if err != nil {
			logx.Error(err, "Failed to resolve direct room", "user_id", identity.ID, "peer_id", input.PeerID)
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomResolveFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"roomId": room.ID,
			"room":   room,
		})
	}
}

// HandleRoomHistory returns the full persisted history of a room, ordered by
// timestamp ascending, in the same wire shape the relay broadcasts.
func HandleRoomHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		room, ok := requireParticipant(w, r, deps, identity.ID)
		if !ok {
			return
		}

		records, err := deps.Store.RoomMessages(r.Context(), room.ID)
		if err != nil {
			logx.Error(err, "Failed to load room history", "room_id", room.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrHistoryUnavailable))
			return
		}

		messages := make([]relay.Message, len(records))
		for i, record := range records {
			messages[i] = wireMessage(record)
		}

		resp.RespondSuccess(w, r, messages)
	}
}

type AppendMessageInput struct {
	Text string `json:"text"`
}

// HandleAppendMessage persists a new message in a room on behalf of the
// authenticated caller and returns the stored record in wire shape, with the
// timestamp assigned at the moment of persistence. The caller emits that
// identical payload to the relay, which is what makes the de-duplication key
// match when the relayed echo arrives.
func HandleAppendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input AppendMessageInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Text == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if len(input.Text) > relay.MaxContentBytes {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageContentTooLong))
			return
		}

		room, ok := requireParticipant(w, r, deps, identity.ID)
		if !ok {
			return
		}

		stored, err := deps.Store.AppendMessage(r.Context(), db.Message{
			RoomID:     room.ID,
			SenderID:   identity.ID,
			SenderName: identity.Nickname,
			Content:    input.Text,
		})
		if err != nil {
			logx.Error(err, "Failed to append message", "room_id", room.ID, "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, wireMessage(stored))
	}
}

// requireParticipant loads the addressed room and verifies the caller belongs
// to it. A response has already been written when ok is false.
func requireParticipant(w http.ResponseWriter, r *http.Request, deps *AppDeps, userID string) (db.Room, bool) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
		return db.Room{}, false
	}

	room, err := deps.Store.RoomByID(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNotFound))
		} else {
			logx.Error(err, "Failed to fetch room", "room_id", roomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
		}
		return db.Room{}, false
	}

	if room.UserA != userID && room.UserB != userID {
		resp.RespondError(w, r, errs.NewError(errs.ErrRoomNotFound))
		return db.Room{}, false
	}

	return room, true
}

// wireMessage converts a stored message record to the wire shape shared with
// the relay. Timestamps are RFC3339Nano UTC so the string is identical on the
// persisted and relayed paths.
func wireMessage(record db.Message) relay.Message {
	return relay.Message{
		SenderName: record.SenderName,
		SenderID:   record.SenderID,
		Text:       record.Content,
		RoomID:     record.RoomID,
		Timestamp:  record.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
