package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gravechat/internal/app/relay"
)

func TestAPIStore_ResolveRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/resolve", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		var input map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, "bob", input["peerId"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"Success","data":{"roomId":"alice_bob"}}`))
	}))
	defer srv.Close()

	store := NewAPIStore(srv.URL, "token-123")

	roomID, err := store.ResolveRoom(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", roomID)
}

func TestAPIStore_AppendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/rooms/alice_bob/messages", r.URL.Path)

		var input map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, "hi", input["text"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"Success","data":{
			"senderName":"Alice","senderId":"alice","text":"hi",
			"roomId":"alice_bob","timestamp":"2026-08-31T12:00:00.000000001Z"}}`))
	}))
	defer srv.Close()

	store := NewAPIStore(srv.URL, "token-123")

	stored, err := store.AppendMessage(context.Background(), "alice_bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, relay.Message{
		SenderName: "Alice",
		SenderID:   "alice",
		Text:       "hi",
		RoomID:     "alice_bob",
		Timestamp:  "2026-08-31T12:00:00.000000001Z",
	}, stored)
}

func TestAPIStore_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/chat/rooms/alice_bob/messages", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"Success","data":[
			{"senderName":"Alice","senderId":"alice","text":"one","roomId":"alice_bob","timestamp":"t1"},
			{"senderName":"Bob","senderId":"bob","text":"two","roomId":"alice_bob","timestamp":"t2"}]}`))
	}))
	defer srv.Close()

	store := NewAPIStore(srv.URL, "token-123")

	history, err := store.History(context.Background(), "alice_bob")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "one", history[0].Text)
	assert.Equal(t, "two", history[1].Text)
}

func TestAPIStore_ServerErrorIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":2101,"message":"Room not found."}`))
	}))
	defer srv.Close()

	store := NewAPIStore(srv.URL, "token-123")

	_, err := store.History(context.Background(), "missing_room")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2101")
}
