/*
Package chatclient implements the client side of the chat core.

This file defines the Store contract the conversation view consumes for
persistence, plus the HTTP-backed implementation that talks to the chat
server's REST API with the client's identity token.
*/
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"gravechat/internal/app/relay"
)

// Store is the persistence collaborator contract, expressed in wire-message
// terms. The core never learns how it is implemented.
type Store interface {
	// ResolveRoom creates-or-fetches the direct room between the caller and
	// the peer and returns its id.
	ResolveRoom(ctx context.Context, peerID string) (string, error)

	// AppendMessage persists a message and returns the stored record,
	// including the timestamp assigned at the moment of persistence.
	AppendMessage(ctx context.Context, roomID, text string) (relay.Message, error)

	// History fetches all persisted messages for a room, ordered by
	// timestamp ascending.
	History(ctx context.Context, roomID string) ([]relay.Message, error)
}

// APIStore implements Store over the chat server's REST API.
type APIStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAPIStore constructs an APIStore for the given server base URL and
// identity token.
func NewAPIStore(baseURL, token string) *APIStore {
	return &APIStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// apiResponse mirrors the server's JSON response envelope with the payload
// left raw for per-endpoint decoding.
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ResolveRoom calls POST /api/chat/resolve.
func (as *APIStore) ResolveRoom(ctx context.Context, peerID string) (string, error) {
	var result struct {
		RoomID string `json:"roomId"`
	}

	input := map[string]string{"peerId": peerID}
	if err := as.do(ctx, http.MethodPost, "/api/chat/resolve", input, &result); err != nil {
		return "", err
	}

	return result.RoomID, nil
}

// AppendMessage calls POST /api/chat/rooms/{roomID}/messages.
func (as *APIStore) AppendMessage(ctx context.Context, roomID, text string) (relay.Message, error) {
	var result relay.Message

	input := map[string]string{"text": text}
	path := "/api/chat/rooms/" + url.PathEscape(roomID) + "/messages"
	if err := as.do(ctx, http.MethodPost, path, input, &result); err != nil {
		return relay.Message{}, err
	}

	return result, nil
}

// History calls GET /api/chat/rooms/{roomID}/messages.
func (as *APIStore) History(ctx context.Context, roomID string) ([]relay.Message, error) {
	var result []relay.Message

	path := "/api/chat/rooms/" + url.PathEscape(roomID) + "/messages"
	if err := as.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// do performs one API call and decodes the response envelope into out.
func (as *APIStore) do(ctx context.Context, method, path string, input any, out any) error {
	var body *bytes.Reader
	if input != nil {
		encoded, err := json.Marshal(input)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, as.baseURL+path, body)
	if err != nil {
		return err
	}

	if input != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as.token != "" {
		req.Header.Set("Authorization", "Bearer "+as.token)
	}

	httpResp, err := as.client.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	if envelope.Code != 0 {
		return fmt.Errorf("%s: server error %d: %s", path, envelope.Code, envelope.Message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode payload from %s: %w", path, err)
		}
	}

	return nil
}
