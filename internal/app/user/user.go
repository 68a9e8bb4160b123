/*
Package user contains core data structures related to user identity.

It defines the basic representation of a chat participant, used for passing
identity information both internally and over the wire.
*/
package user

// User represents the basic identity information of a chat participant.
// Fields use JSON tags for serialization in API and WebSocket payloads.
type User struct {

	// ID is the stable unique identifier for the user. For unauthenticated
	// visitors this is a generated Guest ID.
	ID string `json:"id"`

	// Nickname is the display name shown next to the user's messages.
	Nickname string `json:"nickname"`

	// UserType defines the role of the participant (e.g., "guest", "registered").
	UserType string `json:"userType"`
}
