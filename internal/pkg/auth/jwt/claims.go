package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the JSON Web Token (JWT) claims for the chat service.
// It carries the stable identity the relay's collaborators need: who the participant is
// and how they should be displayed, nothing more.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the unified identifier for the participant, which can be a system-generated
	// Guest ID or a registered User ID, depending on the UserType.
	ID string `json:"id"`

	// Nickname is the display name shown next to the participant's messages.
	Nickname string `json:"nickname"`

	// UserType defines the role of the participant, allowing the server to apply
	// different logic and permissions (e.g., "guest" or "registered").
	UserType string `json:"user_type"`
}
