package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	payload := &Payload{
		ID:       "guest_Ab9xYz",
		Nickname: "User_123abc",
		UserType: "guest",
	}

	tokenString, err := GenerateToken(payload, testSecret, IdentityExpiration)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	parsed, err := ParseToken(tokenString, testSecret)
	require.NoError(t, err)

	assert.Equal(t, "guest_Ab9xYz", parsed.ID)
	assert.Equal(t, "User_123abc", parsed.Nickname)
	assert.Equal(t, "guest", parsed.UserType)
	assert.Equal(t, TokenIssuer, parsed.Issuer)
}

func TestParseToken_WrongSecret(t *testing.T) {
	tokenString, err := GenerateToken(&Payload{ID: "guest_Ab9xYz"}, testSecret, IdentityExpiration)
	require.NoError(t, err)

	_, err = ParseToken(tokenString, "a-different-secret")
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	tokenString, err := GenerateToken(&Payload{ID: "guest_Ab9xYz"}, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(tokenString, testSecret)
	assert.Error(t, err)
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret)
	assert.Error(t, err)
}
