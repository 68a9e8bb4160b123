package randx

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuestID_Format(t *testing.T) {
	id, err := GuestID()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, GuestIDPrefix))
	assert.Len(t, id, len(GuestIDPrefix)+GuestIDRawLength)
	assert.True(t, IsValidGuestID(id))
}

func TestIsValidGuestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "valid", id: "guest_Ab9xYz", want: true},
		{name: "missing prefix", id: "Ab9xYz", want: false},
		{name: "wrong prefix", id: "user_Ab9xYz", want: false},
		{name: "too short", id: "guest_Ab9", want: false},
		{name: "too long", id: "guest_Ab9xYz0", want: false},
		{name: "illegal character", id: "guest_Ab9x-z", want: false},
		{name: "empty", id: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidGuestID(tt.id))
		})
	}
}

func TestMessageID_IsUUID(t *testing.T) {
	id := MessageID()

	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestUserNickname_Format(t *testing.T) {
	nickname, err := UserNickname()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(nickname, "User_"))
	assert.Len(t, nickname, len("User_")+6)
}
