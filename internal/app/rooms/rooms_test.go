package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePair(t *testing.T) {
	first, second := NormalizePair("zed", "amy")
	assert.Equal(t, "amy", first)
	assert.Equal(t, "zed", second)

	first, second = NormalizePair("amy", "zed")
	assert.Equal(t, "amy", first)
	assert.Equal(t, "zed", second)
}

func TestDirectRoomID_Deterministic(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{name: "already sorted", a: "alice", b: "bob", want: "alice_bob"},
		{name: "reversed", a: "bob", b: "alice", want: "alice_bob"},
		{name: "guest ids", a: "guest_zZ9", b: "guest_Aa1", want: "guest_Aa1_guest_zZ9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DirectRoomID(tt.a, tt.b))
		})
	}
}

func TestDirectRoomID_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"guest_123456", "user-42"},
		{"x", "y"},
	}

	for _, pair := range pairs {
		assert.Equal(t, DirectRoomID(pair[0], pair[1]), DirectRoomID(pair[1], pair[0]),
			"resolveRoom(%q, %q) must equal resolveRoom(%q, %q)", pair[0], pair[1], pair[1], pair[0])
	}
}
