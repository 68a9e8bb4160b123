/*
Package randx provides functions for generating cryptographically secure random identifiers.

It is primarily used to generate guest user IDs, random display names, and UUID message IDs.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// GuestIDPrefix is the required prefix for generated guest IDs.
	GuestIDPrefix = "guest_"

	// GuestIDRawLength is the fixed length of the Base62 part of the GuestID.
	GuestIDRawLength = 6
)

// base62String generates a Base62 string of the given length using crypto/rand.
func base62String(length int) (string, error) {
	result := make([]byte, length)

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %v", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// GuestID generates a new guest identifier of the form "guest_XXXXXX".
func GuestID() (string, error) {
	raw, err := base62String(GuestIDRawLength)
	if err != nil {
		return "", err
	}

	return GuestIDPrefix + raw, nil
}

// IsValidGuestID checks if the given string is a valid Guest ID.
func IsValidGuestID(id string) bool {
	if !strings.HasPrefix(id, GuestIDPrefix) {
		return false
	}

	rawID := id[len(GuestIDPrefix):]

	if len(rawID) != GuestIDRawLength {
		return false
	}

	for _, char := range rawID {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a stored message.
func MessageID() string {
	return uuid.New().String()
}

// UserNickname generates a random display name with a "User_" prefix and 6 random Base62 characters.
func UserNickname() (string, error) {
	const nicknameRandomLength = 6

	raw, err := base62String(nicknameRandomLength)
	if err != nil {
		return "", err
	}

	return "User_" + raw, nil
}
