/*
Package rooms defines how direct-conversation room identifiers are derived
from their two participants.

Both the server-side store and the client reconciliation layer use the same
derivation, so either side of a conversation resolves to the same room id
regardless of who initiates it.
*/
package rooms

// NormalizePair returns the two participant identities in sorted order.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// DirectRoomID derives the deterministic room identifier for an unordered
// pair of participant identities: the sorted pair joined with an underscore.
// DirectRoomID(a, b) == DirectRoomID(b, a) for any a, b.
func DirectRoomID(a, b string) string {
	first, second := NormalizePair(a, b)
	return first + "_" + second
}
