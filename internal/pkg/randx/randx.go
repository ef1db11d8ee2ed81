/*
Package randx provides functions for generating unique identifiers.

It generates UUID v4 identifiers for messages, reactions, and realtime
connections, and validates externally supplied chat identifiers.
*/
package randx

import (
	"github.com/google/uuid"
)

// MessageID generates a UUID v4 string to serve as a unique message identifier.
func MessageID() string {
	return uuid.New().String()
}

// ReactionID generates a UUID v4 string to serve as a unique reaction identifier.
func ReactionID() string {
	return uuid.New().String()
}

// ConnectionID generates a UUID v4 string identifying a single realtime connection.
func ConnectionID() string {
	return uuid.New().String()
}

// IsValidID reports whether the given string is a well-formed UUID.
// Chat and user identifiers arriving from clients are checked with this before
// being used as map keys or query parameters.
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
