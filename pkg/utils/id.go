package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a random ID with prefix.
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// GeneratePeerID generates a unique peer ID.
func GeneratePeerID() string {
	return GenerateID("peer")
}

// GenerateSessionID generates a unique session ID.
func GenerateSessionID() string {
	return GenerateID("session")
}
