// Package uuid generates the identifiers used by the proxy: random session
// tokens and time-ordered request ids. It wraps github.com/google/uuid.
package uuid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UUID represents a UUID, aliased from github.com/google/uuid.UUID
type UUID = uuid.UUID

// NewToken returns a random (version 4) UUID string for use as a session
// token. Tokens must not be guessable from one another, so the time-ordered
// variant is not used here.
func NewToken() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// NewRequestID returns a UUIDv7 string, falling back to a timestamp-based id
// if the random source fails.
func NewRequestID() string {
	u, err := uuid.NewV7()
	if err == nil {
		return u.String()
	}
	return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
}

// IsToken reports whether s has the shape of a token produced by NewToken.
func IsToken(s string) bool {
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.Version() == uuid.Version(4)
}
