// Package sessionstore persists proxy sessions: the binding of an opaque token
// to a (server URL, username, password) triple and an absolute expiry. Two
// backends are provided, an in-process map and PostgreSQL.
package sessionstore

import (
	"context"
	"net/http"
	"time"

	"github.com/csfam/pawprint/internal/common/apperrors"
)

// Session is one authenticated binding. Sessions returned by a Store are
// copies; mutating them has no effect on the store.
type Session struct {
	Token     string
	ServerURL string
	Username  string
	Password  string
	Expiry    time.Time
	CreatedAt time.Time
}

// Valid reports whether the session is usable at now. A session expiring
// exactly at now is no longer valid.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.Expiry)
}

// Store is the persistence contract used by the authentication flow and the
// request dispatcher. Lookups never return expired sessions, and never delete
// them either; expired records are removed by PurgeExpired.
type Store interface {
	// FindValid returns the valid session for the triple with the latest
	// expiry, or ErrSessionNotFound.
	FindValid(ctx context.Context, serverURL, username, password string, now time.Time) (*Session, error)
	// FindByToken returns the session for token if it is valid at now, or
	// ErrSessionNotFound.
	FindByToken(ctx context.Context, token string, now time.Time) (*Session, error)
	// Create persists a new session with a fresh token expiring at now+duration.
	Create(ctx context.Context, serverURL, username, password string, now time.Time, duration time.Duration) (*Session, error)
	// Delete removes the session. Deleting an absent session is logged and
	// is not an error.
	Delete(ctx context.Context, s *Session) error
	// PurgeExpired removes every session expired at now and returns their tokens.
	PurgeExpired(ctx context.Context, now time.Time) ([]string, error)
	Close() error
}

var (
	ErrStore           apperrors.Error = apperrors.New("session store error").SetStatusCode(http.StatusInternalServerError)
	ErrSessionNotFound apperrors.Error = ErrStore.New("session not found").SetStatusCode(http.StatusNotFound)
	ErrDatabase        apperrors.Error = ErrStore.New("database error")
	ErrTokenConflict   apperrors.Error = ErrStore.New("unable to allocate a unique token").SetStatusCode(http.StatusConflict)
	ErrCredentialSeal  apperrors.Error = ErrStore.New("unable to seal credentials")
	ErrInvalidInput    apperrors.Error = ErrStore.New("invalid input").SetStatusCode(http.StatusBadRequest)
)

// tokenAttempts bounds token regeneration on collisions.
const tokenAttempts = 3
