package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/common/uuid"
)

type credentialKey struct {
	serverURL string
	username  string
	password  string
}

// MemoryStore keeps sessions in process memory. Sessions do not survive a
// restart.
type MemoryStore struct {
	mu       sync.RWMutex
	byToken  map[string]*Session
	byCreds  map[credentialKey]map[string]struct{}
	newToken func() (string, error)
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byToken:  make(map[string]*Session),
		byCreds:  make(map[credentialKey]map[string]struct{}),
		newToken: uuid.NewToken,
	}
}

func (m *MemoryStore) FindValid(ctx context.Context, serverURL, username, password string, now time.Time) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Session
	for token := range m.byCreds[credentialKey{serverURL, username, password}] {
		s := m.byToken[token]
		if !s.Valid(now) {
			continue
		}
		if best == nil || s.Expiry.After(best.Expiry) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrSessionNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) FindByToken(ctx context.Context, token string, now time.Time) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byToken[token]
	if !ok || !s.Valid(now) {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Create(ctx context.Context, serverURL, username, password string, now time.Time, duration time.Duration) (*Session, error) {
	if duration <= 0 {
		return nil, ErrInvalidInput.New("session duration must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < tokenAttempts; i++ {
		token, err := m.newToken()
		if err != nil {
			return nil, ErrStore.MsgErr("unable to generate token", err)
		}
		if _, taken := m.byToken[token]; taken {
			log.Ctx(ctx).Warn().Msg("token collision, regenerating")
			continue
		}
		s := &Session{
			Token:     token,
			ServerURL: serverURL,
			Username:  username,
			Password:  password,
			Expiry:    now.Add(duration),
			CreatedAt: now,
		}
		m.byToken[token] = s
		key := credentialKey{serverURL, username, password}
		if m.byCreds[key] == nil {
			m.byCreds[key] = make(map[string]struct{})
		}
		m.byCreds[key][token] = struct{}{}
		cp := *s
		return &cp, nil
	}
	return nil, ErrTokenConflict
}

func (m *MemoryStore) Delete(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byToken[s.Token]; !ok {
		log.Ctx(ctx).Warn().Str("server_url", s.ServerURL).Msg("tried to delete a session that was not saved")
		return nil
	}
	m.deleteLocked(s.Token)
	return nil
}

func (m *MemoryStore) deleteLocked(token string) {
	s := m.byToken[token]
	delete(m.byToken, token)
	key := credentialKey{s.ServerURL, s.Username, s.Password}
	delete(m.byCreds[key], token)
	if len(m.byCreds[key]) == 0 {
		delete(m.byCreds, key)
	}
}

func (m *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged []string
	for token, s := range m.byToken {
		if !s.Valid(now) {
			purged = append(purged, token)
		}
	}
	for _, token := range purged {
		m.deleteLocked(token)
	}
	return purged, nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byToken)
}

func (m *MemoryStore) Close() error {
	return nil
}
