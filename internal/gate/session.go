package gate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionCookie is the cookie carrying a developer session token.
const SessionCookie = "SESSION"

// SessionStore holds developer session tokens in memory with a fixed
// TTL. Sessions do not survive a restart; issuing them again is the
// job of whatever login flow fronts the gateway.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]time.Time
}

// NewSessionStore creates a SessionStore whose sessions expire after
// ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]time.Time),
	}
}

// Issue creates a new session and returns its token.
func (s *SessionStore) Issue() string {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.sessions[token] = s.now().Add(s.ttl)
	return token
}

// Validate reports whether the token names a live session.
func (s *SessionStore) Validate(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.sessions[token]
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		delete(s.sessions, token)
		return false
	}
	return true
}

// Revoke removes a session if it exists.
func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// prune drops expired sessions. Caller must hold mu.
func (s *SessionStore) prune() {
	now := s.now()
	for token, expiry := range s.sessions {
		if now.After(expiry) {
			delete(s.sessions, token)
		}
	}
}
