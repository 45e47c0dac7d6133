package credstore

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/opsdata-io/gateway/errs"
)

// SessionTTL is how long an OAuth handshake session survives before a
// sweep discards it (spec §4.8: "expired sessions (past expires_at) are
// swept on each read").
const SessionTTL = 30 * time.Minute

// Session is one in-flight OAuth handshake: a browser round trip keyed
// by a random session id, carrying the CSRF state nonce issued to the
// provider's authorize URL.
type Session struct {
	ID         string
	State      string
	UserID     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	AuthResult map[string]any // filled once the OAuth callback completes
}

// SessionStore is the in-memory OAuth rendezvous table (spec §4.8:
// "OAuth-handshake sessions held in an in-memory table keyed by random
// 16-byte session ids"). Reads opportunistically sweep expired entries,
// matching the reference implementation's cleanup_expired_sessions call
// at the top of every handler.
type SessionStore struct {
	mu  sync.Mutex
	all map[string]*Session
	now func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{all: make(map[string]*Session), now: time.Now}
}

// Create mints a new session id and a 32-byte CSRF state nonce (spec
// §4.8: "State parameter is a 32-byte CSRF nonce").
func (s *SessionStore) Create(userID string) (*Session, error) {
	id, err := randomURLSafe(16)
	if err != nil {
		return nil, err
	}
	state, err := randomURLSafe(32)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:        id,
		State:     state,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.all[id] = sess
	return sess, nil
}

// Get looks up a session by id, sweeping expired sessions first. A
// session past its own expiry is treated as not found even if the sweep
// has not yet run.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	sess, ok := s.all[id]
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// VerifyState checks that the state nonce returned by the provider's
// OAuth callback matches the one issued for id, without leaking timing
// information about partial matches.
func (s *SessionStore) VerifyState(id, state string) error {
	sess, ok := s.Get(id)
	if !ok {
		return errs.New(errs.AuthTimeout, "oauth session not found or expired", nil)
	}
	if sess.State != state {
		return errs.New(errs.AuthExpired, "oauth state parameter does not match the issued session", nil)
	}
	return nil
}

// Complete attaches the finished OAuth result to a still-live session,
// so a subsequent check_session poll reports status "complete".
func (s *SessionStore) Complete(id string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	sess, ok := s.all[id]
	if !ok {
		return errs.New(errs.AuthTimeout, "oauth session not found or expired", nil)
	}
	sess.AuthResult = result
	return nil
}

func (s *SessionStore) sweepLocked() {
	now := s.now()
	for id, sess := range s.all {
		if sess.ExpiresAt.Before(now) {
			delete(s.all, id)
		}
	}
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", errs.New(errs.ConfigInvalid, "failed generating random token", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf), nil
}
