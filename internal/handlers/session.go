package handlers

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"material-search/internal/metrics"
)

const (
	// SessionCookieName is the name of the session cookie
	SessionCookieName = "material_search_session"

	// DefaultSessionDuration is how long an idle session stays valid.
	DefaultSessionDuration = 24 * time.Hour
)

// Session is the per-browser state. Sessions are created on login, or on
// first upload when login is disabled.
type Session struct {
	Token         string
	Username      string
	Authenticated bool
	UploadPath    string
	ExpiresAt     time.Time
}

// SessionStore keeps sessions in memory. Sessions do not survive a restart,
// which only costs users a new login and their pending upload.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a store whose sessions expire after ttl without use.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL returns the idle timeout.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create starts a new session and returns a copy of it.
func (s *SessionStore) Create(username string, authenticated bool) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		Token:         uuid.NewString(),
		Username:      username,
		Authenticated: authenticated,
		ExpiresAt:     s.now().Add(s.ttl),
	}
	s.sessions[sess.Token] = sess
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return *sess
}

// Touch returns the session for token and extends its expiry.
func (s *SessionStore) Touch(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(token)
	if !ok {
		return Session{}, false
	}
	sess.ExpiresAt = s.now().Add(s.ttl)
	return *sess, true
}

// SetUpload records path as the session's query image and returns the
// previous one.
func (s *SessionStore) SetUpload(token, path string) (previous string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(token)
	if !ok {
		return "", false
	}
	previous, sess.UploadPath = sess.UploadPath, path
	return previous, true
}

// TakeUpload returns the session's query image and clears it.
func (s *SessionStore) TakeUpload(token string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(token)
	if !ok {
		return ""
	}
	path := sess.UploadPath
	sess.UploadPath = ""
	return path
}

// Upload returns the session's query image without clearing it.
func (s *SessionStore) Upload(token string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.live(token); ok {
		return sess.UploadPath
	}
	return ""
}

// Delete ends a session and returns its pending upload, if any.
func (s *SessionStore) Delete(token string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return ""
	}
	delete(s.sessions, token)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return sess.UploadPath
}

// Cleanup drops expired sessions and returns their pending uploads.
func (s *SessionStore) Cleanup() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var uploads []string
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			if sess.UploadPath != "" {
				uploads = append(uploads, sess.UploadPath)
			}
			delete(s.sessions, token)
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return uploads
}

// Len returns the number of stored sessions, expired ones included.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// live must be called with mu held.
func (s *SessionStore) live(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}
	sess, ok := s.sessions[token]
	if !ok || s.now().After(sess.ExpiresAt) {
		return nil, false
	}
	return sess, true
}
