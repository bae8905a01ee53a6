package compare

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultViewID      = "default"
	defaultSessionIdle = 30 * time.Minute
)

// SessionStore keeps one Session per console view and evicts views idle for
// longer than the TTL.
type SessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionIdle
	}
	return &SessionStore{ttl: ttl, now: time.Now, sessions: map[string]*Session{}}
}

// Get returns the session for viewID, creating it on first use.
func (s *SessionStore) Get(viewID string) *Session {
	id := strings.TrimSpace(viewID)
	if id == "" {
		id = DefaultViewID
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	sess, ok := s.sessions[id]
	if !ok {
		sess = NewSession(id)
		s.sessions[id] = sess
	}
	sess.touch(now)
	return sess
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts idle sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *SessionStore) sweepLocked(now time.Time) int {
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.idleSince()) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
