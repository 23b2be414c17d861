package call

import (
	"sort"
	"sync"
	"time"
)

// Store is the process-wide map of call SID to session. Sessions live for
// the lifetime of the process; there is no eviction. Lookup and creation
// take the store lock, but turn mutation only takes the session's own lock,
// so slow calls never block each other.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for callSID, creating it if absent.
// The second return reports whether a new session was created. Creation is
// atomic per call SID: two concurrent webhooks for the same call see the
// same session.
func (s *Store) GetOrCreate(callSID, from string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[callSID]
	s.mu.RUnlock()
	if ok {
		return sess, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[callSID]; ok {
		return sess, false
	}
	sess = newSession(callSID, from, time.Now().UTC())
	s.sessions[callSID] = sess
	return sess, true
}

// Get returns the session for callSID if it exists.
func (s *Store) Get(callSID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[callSID]
	return sess, ok
}

// List returns all sessions ordered by start time.
func (s *Store) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CallSID < out[j].CallSID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len reports the number of known sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
