package api

import (
	"sync"
	"time"

	"github.com/dgallion1/stockclass/internal/workflow"
	"github.com/google/uuid"
)

// Session is one browser's controller.
type Session struct {
	ID       string
	Workflow *workflow.Workflow
	LastSeen time.Time
}

// SessionStore is a thread-safe in-memory registry of per-browser workflows
// with idle TTL eviction.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	create   func() *workflow.Workflow
	now      func() time.Time
}

// NewSessionStore creates a store whose sessions expire after ttl without a
// request. create builds and mounts the workflow for a new session.
func NewSessionStore(ttl time.Duration, create func() *workflow.Workflow) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		create:   create,
		now:      time.Now,
	}
}

// Acquire returns the live session for id, or a new session when id is
// unknown or expired. The bool reports whether a session was created.
func (s *SessionStore) Acquire(id string) (*Session, bool) {
	s.mu.Lock()
	now := s.now()
	if sess, ok := s.sessions[id]; ok && id != "" {
		if now.Sub(sess.LastSeen) <= s.ttl {
			sess.LastSeen = now
			s.mu.Unlock()
			return sess, false
		}
		delete(s.sessions, id)
		defer sess.Workflow.Close()
	}
	sess := &Session{
		ID:       uuid.NewString(),
		Workflow: s.create(),
		LastSeen: now,
	}
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess, true
}

// Get returns the session for id without touching its idle timer.
func (s *SessionStore) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup removes expired sessions and closes their workflows. It returns
// the number removed.
func (s *SessionStore) Cleanup() int {
	s.mu.Lock()
	now := s.now()
	var expired []*Session
	for id, sess := range s.sessions {
		if now.Sub(sess.LastSeen) > s.ttl {
			delete(s.sessions, id)
			expired = append(expired, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Workflow.Close()
	}
	return len(expired)
}

// CloseAll closes every session. Used at shutdown.
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.Workflow.Close()
	}
}
