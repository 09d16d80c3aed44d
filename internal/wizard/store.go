package wizard

import (
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultSessionTTL is how long an untouched session survives
const DefaultSessionTTL = 30 * time.Minute

// SessionFactory builds a new session for id
type SessionFactory func(id string) *Session

// Store keeps the live sessions. Each Get extends the session's lifetime;
// sessions that expire or are deleted are closed.
type Store struct {
	sessions    *cache.Cache
	newSession  SessionFactory
	idGenerator IDGenerator
}

// NewStore creates a session store
func NewStore(ttl time.Duration, newSession SessionFactory) *Store {
	return NewStoreWithDeps(ttl, newSession, uuidGenerator{})
}

// NewStoreWithDeps creates a session store with a custom ID generator for testing
func NewStoreWithDeps(ttl time.Duration, newSession SessionFactory, idGen IDGenerator) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	cleanup := ttl / 2
	if cleanup > time.Minute {
		cleanup = time.Minute
	}
	sessions := cache.New(ttl, cleanup)
	sessions.OnEvicted(func(id string, v interface{}) {
		if s, ok := v.(*Session); ok {
			slog.Info("Session evicted", "session", id)
			s.Close()
		}
	})
	return &Store{
		sessions:    sessions,
		newSession:  newSession,
		idGenerator: idGen,
	}
}

// Create starts a new session
func (s *Store) Create() *Session {
	id := s.idGenerator.Generate()
	session := s.newSession(id)
	s.sessions.Set(id, session, cache.DefaultExpiration)
	slog.Info("Session created", "session", id)
	return session
}

// Get returns a live session and extends its lifetime
func (s *Store) Get(id string) (*Session, bool) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, false
	}
	session := v.(*Session)
	s.sessions.Set(id, session, cache.DefaultExpiration)
	return session, true
}

// Delete closes and removes a session. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	if _, ok := s.sessions.Get(id); !ok {
		return false
	}
	s.sessions.Delete(id)
	return true
}

// Len returns the number of stored sessions, including expired ones not yet cleaned up
func (s *Store) Len() int {
	return s.sessions.ItemCount()
}

// Close closes every session
func (s *Store) Close() {
	s.sessions.DeleteExpired()
	for id := range s.sessions.Items() {
		s.sessions.Delete(id)
	}
}
