// Package session is the in-memory keyed store that retains an analyzed
// dataset between the analyze call and later pagination or chat calls.
//
// Lifecycle is explicit: Put on analyze, Get by id, Delete or TTL
// expiry. The store owns the Dataset for the session's lifetime and is
// responsible for its eviction; the pipeline itself never assumes the
// store exists.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"insight/internal/dataset"
)

// DefaultTTL is the session lifetime when the caller passes a
// non-positive TTL.
const DefaultTTL = 30 * time.Minute

// janitorInterval is how often expired sessions are swept.
const janitorInterval = time.Minute

// Session is one stored analysis context.
type Session struct {
	ID       string
	Filename string
	Data     *dataset.Dataset
	Class    dataset.Classification
	Created  time.Time
}

// Store is a TTL-evicting keyed session store. Safe for concurrent use.
type Store struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once

	// now is a test seam.
	now func() time.Time
}

type entry struct {
	session  *Session
	deadline time.Time
}

// NewStore creates a store and starts its eviction janitor. Callers must
// Close the store to stop the janitor.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		ttl:      ttl,
		sessions: make(map[string]*entry),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
	go s.janitor()
	return s
}

// Put stores a session under a fresh id and returns the id.
func (s *Store) Put(filename string, ds *dataset.Dataset, cls dataset.Classification) string {
	id := uuid.NewString()
	now := s.now()
	s.mu.Lock()
	s.sessions[id] = &entry{
		session: &Session{
			ID:       id,
			Filename: filename,
			Data:     ds,
			Class:    cls,
			Created:  now,
		},
		deadline: now.Add(s.ttl),
	}
	s.mu.Unlock()
	return id
}

// Get returns the session for id. ok is false when the id is unknown or
// the session has expired; expired sessions are removed lazily here as
// well as by the janitor.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().After(e.deadline) {
		s.Delete(id)
		return nil, false
	}
	return e.session, true
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of stored sessions, expired ones included
// until the next sweep.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the janitor. The store stays usable but no longer evicts
// in the background.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) janitor() {
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.now()
	s.mu.Lock()
	for id, e := range s.sessions {
		if now.After(e.deadline) {
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
}
