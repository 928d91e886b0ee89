package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/lapboard-cli/internal/log"
	"github.com/KaramelBytes/lapboard-cli/internal/race"
)

// Entry is an uploaded session together with its bookkeeping times.
type Entry struct {
	ID        string
	Session   *race.Session
	CreatedAt time.Time
	UsedAt    time.Time
}

// Store is a thread-safe in-memory session store keyed by upload id.
// Sessions never share state; each one owns the dataset of its upload.
// Run evicts sessions that have not been used within the TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// NewStore creates a Store with the given inactivity TTL.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the configured inactivity timeout.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put registers a session under a fresh id.
func (s *Store) Put(sess *race.Session) *Entry {
	now := s.now()
	e := &Entry{ID: uuid.NewString(), Session: sess, CreatedAt: now, UsedAt: now}
	s.mu.Lock()
	s.data[e.ID] = e
	s.mu.Unlock()
	return e
}

// Get returns a live session and marks it used. Sessions past their TTL
// are reported missing even before Evict has removed them.
func (s *Store) Get(id string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if !e.UsedAt.After(now.Add(-s.ttl)) {
		return nil, false
	}
	e.UsedAt = now
	return e, true
}

// Delete removes a session. It reports whether the id existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[id]
	delete(s.data, id)
	return ok
}

// Count returns the number of sessions held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes sessions unused since now minus TTL and returns how many went.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UsedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run is the eviction loop. It ticks at half the TTL (minimum 1 second) and
// blocks until ctx is cancelled. onEvict, if set, receives each non-zero count.
func (s *Store) Run(ctx context.Context, onEvict func(n int)) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				log.Logger.Debug("evicted idle sessions", zap.Int("count", n))
				if onEvict != nil {
					onEvict(n)
				}
			}
		}
	}
}
