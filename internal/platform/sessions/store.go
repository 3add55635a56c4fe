// Package sessions provides an in-memory TTL store for checkout flows.
// Sessions are ephemeral: there is no durable order state.
package sessions

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nomadpass/checkout-api/internal/services"
)

// DefaultTTL bounds how long an idle checkout session survives.
const DefaultTTL = 30 * time.Minute

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("sessions: not found")

type entry struct {
	flow      *services.CheckoutFlow
	expiresAt time.Time
}

// Store keeps checkout flows keyed by opaque session ids. Expired entries are
// evicted lazily on access and in batches via CleanupExpired.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewStore constructs an empty store. A non-positive ttl falls back to
// DefaultTTL; a nil clock falls back to the wall clock.
func NewStore(ttl time.Duration, now func() time.Time) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     func() time.Time { return now().UTC() },
	}
}

// Put registers a flow and returns its new session id.
func (s *Store) Put(flow *services.CheckoutFlow) string {
	id := ulid.MustNew(ulid.Now(), rand.Reader).String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = entry{flow: flow, expiresAt: s.now().Add(s.ttl)}
	return id
}

// Get returns the flow for a session id, refreshing its TTL.
func (s *Store) Get(id string) (*services.CheckoutFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	if !now.Before(e.expiresAt) {
		delete(s.entries, id)
		return nil, ErrNotFound
	}
	e.expiresAt = now.Add(s.ttl)
	s.entries[id] = e
	return e.flow, nil
}

// Delete removes a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// CleanupExpired evicts up to limit expired sessions and reports how many
// were removed. A non-positive limit sweeps everything.
func (s *Store) CleanupExpired(limit int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	removed := 0
	for id, e := range s.entries {
		if now.Before(e.expiresAt) {
			continue
		}
		delete(s.entries, id)
		removed++
		if removed >= limit {
			break
		}
	}
	return removed
}

// Len reports the number of live entries, counting not-yet-evicted expired
// sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
