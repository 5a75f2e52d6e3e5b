// Package state tracks the single-use CSRF state tokens that correlate a
// login initiation with the provider redirect that follows it.
package state

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// DefaultTTL bounds how long a login attempt may sit between the redirect to
// the provider and the callback.
const DefaultTTL = 10 * time.Minute

type entry struct {
	provider string
	expiry   time.Time
}

// Store is an in-memory single-use state store. Consume validates and
// deletes in one step, so a replayed state is rejected even if it has not
// expired yet.
type Store struct {
	ttl    time.Duration
	states sync.Map // map[state]entry
	now    func() time.Time
}

// NewStore creates a state store and starts its cleanup goroutine.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	store := &Store{ttl: ttl, now: time.Now}
	go store.cleanup()
	return store
}

// Issue generates an unguessable state token bound to a provider and records
// it for later consumption.
func (s *Store) Issue(provider string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(b)
	s.states.Store(state, entry{provider: provider, expiry: s.now().Add(s.ttl)})
	return state, nil
}

// Consume checks a state token and deletes it. It returns false for unknown,
// expired, or already-consumed states, and for states issued to a different
// provider than the one handling the callback.
func (s *Store) Consume(state, provider string) bool {
	if state == "" {
		return false
	}
	val, ok := s.states.LoadAndDelete(state)
	if !ok {
		return false
	}
	e := val.(entry)
	if s.now().After(e.expiry) {
		return false
	}
	return e.provider == provider
}

func (s *Store) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := s.now()
		s.states.Range(func(key, value interface{}) bool {
			if now.After(value.(entry).expiry) {
				s.states.Delete(key)
			}
			return true
		})
	}
}
