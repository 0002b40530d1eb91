package auth

import (
	"sync"
	"time"
)

// RevocationStore remembers the IDs of tokens signed out before they
// expire. Entries are dropped once the token would have expired anyway.
type RevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> token expiry
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewRevocationStore starts a store that sweeps expired entries every
// interval. A non-positive interval disables the sweeper.
func NewRevocationStore(interval time.Duration) *RevocationStore {
	s := &RevocationStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if interval > 0 {
		go s.sweepLoop(interval)
	}
	return s
}

func (s *RevocationStore) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = expiresAt
}

func (s *RevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok
}

func (s *RevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the sweeper. Safe to call more than once.
func (s *RevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *RevocationStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *RevocationStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, jti)
		}
	}
}
