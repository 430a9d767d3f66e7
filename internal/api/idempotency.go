package api

import (
	"sync"
	"time"
)

// IdempotencyTTL is how long an Idempotency-Key is remembered
const IdempotencyTTL = 24 * time.Hour

type idempotencyEntry struct {
	patientID string
	seenAt    time.Time
}

// IdempotencyStore maps processed Idempotency-Key values to the patient they created
type IdempotencyStore struct {
	seen map[string]idempotencyEntry
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		seen: make(map[string]idempotencyEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Lookup returns the patient created for key, if it is still remembered
func (s *IdempotencyStore) Lookup(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.seen[key]
	if !ok {
		return "", false
	}
	if s.ttl > 0 && s.now().Sub(e.seenAt) > s.ttl {
		delete(s.seen, key)
		return "", false
	}
	return e.patientID, true
}

// Mark records key as processed and prunes expired keys
func (s *IdempotencyStore) Mark(key, patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.ttl > 0 {
		for k, e := range s.seen {
			if now.Sub(e.seenAt) > s.ttl {
				delete(s.seen, k)
			}
		}
	}
	s.seen[key] = idempotencyEntry{patientID: patientID, seenAt: now}
}
