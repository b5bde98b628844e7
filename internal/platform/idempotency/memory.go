package idempotency

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryCapacity = 10_000

// MemoryStore keeps reservations in a bounded LRU. It backs local runs and tests; once full
// the least recently touched keys are forgotten.
type MemoryStore struct {
	// mu makes read-then-write sequences atomic; the LRU only locks single calls.
	mu      sync.Mutex
	records *lru.Cache[string, Record]
}

type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	capacity int
}

// WithCapacity bounds the number of remembered keys.
func WithCapacity(n int) MemoryOption {
	return func(c *memoryConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	cfg := memoryConfig{capacity: defaultMemoryCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	records, err := lru.New[string, Record](cfg.capacity)
	if err != nil {
		// Only returned for a non-positive size, which the option rules out.
		panic(err)
	}
	return &MemoryStore{records: records}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := compositeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records.Get(id); ok && !record.expired(now) {
		return record.existing(fingerprint)
	}
	record := pendingRecord(key, fingerprint, now, ttl)
	s.records.Add(id, record)
	return Reservation{State: ReservationStateNew, Record: record}, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	id := compositeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, _ := s.records.Peek(id)
	if record.Fingerprint != "" && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records.Add(id, record.completed(key, fingerprint, resp, now, ttl))
	return nil
}

// Release forgets the key when it is still held for fingerprint.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	id := compositeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records.Peek(id); ok && record.Fingerprint == fingerprint {
		s.records.Remove(id)
	}
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range s.records.Keys() {
		if limit > 0 && removed >= limit {
			break
		}
		if record, ok := s.records.Peek(id); ok && record.expired(now) {
			s.records.Remove(id)
			removed++
		}
	}
	return removed, nil
}
