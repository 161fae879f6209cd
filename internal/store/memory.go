package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/window-limiter/internal/clock"
	"github.com/serroba/window-limiter/internal/ratelimit"
)

// Compile-time interface check.
var _ ratelimit.Store = (*MemoryStore)(nil)

type memoryEntry struct {
	record    ratelimit.WindowRecord
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of ratelimit.Store.
// It only coordinates limiters that share the same process.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	records map[string]memoryEntry
}

// NewMemoryStore creates a new in-memory rate limit store whose expiry
// follows clk.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:   clk,
		records: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Read(_ context.Context, key string) (ratelimit.WindowRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)

	return entry.record, ok, nil
}

func (s *MemoryStore) CompareAndSwap(
	_ context.Context, key string, expected *ratelimit.WindowRecord, next ratelimit.WindowRecord, ttl time.Duration,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.live(key)

	switch {
	case expected == nil && ok:
		return false, nil
	case expected != nil && (!ok || current.record != *expected):
		return false, nil
	}

	s.records[key] = memoryEntry{
		record:    next,
		expiresAt: s.clock.Now().Add(ttl),
	}

	return true, nil
}

// live returns the entry for key unless it is missing or expired.
// Callers must hold s.mu.
func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	entry, ok := s.records[key]
	if !ok {
		return memoryEntry{}, false
	}

	if !s.clock.Now().Before(entry.expiresAt) {
		delete(s.records, key)

		return memoryEntry{}, false
	}

	return entry, true
}

// PurgeExpired drops every expired entry and returns how many were removed.
func (s *MemoryStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	var purged int64

	for key, entry := range s.records {
		if !now.Before(entry.expiresAt) {
			delete(s.records, key)
			purged++
		}
	}

	return purged, nil
}

// Len returns the number of entries held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}
