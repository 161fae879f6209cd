package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/serroba/window-limiter/internal/ratelimit"
	"go.uber.org/zap"
)

// mockStore delegates to the memory-like map unless a hook overrides a call.
type mockStore struct {
	mu      sync.Mutex
	records map[string]ratelimit.WindowRecord
	keys    []string

	readErr   error
	casErr    error
	loseRaces int64 // number of compare-and-swaps to refuse before succeeding; -1 refuses forever
	block     bool  // block every call until its context is done

	reads atomic.Int64
	swaps atomic.Int64
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]ratelimit.WindowRecord)}
}

func (m *mockStore) Read(ctx context.Context, key string) (ratelimit.WindowRecord, bool, error) {
	m.reads.Add(1)

	if m.block {
		<-ctx.Done()

		return ratelimit.WindowRecord{}, false, ctx.Err()
	}

	if m.readErr != nil {
		return ratelimit.WindowRecord{}, false, m.readErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys = append(m.keys, key)
	r, ok := m.records[key]

	return r, ok, nil
}

func (m *mockStore) CompareAndSwap(
	_ context.Context, key string, expected *ratelimit.WindowRecord, next ratelimit.WindowRecord, _ time.Duration,
) (bool, error) {
	m.swaps.Add(1)

	if m.casErr != nil {
		return false, m.casErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loseRaces != 0 {
		if m.loseRaces > 0 {
			m.loseRaces--
		}

		return false, nil
	}

	current, ok := m.records[key]
	if (expected == nil && ok) || (expected != nil && (!ok || current != *expected)) {
		return false, nil
	}

	m.records[key] = next

	return true, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []ratelimit.Degradation
}

func (o *recordingObserver) OnDegraded(_ context.Context, d ratelimit.Degradation) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.events = append(o.events, d)
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}
