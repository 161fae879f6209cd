package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serroba/window-limiter/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeHarness builds a fresh store and a way to move its notion of time.
type storeHarness func(t *testing.T) (s ratelimit.Store, advance func(time.Duration))

func testStoreContract(t *testing.T, newStore storeHarness) {
	t.Helper()

	ctx := context.Background()
	first := ratelimit.WindowRecord{WindowIndex: 10, CurrentCount: 1}
	second := ratelimit.WindowRecord{WindowIndex: 10, CurrentCount: 2}

	t.Run("reads absent key as not found", func(t *testing.T) {
		s, _ := newStore(t)

		_, found, err := s.Read(ctx, "missing")

		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("creates record when absent", func(t *testing.T) {
		s, _ := newStore(t)

		swapped, err := s.CompareAndSwap(ctx, "k", nil, first, time.Minute)
		require.NoError(t, err)
		assert.True(t, swapped)

		got, found, err := s.Read(ctx, "k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, first, got)
	})

	t.Run("refuses create when present", func(t *testing.T) {
		s, _ := newStore(t)

		_, err := s.CompareAndSwap(ctx, "k", nil, first, time.Minute)
		require.NoError(t, err)

		swapped, err := s.CompareAndSwap(ctx, "k", nil, second, time.Minute)
		require.NoError(t, err)
		assert.False(t, swapped)

		got, _, _ := s.Read(ctx, "k")
		assert.Equal(t, first, got, "failed swap must leave the record intact")
	})

	t.Run("swaps when expected matches", func(t *testing.T) {
		s, _ := newStore(t)

		_, err := s.CompareAndSwap(ctx, "k", nil, first, time.Minute)
		require.NoError(t, err)

		swapped, err := s.CompareAndSwap(ctx, "k", &first, second, time.Minute)
		require.NoError(t, err)
		assert.True(t, swapped)

		got, _, _ := s.Read(ctx, "k")
		assert.Equal(t, second, got)
	})

	t.Run("refuses swap when expected is stale", func(t *testing.T) {
		s, _ := newStore(t)

		_, err := s.CompareAndSwap(ctx, "k", nil, second, time.Minute)
		require.NoError(t, err)

		swapped, err := s.CompareAndSwap(ctx, "k", &first, ratelimit.WindowRecord{WindowIndex: 11}, time.Minute)
		require.NoError(t, err)
		assert.False(t, swapped)

		got, _, _ := s.Read(ctx, "k")
		assert.Equal(t, second, got)
	})

	t.Run("refuses swap when key is absent", func(t *testing.T) {
		s, _ := newStore(t)

		swapped, err := s.CompareAndSwap(ctx, "k", &first, second, time.Minute)

		require.NoError(t, err)
		assert.False(t, swapped)
	})

	t.Run("expires record after ttl", func(t *testing.T) {
		s, advance := newStore(t)

		_, err := s.CompareAndSwap(ctx, "k", nil, first, 2*time.Second)
		require.NoError(t, err)

		advance(3 * time.Second)

		_, found, err := s.Read(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)

		swapped, err := s.CompareAndSwap(ctx, "k", nil, second, 2*time.Second)
		require.NoError(t, err)
		assert.True(t, swapped, "expired key counts as absent")
	})

	t.Run("successful write resets ttl", func(t *testing.T) {
		s, advance := newStore(t)

		_, err := s.CompareAndSwap(ctx, "k", nil, first, 4*time.Second)
		require.NoError(t, err)

		advance(3 * time.Second)

		swapped, err := s.CompareAndSwap(ctx, "k", &first, second, 4*time.Second)
		require.NoError(t, err)
		require.True(t, swapped)

		advance(3 * time.Second)

		got, found, err := s.Read(ctx, "k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, second, got)
	})

	t.Run("exactly one concurrent swap wins", func(t *testing.T) {
		s, _ := newStore(t)

		_, err := s.CompareAndSwap(ctx, "k", nil, first, time.Minute)
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			wins atomic.Int64
		)

		for i := range 20 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				next := ratelimit.WindowRecord{WindowIndex: 10, CurrentCount: int64(100 + i)}

				swapped, err := s.CompareAndSwap(ctx, "k", &first, next, time.Minute)
				if err == nil && swapped {
					wins.Add(1)
				}
			}()
		}

		wg.Wait()

		assert.Equal(t, int64(1), wins.Load())
	})
}
