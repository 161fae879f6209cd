package ratelimit

import (
	"context"
	"time"
)

// Store is the shared state the limiter coordinates through.
// Implementations must be safe for concurrent use.
type Store interface {
	// Read returns the record stored under key. found is false when the key
	// is absent or expired.
	Read(ctx context.Context, key string) (record WindowRecord, found bool, err error)

	// CompareAndSwap writes next under key only if the stored record equals
	// *expected, or the key is absent when expected is nil. A successful swap
	// resets the key's expiry to ttl and must be linearizable with every other
	// writer of the same key.
	CompareAndSwap(
		ctx context.Context, key string, expected *WindowRecord, next WindowRecord, ttl time.Duration,
	) (swapped bool, err error)
}
