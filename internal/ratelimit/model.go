package ratelimit

import (
	"fmt"
	"time"
)

// MaxKeyLength is the largest subject key accepted, in bytes.
const MaxKeyLength = 256

// Policy is a quota of MaxRequests per WindowSeconds.
type Policy struct {
	MaxRequests   uint32 `json:"maxRequests"`
	WindowSeconds uint32 `json:"windowSeconds"`
}

// Validate reports ErrInvalidPolicy when either field is zero.
func (p Policy) Validate() error {
	if p.MaxRequests == 0 {
		return fmt.Errorf("%w: maxRequests must be positive", ErrInvalidPolicy)
	}

	if p.WindowSeconds == 0 {
		return fmt.Errorf("%w: windowSeconds must be positive", ErrInvalidPolicy)
	}

	return nil
}

// Window returns the window length as a duration.
func (p Policy) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// TTL is how long an idle record is kept by the store: two full windows,
// after which it can no longer contribute to any estimate.
func (p Policy) TTL() time.Duration {
	return 2 * p.Window()
}

func (p Policy) String() string {
	return fmt.Sprintf("%d/%ds", p.MaxRequests, p.WindowSeconds)
}

// ValidateKey reports ErrInvalidKey for empty keys or keys over MaxKeyLength bytes.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidKey, len(key), MaxKeyLength)
	}

	return nil
}

// WindowRecord is the state persisted per key.
type WindowRecord struct {
	// WindowIndex is floor(unix seconds / window) of the window CurrentCount belongs to.
	WindowIndex int64
	// CurrentCount is the number of requests admitted in WindowIndex.
	CurrentCount int64
	// PreviousCount is the number of requests admitted in WindowIndex-1.
	PreviousCount int64
}

// EmptyRecord stands in for a key the store has no record of.
func EmptyRecord() WindowRecord {
	return WindowRecord{WindowIndex: -1}
}

// Decision is the outcome of CheckAndConsume.
type Decision struct {
	Allowed bool
	// RetryAfter is a whole number of seconds, set only when Allowed is false.
	RetryAfter time.Duration
	// Degraded is true when the store could not be used and the configured
	// FailureMode decided instead.
	Degraded bool
	// Cause is ErrStoreUnavailable or ErrStoreConflict when Degraded.
	Cause error
}

// RetryAfterSeconds returns RetryAfter in whole seconds.
func (d Decision) RetryAfterSeconds() int64 {
	return int64(d.RetryAfter / time.Second)
}
