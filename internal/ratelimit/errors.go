package ratelimit

import "errors"

var (
	// ErrInvalidPolicy is returned for a policy with a zero quota or window.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	// ErrInvalidKey is returned for an empty or oversized subject key.
	ErrInvalidKey = errors.New("invalid rate limit key")
	// ErrStoreUnavailable wraps connection failures and timeouts talking to the store.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	// ErrStoreConflict is returned when every compare-and-swap attempt lost a race.
	ErrStoreConflict = errors.New("rate limit store conflict")
	// ErrCorruptRecord is returned when a stored value cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt window record")
)
