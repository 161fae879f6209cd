package ratelimit

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// FailureMode decides requests when the store cannot.
type FailureMode string

const (
	// FailOpen admits requests while the store is failing.
	FailOpen FailureMode = "fail-open"
	// FailClosed rejects requests while the store is failing.
	FailClosed FailureMode = "fail-closed"
)

// ParseFailureMode accepts "fail-open" or "fail-closed".
func ParseFailureMode(s string) (FailureMode, error) {
	switch mode := FailureMode(s); mode {
	case FailOpen, FailClosed:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown failure mode %q: must be %q or %q", s, FailOpen, FailClosed)
	}
}

// Config tunes a Limiter.
type Config struct {
	// StoreTimeout bounds every individual store call.
	StoreTimeout time.Duration `validate:"gte=1ms,lte=5s"`
	// MaxRetries is the number of compare-and-swap attempts before giving up.
	MaxRetries int `validate:"gte=1,lte=20"`
	// Backoff is the base delay between attempts; it doubles per attempt and is jittered.
	Backoff time.Duration `validate:"gte=1ms,lte=100ms"`
	// OnStoreError is applied when the store is unavailable or contended.
	OnStoreError FailureMode `validate:"oneof=fail-open fail-closed"`
	// KeyPrefix namespaces every key written to the store.
	KeyPrefix string `validate:"max=64"`
}

// DefaultConfig returns a 100ms store timeout, 5 attempts, 1ms base backoff,
// fail-open and the "ratelimit:" namespace.
func DefaultConfig() Config {
	return Config{
		StoreTimeout: 100 * time.Millisecond,
		MaxRetries:   5,
		Backoff:      time.Millisecond,
		OnStoreError: FailOpen,
		KeyPrefix:    "ratelimit:",
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field is within range.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	return nil
}
