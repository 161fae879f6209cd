package ratelimit_test

import (
	"testing"
	"time"

	"github.com/serroba/window-limiter/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := ratelimit.DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, ratelimit.FailOpen, cfg.OnStoreError)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ratelimit.Config)
	}{
		{name: "zero store timeout", mutate: func(c *ratelimit.Config) { c.StoreTimeout = 0 }},
		{name: "store timeout too long", mutate: func(c *ratelimit.Config) { c.StoreTimeout = time.Minute }},
		{name: "no retries", mutate: func(c *ratelimit.Config) { c.MaxRetries = 0 }},
		{name: "too many retries", mutate: func(c *ratelimit.Config) { c.MaxRetries = 100 }},
		{name: "zero backoff", mutate: func(c *ratelimit.Config) { c.Backoff = 0 }},
		{name: "negative backoff", mutate: func(c *ratelimit.Config) { c.Backoff = -time.Millisecond }},
		{name: "backoff too long", mutate: func(c *ratelimit.Config) { c.Backoff = time.Second }},
		{name: "unknown failure mode", mutate: func(c *ratelimit.Config) { c.OnStoreError = "fail-sideways" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ratelimit.DefaultConfig()
			tt.mutate(&cfg)

			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseFailureMode(t *testing.T) {
	mode, err := ratelimit.ParseFailureMode("fail-closed")
	require.NoError(t, err)
	assert.Equal(t, ratelimit.FailClosed, mode)

	mode, err = ratelimit.ParseFailureMode("fail-open")
	require.NoError(t, err)
	assert.Equal(t, ratelimit.FailOpen, mode)

	_, err = ratelimit.ParseFailureMode("open")
	assert.Error(t, err)
}
