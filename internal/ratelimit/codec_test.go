package ratelimit_test

import (
	"testing"

	"github.com/serroba/window-limiter/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRecord(t *testing.T) {
	got := ratelimit.EncodeRecord(ratelimit.WindowRecord{WindowIndex: 28333333, CurrentCount: 7, PreviousCount: 12})

	assert.Equal(t, "28333333:7:12", got)
}

func TestDecodeRecord(t *testing.T) {
	t.Run("decodes canonical value", func(t *testing.T) {
		got, err := ratelimit.DecodeRecord("-1:0:0")

		require.NoError(t, err)
		assert.Equal(t, ratelimit.EmptyRecord(), got)
	})

	tests := []struct {
		name  string
		value string
	}{
		{name: "empty", value: ""},
		{name: "too few fields", value: "1:2"},
		{name: "too many fields", value: "1:2:3:4"},
		{name: "not a number", value: "1:x:3"},
		{name: "negative current count", value: "1:-2:3"},
		{name: "negative previous count", value: "1:2:-3"},
	}

	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := ratelimit.DecodeRecord(tt.value)

			assert.ErrorIs(t, err, ratelimit.ErrCorruptRecord)
		})
	}
}
