package alerts_test

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/serroba/window-limiter/internal/alerts"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := alerts.NewZapLogger(zap.New(core))

	logger.Info("info", watermill.LogFields{"topic": "t"})
	logger.Debug("debug", nil)
	logger.Trace("trace", nil)
	logger.With(watermill.LogFields{"consumer": "c"}).Error("error", errors.New("boom"), nil)

	entries := logs.AllUntimed()
	assert.Len(t, entries, 4)
	assert.Equal(t, "t", entries[0].ContextMap()["topic"])
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
	assert.Equal(t, "c", entries[3].ContextMap()["consumer"])
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}
