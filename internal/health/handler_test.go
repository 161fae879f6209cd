package health_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/window-limiter/internal/health"
	"github.com/serroba/window-limiter/internal/ratelimit"
	"github.com/serroba/window-limiter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	err error
}

func (m *mockChecker) Ping(_ context.Context) error {
	return m.err
}

type stubStats ratelimit.Stats

func (s stubStats) Stats() ratelimit.Stats {
	return ratelimit.Stats(s)
}

func TestHandler_Check(t *testing.T) {
	t.Run("returns ok when store is healthy", func(t *testing.T) {
		handler := health.NewHandler("redis", &mockChecker{}, nil)

		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Body.Status)
		assert.Equal(t, "healthy", resp.Body.Store)
		assert.Equal(t, "redis", resp.Body.Backend)
	})

	t.Run("returns degraded when store is unhealthy", func(t *testing.T) {
		handler := health.NewHandler("postgres", &mockChecker{err: errors.New("connection refused")}, nil)

		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, "degraded", resp.Body.Status)
		assert.Equal(t, "unhealthy", resp.Body.Store)
	})

	t.Run("reports degraded decisions", func(t *testing.T) {
		handler := health.NewHandler("memory", health.NopChecker{}, stubStats{FailOpen: 3, FailClosed: 2})

		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Body.Status)
		assert.Equal(t, uint64(5), resp.Body.Degraded)
	})
}

func TestHandler_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, api := humatest.New(t)
	health.RegisterRoutes(api, health.NewHandler("redis", store.NewRedisStore(client), nil))

	resp := api.Get("/health")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ok"`)

	mr.Close()

	resp = api.Get("/health")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"degraded"`)
}
