package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/serroba/window-limiter/internal/clock"
	"github.com/serroba/window-limiter/internal/ratelimit"
	"github.com/serroba/window-limiter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	decision ratelimit.Decision
	err      error
	keys     []string
	policies []ratelimit.Policy
}

func (s *stubChecker) CheckAndConsume(_ context.Context, key string, policy ratelimit.Policy) (ratelimit.Decision, error) {
	s.keys = append(s.keys, key)
	s.policies = append(s.policies, policy)

	return s.decision, s.err
}

func testPolicies() ratelimit.PolicySet {
	return ratelimit.PolicySet{
		Default: ratelimit.Policy{MaxRequests: 100, WindowSeconds: 60},
		Scopes: map[ratelimit.Scope]ratelimit.Policy{
			ratelimit.ScopeWrite: {MaxRequests: 2, WindowSeconds: 60},
		},
	}
}

func TestPolicySet(t *testing.T) {
	policies := testPolicies()

	assert.Equal(t, ratelimit.Policy{MaxRequests: 2, WindowSeconds: 60}, policies.For(ratelimit.ScopeWrite))
	assert.Equal(t, policies.Default, policies.For(ratelimit.ScopeRead))
	require.NoError(t, policies.Validate())

	policies.Scopes[ratelimit.ScopeRead] = ratelimit.Policy{MaxRequests: 1}
	assert.ErrorIs(t, policies.Validate(), ratelimit.ErrInvalidPolicy)

	_, err := ratelimit.NewPolicyLimiter(&stubChecker{}, policies)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidPolicy)
}

func TestPolicyLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("uses the scope policy and key", func(t *testing.T) {
		checker := &stubChecker{decision: ratelimit.Decision{Allowed: true}}
		limiter, err := ratelimit.NewPolicyLimiter(checker, testPolicies())
		require.NoError(t, err)

		decision, exceeded, err := limiter.Allow(ctx, "client", ratelimit.ScopeWrite)

		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Nil(t, exceeded)
		assert.Equal(t, []string{"client:write:60"}, checker.keys)
		assert.Equal(t, []ratelimit.Policy{{MaxRequests: 2, WindowSeconds: 60}}, checker.policies)
	})

	t.Run("describes the exceeded limit", func(t *testing.T) {
		checker := &stubChecker{decision: ratelimit.Decision{RetryAfter: 5 * time.Second}}
		limiter, _ := ratelimit.NewPolicyLimiter(checker, testPolicies())

		decision, exceeded, err := limiter.Allow(ctx, "client", ratelimit.ScopeRead)

		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		require.NotNil(t, exceeded)
		assert.Equal(t, ratelimit.ScopeRead, exceeded.Scope)
		assert.Equal(t, testPolicies().Default, exceeded.Policy)
		assert.Equal(t, 5*time.Second, exceeded.Decision.RetryAfter)
	})

	t.Run("propagates caller errors", func(t *testing.T) {
		checker := &stubChecker{err: errors.New("boom")}
		limiter, _ := ratelimit.NewPolicyLimiter(checker, testPolicies())

		_, _, err := limiter.Allow(ctx, "client", ratelimit.ScopeRead)

		assert.Error(t, err)
	})

	t.Run("custom limits count separately", func(t *testing.T) {
		checker := &stubChecker{decision: ratelimit.Decision{Allowed: true}}
		limiter, _ := ratelimit.NewPolicyLimiter(checker, testPolicies())
		custom := ratelimit.Policy{MaxRequests: 5, WindowSeconds: 3600}

		_, _, err := limiter.AllowCustom(ctx, "client", "/v1/decisions", custom)

		require.NoError(t, err)
		assert.Equal(t, []string{"client:custom:/v1/decisions:3600"}, checker.keys)
		assert.Equal(t, []ratelimit.Policy{custom}, checker.policies)
	})

	t.Run("enforces scope quotas end to end", func(t *testing.T) {
		clk := clock.NewManual(time.Unix(1_700_000_000, 0))
		inner, err := ratelimit.NewLimiter(store.NewMemoryStore(clk), clk, ratelimit.DefaultConfig(), nopLogger())
		require.NoError(t, err)

		limiter, err := ratelimit.NewPolicyLimiter(inner, testPolicies())
		require.NoError(t, err)

		for range 2 {
			decision, _, _ := limiter.Allow(ctx, "client", ratelimit.ScopeWrite)
			assert.True(t, decision.Allowed)
		}

		decision, exceeded, _ := limiter.Allow(ctx, "client", ratelimit.ScopeWrite)
		assert.False(t, decision.Allowed)
		assert.NotNil(t, exceeded)

		decision, _, _ = limiter.Allow(ctx, "client", ratelimit.ScopeRead)
		assert.True(t, decision.Allowed, "reads have their own counter")
	})
}
