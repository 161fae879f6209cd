package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/window-limiter/internal/ratelimit"
	"go.uber.org/zap"
)

// RateLimiter returns a Huma middleware that applies policy-based rate
// limiting keyed by client IP and User-Agent. The ScopeResolver picks the
// scope whose policy applies to each request.
//
// Per-endpoint configuration can be provided via operation metadata using
// ratelimit.MetadataKey. This allows endpoints to:
//   - Disable rate limiting entirely (Disabled: true)
//   - Override the scope detection (Scope: ratelimit.ScopeRead)
//   - Replace the scope's policy (Policy: &ratelimit.Policy{...})
func RateLimiter(
	api huma.API,
	limiter *ratelimit.PolicyLimiter,
	resolver ratelimit.ScopeResolver,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		path := getOperationPath(ctx)
		cfg := ratelimit.GetEndpointConfig(ctx)

		if cfg != nil && cfg.Disabled {
			logger.Debug("rate limiting disabled for endpoint",
				zap.String("path", path), zap.String("method", ctx.Method()))
			next(ctx)

			return
		}

		var (
			decision ratelimit.Decision
			exceeded *ratelimit.LimitExceeded
			err      error
		)

		key := clientKey(ctx)

		// The route template, not the request path, namespaces custom
		// policies, so every request matching the route shares a counter.
		if cfg != nil && cfg.Policy != nil {
			decision, exceeded, err = limiter.AllowCustom(ctx.Context(), key, path, *cfg.Policy)
		} else {
			decision, exceeded, err = limiter.Allow(ctx.Context(), key, resolver.Resolve(ctx))
		}

		if err != nil {
			logger.Error("rate limit check failed", zap.String("path", path), zap.Error(err))
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

			return
		}

		if exceeded != nil {
			handleRateLimitExceeded(api, ctx, exceeded, path, logger)

			return
		}

		if decision.Degraded {
			ctx.SetHeader("X-RateLimit-Degraded", "true")
		}

		next(ctx)
	}
}

// getOperationPath extracts the path from the operation, if available.
func getOperationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ""
}

// handleRateLimitExceeded logs and responds to a rejected request.
func handleRateLimitExceeded(
	api huma.API,
	ctx huma.Context,
	exceeded *ratelimit.LimitExceeded,
	path string,
	logger *zap.Logger,
) {
	retryAfter := exceeded.Decision.RetryAfterSeconds()

	msg := fmt.Sprintf("rate limit exceeded: %s scope, %d requests per %ds",
		exceeded.Scope, exceeded.Policy.MaxRequests, exceeded.Policy.WindowSeconds)
	if exceeded.Decision.Degraded {
		msg = "rate limit unavailable, try again later"
	}

	logger.Warn("rate limit exceeded",
		zap.String("path", path),
		zap.String("method", ctx.Method()),
		zap.String("scope", string(exceeded.Scope)),
		zap.Stringer("policy", exceeded.Policy),
		zap.Int64("retry_after", retryAfter),
		zap.Bool("degraded", exceeded.Decision.Degraded),
		zap.String("client_ip", clientIP(ctx)),
	)

	ctx.SetHeader("Retry-After", strconv.FormatInt(retryAfter, 10))
	_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, msg)
}

// clientKey generates a unique key for rate limiting based on IP and User-Agent.
func clientKey(ctx huma.Context) string {
	ip := clientIP(ctx)
	ua := ctx.Header("User-Agent")

	hash := sha256.Sum256([]byte(ip + "|" + ua))

	return hex.EncodeToString(hash[:])
}

// clientIP extracts the client IP from the request, considering proxies.
func clientIP(ctx huma.Context) string {
	// X-Forwarded-For may carry a chain; the first entry is the client.
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}

		return strings.TrimSpace(xff)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	host := ctx.RemoteAddr()
	if host == "" {
		host = ctx.Host()
	}

	ip, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}

	return ip
}
