package middleware

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"
)

// AccessLog is a middleware that logs every request once it has been served.
func AccessLog(logger *zap.Logger) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()

		next(ctx)

		logger.Info("request served",
			zap.String("method", ctx.Method()),
			zap.String("path", getOperationPath(ctx)),
			zap.Int("status", ctx.Status()),
			zap.String("client_ip", clientIP(ctx)),
			zap.String("user_agent", ctx.Header("User-Agent")),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
