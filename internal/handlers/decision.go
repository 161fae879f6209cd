package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/window-limiter/internal/ratelimit"
	"go.uber.org/zap"
)

// Limiter decides requests and reports what it has decided so far.
type Limiter interface {
	ratelimit.Checker
	Stats() ratelimit.Stats
}

// DecisionHandler exposes a Limiter over HTTP.
type DecisionHandler struct {
	limiter Limiter
	logger  *zap.Logger
}

// NewDecisionHandler creates a new decision handler.
func NewDecisionHandler(limiter Limiter, logger *zap.Logger) *DecisionHandler {
	return &DecisionHandler{limiter: limiter, logger: logger}
}

func (h *DecisionHandler) Decide(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error) {
	policy := ratelimit.Policy{
		MaxRequests:   req.Body.MaxRequests,
		WindowSeconds: req.Body.WindowSeconds,
	}

	decision, err := h.limiter.CheckAndConsume(ctx, req.Body.Key, policy)
	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidPolicy) || errors.Is(err, ratelimit.ErrInvalidKey) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		h.logger.Error("rate limit decision failed", zap.String("key", req.Body.Key), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to decide")
	}

	resp := &DecisionResponse{}
	resp.Body.Admitted = decision.Allowed
	resp.Body.Degraded = decision.Degraded

	if decision.Cause != nil {
		resp.Body.Reason = decision.Cause.Error()
	}

	if !decision.Allowed {
		seconds := decision.RetryAfterSeconds()
		resp.Body.RetryAfterSeconds = seconds
		resp.RetryAfter = strconv.FormatInt(seconds, 10)
	}

	return resp, nil
}

func (h *DecisionHandler) Stats(_ context.Context, _ *struct{}) (*StatsResponse, error) {
	return &StatsResponse{Body: h.limiter.Stats()}, nil
}
