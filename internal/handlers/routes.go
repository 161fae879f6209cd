package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/window-limiter/internal/ratelimit"
)

// RegisterRoutes registers the decision service routes.
func RegisterRoutes(api huma.API, h *DecisionHandler) {
	// Decisions are the service's hot path. They get their own budget so
	// that heavy callers are not throttled by the write scope shared with
	// other endpoints.
	huma.Register(api, huma.Operation{
		OperationID: "decide",
		Method:      http.MethodPost,
		Path:        "/v1/decisions",
		Summary:     "Decide a request",
		Description: "Checks a request against a sliding-window policy and counts it when admitted.",
		Tags:        []string{"Decisions"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Policy: &ratelimit.Policy{MaxRequests: 6000, WindowSeconds: 60},
			},
		},
	}, h.Decide)

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/v1/stats",
		Summary:     "Limiter counters",
		Description: "Reports how many decisions were admitted, rejected or degraded since start.",
		Tags:        []string{"Decisions"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: ratelimit.ScopeRead},
		},
	}, h.Stats)
}
