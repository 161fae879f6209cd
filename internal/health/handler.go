package health

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/window-limiter/internal/ratelimit"
)

const pingTimeout = 2 * time.Second

// Checker defines the interface for checking service health.
type Checker interface {
	Ping(ctx context.Context) error
}

// NopChecker is always healthy. It stands in for in-process stores.
type NopChecker struct{}

func (NopChecker) Ping(context.Context) error { return nil }

// StatsSource reports how many decisions were taken without the store.
type StatsSource interface {
	Stats() ratelimit.Stats
}

// Handler handles health check operations.
type Handler struct {
	backend string
	store   Checker
	stats   StatsSource
}

// NewHandler creates a new health handler for the named store backend.
func NewHandler(backend string, store Checker, stats StatsSource) *Handler {
	return &Handler{backend: backend, store: store, stats: stats}
}

// Response is the response for health check endpoint.
type Response struct {
	Body struct {
		Status   string `json:"status"`
		Backend  string `json:"backend"`
		Store    string `json:"store"`
		Degraded uint64 `doc:"Decisions taken without the store since start" json:"degraded"`
	}
}

// Check pings the store. The service keeps answering while the store is
// down, so a failed ping reports degraded rather than an error status.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	resp := &Response{}
	resp.Body.Status = "ok"
	resp.Body.Backend = h.backend

	if err := h.store.Ping(ctx); err != nil {
		resp.Body.Store = "unhealthy"
		resp.Body.Status = "degraded"
	} else {
		resp.Body.Store = "healthy"
	}

	if h.stats != nil {
		s := h.stats.Stats()
		resp.Body.Degraded = s.FailOpen + s.FailClosed
	}

	return resp, nil
}

// RegisterRoutes registers health check routes.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Service health",
		Tags:        []string{"Health"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.Check)
}
