package ratelimit

import "github.com/danielgtaylor/huma/v2"

// Scope categorizes a request so that it can be given its own policy.
type Scope string

const (
	// ScopeRead applies to read operations (GET, HEAD, OPTIONS).
	ScopeRead Scope = "read"
	// ScopeWrite applies to write operations (POST, PUT, PATCH, DELETE).
	ScopeWrite Scope = "write"
)

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// EndpointConfig defines per-endpoint rate limit configuration.
// This can be attached to Huma operations via the Metadata field.
type EndpointConfig struct {
	// Scope overrides method-based scope detection. It selects which policy
	// of the PolicySet applies and namespaces the counter.
	Scope Scope

	// Policy replaces the scope's policy for this endpoint only. Requests to
	// the endpoint are counted separately from the rest of the scope.
	Policy *Policy

	// Disabled skips rate limiting entirely for this endpoint.
	Disabled bool
}

// ScopeResolver determines which scope applies to a given request.
type ScopeResolver interface {
	Resolve(ctx huma.Context) Scope
}

// MethodScopeResolver resolves the scope from the HTTP method.
// GET, HEAD and OPTIONS are reads, everything else is a write.
type MethodScopeResolver struct{}

// NewMethodScopeResolver creates a new method-based scope resolver.
func NewMethodScopeResolver() *MethodScopeResolver {
	return &MethodScopeResolver{}
}

func (r *MethodScopeResolver) Resolve(ctx huma.Context) Scope {
	switch ctx.Method() {
	case "GET", "HEAD", "OPTIONS":
		return ScopeRead
	default:
		return ScopeWrite
	}
}

// OperationScopeResolver prefers the scope in operation metadata and falls
// back to method-based detection.
type OperationScopeResolver struct {
	fallback *MethodScopeResolver
}

// NewOperationScopeResolver creates a new operation-aware scope resolver.
func NewOperationScopeResolver() *OperationScopeResolver {
	return &OperationScopeResolver{
		fallback: NewMethodScopeResolver(),
	}
}

func (r *OperationScopeResolver) Resolve(ctx huma.Context) Scope {
	if cfg := GetEndpointConfig(ctx); cfg != nil && cfg.Scope != "" {
		return cfg.Scope
	}

	return r.fallback.Resolve(ctx)
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}
