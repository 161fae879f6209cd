package handlers

import "github.com/serroba/window-limiter/internal/ratelimit"

// DecisionRequest is the request body for a rate limit decision.
type DecisionRequest struct {
	Body struct {
		Key           string `doc:"Caller-chosen identity being limited" example:"user-42" json:"key"           maxLength:"256" minLength:"1"`
		MaxRequests   uint32 `doc:"Requests allowed per window"          example:"10"      json:"maxRequests"   minimum:"1"`
		WindowSeconds uint32 `doc:"Window length in seconds"             example:"60"      json:"windowSeconds" minimum:"1"`
	}
}

// DecisionResponse is the outcome of a rate limit decision.
type DecisionResponse struct {
	RetryAfter string `doc:"Seconds to wait before retrying, set when rejected" header:"Retry-After"`
	Body       struct {
		Admitted          bool   `doc:"Whether the request may proceed"                 json:"admitted"`
		RetryAfterSeconds int64  `doc:"Seconds to wait before retrying"                 json:"retryAfterSeconds,omitempty"`
		Degraded          bool   `doc:"Decided by the failure mode, without the store" json:"degraded,omitempty"`
		Reason            string `doc:"Why the decision was degraded"                   json:"reason,omitempty"`
	}
}

// StatsResponse reports the limiter's counters.
type StatsResponse struct {
	Body ratelimit.Stats
}
