package alerts

import (
	"time"

	"github.com/google/uuid"
	"github.com/serroba/window-limiter/internal/ratelimit"
)

// TopicDegraded carries decisions taken without the shared store.
const TopicDegraded = "ratelimit.degraded"

// DegradedEvent is published when a limiter falls back to its failure mode.
type DegradedEvent struct {
	ID            string    `json:"id"`
	Instance      string    `json:"instance"`
	Key           string    `json:"key"`
	MaxRequests   uint32    `json:"maxRequests"`
	WindowSeconds uint32    `json:"windowSeconds"`
	Reason        string    `json:"reason"`
	FailureMode   string    `json:"failureMode"`
	Error         string    `json:"error,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// NewDegradedEvent builds the event for d as seen by instance.
func NewDegradedEvent(instance string, d ratelimit.Degradation) *DegradedEvent {
	event := &DegradedEvent{
		ID:            uuid.NewString(),
		Instance:      instance,
		Key:           d.Key,
		MaxRequests:   d.Policy.MaxRequests,
		WindowSeconds: d.Policy.WindowSeconds,
		FailureMode:   string(d.Mode),
		OccurredAt:    d.At,
	}

	if d.Reason != nil {
		event.Reason = d.Reason.Error()
	}

	if d.Err != nil {
		event.Error = d.Err.Error()
	}

	return event
}
