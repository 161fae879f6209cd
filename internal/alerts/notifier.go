package alerts

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/serroba/window-limiter/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Compile-time interface check.
var _ ratelimit.DegradationObserver = (*Notifier)(nil)

// Notifier turns degraded decisions into published events. A store outage
// degrades every request, so events are throttled and queued; OnDegraded
// never waits on the broker.
type Notifier struct {
	publish  Publish
	instance string
	limiter  *rate.Limiter
	queue    chan *DegradedEvent
	logger   *zap.Logger
	dropped  atomic.Uint64
	// mu guards queue against a close while OnDegraded is sending.
	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
}

// NewNotifier creates a notifier allowing events at limit per second with
// the given burst. Events beyond that, or beyond a full queue, are dropped.
func NewNotifier(publish Publish, instance string, limit rate.Limit, burst int, logger *zap.Logger) *Notifier {
	n := &Notifier{
		publish:  publish,
		instance: instance,
		limiter:  rate.NewLimiter(limit, burst),
		queue:    make(chan *DegradedEvent, max(burst, 1)),
		logger:   logger,
		done:     make(chan struct{}),
	}

	go n.loop()

	return n
}

func (n *Notifier) OnDegraded(_ context.Context, d ratelimit.Degradation) {
	if !n.limiter.Allow() {
		n.dropped.Add(1)

		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.dropped.Add(1)

		return
	}

	select {
	case n.queue <- NewDegradedEvent(n.instance, d):
	default:
		n.dropped.Add(1)
	}
}

func (n *Notifier) loop() {
	defer close(n.done)

	for event := range n.queue {
		if err := n.publish(event); err != nil {
			n.logger.Error("failed to publish degradation event",
				zap.String("key", event.Key),
				zap.String("reason", event.Reason),
				zap.Error(err),
			)
		}
	}
}

// Dropped returns how many events were throttled or did not fit the queue.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Shutdown publishes queued events and stops the notifier. Later
// degradations are counted as dropped.
func (n *Notifier) Shutdown() error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	<-n.done

	return nil
}
