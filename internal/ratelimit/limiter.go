package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/serroba/window-limiter/internal/clock"
	"go.uber.org/zap"
)

// fallbackRetryAfter is the hint given when fail-closed rejects a request.
const fallbackRetryAfter = time.Second

// Checker decides whether a request for key may proceed under policy.
type Checker interface {
	CheckAndConsume(ctx context.Context, key string, policy Policy) (Decision, error)
}

// Degradation describes a decision made without the store.
type Degradation struct {
	Key    string
	Policy Policy
	// Reason is ErrStoreUnavailable or ErrStoreConflict.
	Reason error
	Mode   FailureMode
	Err    error
	At     time.Time
}

// DegradationObserver is told about every degraded decision.
// Implementations must not block.
type DegradationObserver interface {
	OnDegraded(ctx context.Context, d Degradation)
}

// Stats is a snapshot of a Limiter's counters.
type Stats struct {
	Admitted         uint64 `json:"admitted"`
	Rejected         uint64 `json:"rejected"`
	StoreUnavailable uint64 `json:"storeUnavailable"`
	StoreConflict    uint64 `json:"storeConflict"`
	FailOpen         uint64 `json:"failOpen"`
	FailClosed       uint64 `json:"failClosed"`
}

type counters struct {
	admitted         atomic.Uint64
	rejected         atomic.Uint64
	storeUnavailable atomic.Uint64
	storeConflict    atomic.Uint64
	failOpen         atomic.Uint64
	failClosed       atomic.Uint64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithObserver registers an observer for degraded decisions.
func WithObserver(observer DegradationObserver) Option {
	return func(l *Limiter) {
		l.observer = observer
	}
}

// Limiter is the entry point callers use: it validates input, runs the
// engine, and turns store trouble into the configured fallback decision.
type Limiter struct {
	engine   *Engine
	clock    clock.Clock
	cfg      Config
	observer DegradationObserver
	logger   *zap.Logger
	stats    counters
}

// NewLimiter creates a limiter over store. It fails when cfg is invalid.
func NewLimiter(store Store, clk clock.Clock, cfg Config, logger *zap.Logger, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		engine: NewEngine(store, clk, cfg, logger),
		clock:  clk,
		cfg:    cfg,
		logger: logger,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// CheckAndConsume decides a request for key under policy. Admitted requests
// are counted in the store before returning. An error is returned only for
// an invalid key or policy; store failures resolve to the fallback decision.
func (l *Limiter) CheckAndConsume(ctx context.Context, key string, policy Policy) (Decision, error) {
	if err := policy.Validate(); err != nil {
		return Decision{}, err
	}

	if err := ValidateKey(key); err != nil {
		return Decision{}, err
	}

	eval, err := l.engine.Consume(ctx, l.cfg.KeyPrefix+key, policy)
	if err != nil {
		return l.degrade(ctx, key, policy, err), nil
	}

	if !eval.Allowed {
		l.stats.rejected.Add(1)

		return Decision{RetryAfter: eval.RetryAfter}, nil
	}

	l.stats.admitted.Add(1)

	return Decision{Allowed: true}, nil
}

func (l *Limiter) degrade(ctx context.Context, key string, policy Policy, err error) Decision {
	reason := ErrStoreUnavailable
	if errors.Is(err, ErrStoreConflict) {
		reason = ErrStoreConflict
		l.stats.storeConflict.Add(1)
	} else {
		l.stats.storeUnavailable.Add(1)
	}

	decision := Decision{Degraded: true, Cause: reason}

	if l.cfg.OnStoreError == FailOpen {
		decision.Allowed = true

		l.stats.failOpen.Add(1)
	} else {
		decision.RetryAfter = fallbackRetryAfter

		l.stats.failClosed.Add(1)
	}

	l.logger.Warn("rate limit decided without store",
		zap.String("key", key),
		zap.Stringer("policy", policy),
		zap.String("reason", reason.Error()),
		zap.String("fallback", string(l.cfg.OnStoreError)),
		zap.Error(err),
	)

	if l.observer != nil {
		l.observer.OnDegraded(ctx, Degradation{
			Key:    key,
			Policy: policy,
			Reason: reason,
			Mode:   l.cfg.OnStoreError,
			Err:    err,
			At:     l.clock.Now(),
		})
	}

	return decision
}

// Stats returns a snapshot of the limiter's counters.
func (l *Limiter) Stats() Stats {
	return Stats{
		Admitted:         l.stats.admitted.Load(),
		Rejected:         l.stats.rejected.Load(),
		StoreUnavailable: l.stats.storeUnavailable.Load(),
		StoreConflict:    l.stats.storeConflict.Load(),
		FailOpen:         l.stats.failOpen.Load(),
		FailClosed:       l.stats.failClosed.Load(),
	}
}

// Config returns the configuration the limiter was built with.
func (l *Limiter) Config() Config {
	return l.cfg
}
