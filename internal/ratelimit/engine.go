package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/jitter"
	"github.com/Rican7/retry/strategy"
	"github.com/serroba/window-limiter/internal/clock"
	"go.uber.org/zap"
)

// maxBackoff caps the delay between compare-and-swap attempts.
const maxBackoff = 25 * time.Millisecond

var errLostRace = errors.New("compare-and-swap lost race")

// Evaluation is the result of weighing one request against a record.
type Evaluation struct {
	Allowed bool
	// Estimate is previousCount * (1 - elapsedFraction) + currentCount.
	Estimate float64
	// Next is the record to write back. Only meaningful when Allowed.
	Next WindowRecord
	// RetryAfter is set when the request is rejected.
	RetryAfter time.Duration
}

// Reconcile moves r forward to windowIndex. A record from the window just
// before keeps its current count as the previous count; anything older
// (or the empty record) contributes nothing.
func Reconcile(r WindowRecord, windowIndex int64) WindowRecord {
	switch r.WindowIndex {
	case windowIndex:
		return r
	case windowIndex - 1:
		return WindowRecord{WindowIndex: windowIndex, PreviousCount: r.CurrentCount}
	default:
		return WindowRecord{WindowIndex: windowIndex}
	}
}

// Evaluate applies the sliding-window-counter rule for a request arriving at
// now (unix seconds). The second the request arrives in counts as elapsed,
// so the previous window's weight drops as soon as a new window starts and
// reaches zero in its last second.
func Evaluate(r WindowRecord, now int64, policy Policy) Evaluation {
	w := int64(policy.WindowSeconds)
	n := int64(policy.MaxRequests)
	index := floorDiv(now, w)
	rec := Reconcile(r, index)

	elapsed := now - index*w + 1
	remaining := w - elapsed

	// estimate scaled by w, exact while the products stay under 2^53.
	scaled := float64(rec.PreviousCount)*float64(remaining) + float64(rec.CurrentCount)*float64(w)
	eval := Evaluation{Estimate: scaled / float64(w)}

	if scaled >= float64(n)*float64(w) {
		eval.RetryAfter = retryAfter(rec.PreviousCount, scaled, n, w, now-index*w)

		return eval
	}

	eval.Allowed = true
	eval.Next = WindowRecord{
		WindowIndex:   index,
		CurrentCount:  rec.CurrentCount + 1,
		PreviousCount: rec.PreviousCount,
	}

	return eval
}

// retryAfter is ceil(w * (estimate - n + 1) / previous) when the previous
// window still weighs in, otherwise the time left in the current window.
func retryAfter(previous int64, scaled float64, n, w, offset int64) time.Duration {
	if previous == 0 {
		return time.Duration(w-offset) * time.Second
	}

	seconds := math.Ceil((scaled - float64(w)*float64(n-1)) / float64(previous))

	return time.Duration(seconds) * time.Second
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}

	return q
}

// Engine runs the read, decide, compare-and-swap cycle against a Store.
type Engine struct {
	store        Store
	clock        clock.Clock
	storeTimeout time.Duration
	maxAttempts  uint
	backoff      time.Duration
	logger       *zap.Logger
}

// NewEngine creates an engine. cfg is assumed valid.
func NewEngine(store Store, clk clock.Clock, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		store:        store,
		clock:        clk,
		storeTimeout: cfg.StoreTimeout,
		maxAttempts:  uint(cfg.MaxRetries),
		backoff:      cfg.Backoff,
		logger:       logger,
	}
}

// Consume decides one request for key and, when admitted, persists the
// incremented record. Lost races are retried from a fresh read with jittered
// exponential backoff; running out of attempts yields ErrStoreConflict.
// Store failures, including timeouts, yield ErrStoreUnavailable.
func (e *Engine) Consume(ctx context.Context, key string, policy Policy) (Evaluation, error) {
	var (
		result   Evaluation
		storeErr error
	)

	action := func(attempt uint) error {
		eval, done, err := e.attempt(ctx, key, policy)
		if err != nil {
			storeErr = err

			return err
		}

		if !done {
			e.logger.Debug("rate limit record changed concurrently, retrying",
				zap.String("key", key),
				zap.Uint("attempt", attempt),
			)

			return errLostRace
		}

		result = eval

		return nil
	}

	err := retry.Retry(action, e.strategies(ctx, &storeErr)...)

	switch {
	case storeErr != nil:
		return Evaluation{}, storeErr
	case err != nil && ctx.Err() != nil:
		return Evaluation{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, ctx.Err())
	case err != nil:
		return Evaluation{}, fmt.Errorf("%w: %d attempts", ErrStoreConflict, e.maxAttempts)
	}

	return result, nil
}

// strategies stops on store errors and cancellation. Jittered backoff is
// only added for a positive base: jitter of a zero delay is undefined.
func (e *Engine) strategies(ctx context.Context, storeErr *error) []strategy.Strategy {
	strategies := []strategy.Strategy{
		strategy.Limit(e.maxAttempts),
		func(uint) bool { return *storeErr == nil && ctx.Err() == nil },
	}

	if e.backoff <= 0 {
		return strategies
	}

	exponential := backoff.BinaryExponential(e.backoff)
	capped := func(attempt uint) time.Duration {
		return max(min(exponential(attempt), maxBackoff), time.Nanosecond)
	}

	return append(strategies, strategy.BackoffWithJitter(capped, jitter.Deviation(nil, 0.5)))
}

// attempt performs one read-decide-write pass. done is false only when the
// compare-and-swap lost to a concurrent writer.
func (e *Engine) attempt(ctx context.Context, key string, policy Policy) (Evaluation, bool, error) {
	now := e.clock.Now().Unix()

	record, found, err := e.read(ctx, key)
	if err != nil {
		return Evaluation{}, false, err
	}

	if !found {
		record = EmptyRecord()
	}

	eval := Evaluate(record, now, policy)
	if !eval.Allowed {
		return eval, true, nil
	}

	var expected *WindowRecord
	if found {
		expected = &record
	}

	swapped, err := e.compareAndSwap(ctx, key, expected, eval.Next, policy.TTL())
	if err != nil {
		return Evaluation{}, false, err
	}

	return eval, swapped, nil
}

func (e *Engine) read(ctx context.Context, key string) (WindowRecord, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	record, found, err := e.store.Read(callCtx, key)
	if err != nil {
		return WindowRecord{}, false, unavailable("read", err)
	}

	return record, found, nil
}

func (e *Engine) compareAndSwap(
	ctx context.Context, key string, expected *WindowRecord, next WindowRecord, ttl time.Duration,
) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	swapped, err := e.store.CompareAndSwap(callCtx, key, expected, next, ttl)
	if err != nil {
		return false, unavailable("compare-and-swap", err)
	}

	return swapped, nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
