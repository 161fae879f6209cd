package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger removes expired records.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Janitor periodically purges expired records from a store that does not
// expire keys on its own.
type Janitor struct {
	purger   Purger
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewJanitor creates a janitor that purges every interval.
func NewJanitor(purger Purger, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		purger:   purger,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins purging in the background until ctx is cancelled or Shutdown is called.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)

	go j.loop(ctx)
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.purge(ctx)
		}
	}
}

func (j *Janitor) purge(ctx context.Context) {
	purged, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		j.logger.Error("failed to purge expired rate limit records", zap.Error(err))

		return
	}

	if purged > 0 {
		j.logger.Debug("purged expired rate limit records", zap.Int64("count", purged))
	}
}

// Shutdown stops the janitor and waits for an in-flight purge to finish.
func (j *Janitor) Shutdown() error {
	if j.cancel == nil {
		return nil
	}

	j.cancel()
	<-j.done

	return nil
}
