package container

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/window-limiter/internal/clock"
	"github.com/serroba/window-limiter/internal/health"
	"github.com/serroba/window-limiter/internal/ratelimit"
	"github.com/serroba/window-limiter/internal/store"
	"go.uber.org/zap"
)

// RedisConn owns the shared Redis client.
type RedisConn struct {
	Client *redis.Client
}

func (c *RedisConn) Shutdown() error {
	return c.Client.Close()
}

// PostgresPool owns the PostgreSQL connection pool.
type PostgresPool struct {
	Pool *pgxpool.Pool
}

func (p *PostgresPool) Shutdown() error {
	p.Pool.Close()

	return nil
}

// StoreBackend is the configured store with what the rest of the process
// needs to know about it. Purger is nil for stores that expire keys on
// their own.
type StoreBackend struct {
	Name    string
	Store   ratelimit.Store
	Checker health.Checker
	Purger  store.Purger
}

// Shutdown releases stores that own their connection, such as SQLite.
// Shared clients are shut down by their own packages.
func (b *StoreBackend) Shutdown() error {
	if s, ok := b.Store.(do.Shutdownable); ok {
		return s.Shutdown()
	}

	return nil
}

func ClockPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (clock.Clock, error) {
		return clock.NewSystem(), nil
	})
}

func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*RedisConn, error) {
		opts := do.MustInvoke[*Options](i)

		return &RedisConn{Client: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

func PostgresPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*PostgresPool, error) {
		opts := do.MustInvoke[*Options](i)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		return &PostgresPool{Pool: pool}, nil
	})
}

func StorePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*StoreBackend, error) {
		opts := do.MustInvoke[*Options](i)
		clk := do.MustInvoke[clock.Clock](i)

		switch opts.Store {
		case "memory":
			s := store.NewMemoryStore(clk)

			return &StoreBackend{Name: opts.Store, Store: s, Checker: health.NopChecker{}, Purger: s}, nil
		case "redis":
			s := store.NewRedisStore(do.MustInvoke[*RedisConn](i).Client)

			return &StoreBackend{Name: opts.Store, Store: s, Checker: s}, nil
		case "postgres":
			s := store.NewPostgresStore(do.MustInvoke[*PostgresPool](i).Pool, clk)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := s.EnsureSchema(ctx); err != nil {
				return nil, err
			}

			return &StoreBackend{Name: opts.Store, Store: s, Checker: s, Purger: s}, nil
		case "sqlite":
			s, err := store.NewSQLiteStore(opts.SQLitePath, clk)
			if err != nil {
				return nil, err
			}

			return &StoreBackend{Name: opts.Store, Store: s, Checker: s, Purger: s}, nil
		default:
			return nil, fmt.Errorf("unknown store backend %q", opts.Store)
		}
	})
}

func JanitorPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*store.Janitor, error) {
		opts := do.MustInvoke[*Options](i)
		backend := do.MustInvoke[*StoreBackend](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if backend.Purger == nil {
			return nil, fmt.Errorf("%s store expires keys itself", backend.Name)
		}

		if opts.JanitorIntervalSec <= 0 {
			return nil, fmt.Errorf("janitor interval must be positive, got %ds", opts.JanitorIntervalSec)
		}

		return store.NewJanitor(backend.Purger, time.Duration(opts.JanitorIntervalSec)*time.Second, logger), nil
	})
}
