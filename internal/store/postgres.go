package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/window-limiter/internal/clock"
	"github.com/serroba/window-limiter/internal/ratelimit"
)

// Compile-time interface check.
var _ ratelimit.Store = (*PostgresStore)(nil)

// PostgresStore is a PostgreSQL implementation of ratelimit.Store.
// Compare-and-swap is a conditional UPDATE, or an upsert that only replaces
// expired rows when the key is expected to be absent.
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewPostgresStore creates a new PostgreSQL-backed rate limit store.
func NewPostgresStore(pool *pgxpool.Pool, clk clock.Clock) *PostgresStore {
	return &PostgresStore{pool: pool, clock: clk}
}

// EnsureSchema creates the rate_limit_windows table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS rate_limit_windows (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)
	`

	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("postgres store: create table: %w", err)
	}

	return nil
}

func (p *PostgresStore) Read(ctx context.Context, key string) (ratelimit.WindowRecord, bool, error) {
	query := `
		SELECT value
		FROM rate_limit_windows
		WHERE key = $1 AND expires_at > $2
	`

	var value string

	err := p.pool.QueryRow(ctx, query, key, p.clock.Now()).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ratelimit.WindowRecord{}, false, nil
		}

		return ratelimit.WindowRecord{}, false, fmt.Errorf("postgres store: read: %w", err)
	}

	record, err := ratelimit.DecodeRecord(value)
	if err != nil {
		return ratelimit.WindowRecord{}, false, fmt.Errorf("postgres store: read: %w", err)
	}

	return record, true, nil
}

func (p *PostgresStore) CompareAndSwap(
	ctx context.Context, key string, expected *ratelimit.WindowRecord, next ratelimit.WindowRecord, ttl time.Duration,
) (bool, error) {
	now := p.clock.Now()
	expiresAt := now.Add(ttl)
	value := ratelimit.EncodeRecord(next)

	if expected == nil {
		query := `
			INSERT INTO rate_limit_windows (key, value, expires_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
			WHERE rate_limit_windows.expires_at <= $4
		`

		tag, err := p.pool.Exec(ctx, query, key, value, expiresAt, now)
		if err != nil {
			return false, fmt.Errorf("postgres store: insert: %w", err)
		}

		return tag.RowsAffected() == 1, nil
	}

	query := `
		UPDATE rate_limit_windows
		SET value = $3, expires_at = $4
		WHERE key = $1 AND value = $2 AND expires_at > $5
	`

	tag, err := p.pool.Exec(ctx, query, key, ratelimit.EncodeRecord(*expected), value, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("postgres store: update: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (p *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rate_limit_windows WHERE expires_at <= $1`, p.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("postgres store: purge: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Ping checks PostgreSQL connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
