package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/serroba/window-limiter/internal/clock"
	"github.com/serroba/window-limiter/internal/ratelimit"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Compile-time interface check.
var _ ratelimit.Store = (*SQLiteStore)(nil)

// SQLiteStore is a persistent ratelimit.Store backed by SQLite. It suits a
// single host; processes on other hosts cannot share it.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSQLiteStore opens (or creates) a SQLite database at dsn and initialises
// the schema. Use ":memory:" for an in-memory database.
func NewSQLiteStore(dsn string, clk clock.Clock) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}

	// One connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()

		return nil, fmt.Errorf("sqlite store: busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limit_windows (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()

		return nil, fmt.Errorf("sqlite store: create table: %w", err)
	}

	return &SQLiteStore{db: db, clock: clk}, nil
}

func (s *SQLiteStore) Read(ctx context.Context, key string) (ratelimit.WindowRecord, bool, error) {
	var value string

	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM rate_limit_windows WHERE key = ? AND expires_at > ?`,
		key, s.clock.Now().UnixMilli(),
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ratelimit.WindowRecord{}, false, nil
		}

		return ratelimit.WindowRecord{}, false, fmt.Errorf("sqlite store: read: %w", err)
	}

	record, err := ratelimit.DecodeRecord(value)
	if err != nil {
		return ratelimit.WindowRecord{}, false, fmt.Errorf("sqlite store: read: %w", err)
	}

	return record, true, nil
}

func (s *SQLiteStore) CompareAndSwap(
	ctx context.Context, key string, expected *ratelimit.WindowRecord, next ratelimit.WindowRecord, ttl time.Duration,
) (bool, error) {
	now := s.clock.Now()
	expiresAt := now.Add(ttl).UnixMilli()
	value := ratelimit.EncodeRecord(next)

	var (
		res sql.Result
		err error
	)

	if expected == nil {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO rate_limit_windows (key, value, expires_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE
			SET value = excluded.value, expires_at = excluded.expires_at
			WHERE rate_limit_windows.expires_at <= ?
		`, key, value, expiresAt, now.UnixMilli())
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE rate_limit_windows
			SET value = ?, expires_at = ?
			WHERE key = ? AND value = ? AND expires_at > ?
		`, value, expiresAt, key, ratelimit.EncodeRecord(*expected), now.UnixMilli())
	}

	if err != nil {
		return false, fmt.Errorf("sqlite store: compare-and-swap: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite store: rows affected: %w", err)
	}

	return n == 1, nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_windows WHERE expires_at <= ?`, s.clock.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite store: purge: %w", err)
	}

	return res.RowsAffected()
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Shutdown closes the underlying database.
func (s *SQLiteStore) Shutdown() error {
	return s.db.Close()
}
