package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/window-limiter/internal/ratelimit"
)

// Compile-time interface check.
var _ ratelimit.Store = (*RedisStore)(nil)

// compareAndSwapScript writes ARGV[2] with a TTL of ARGV[3] seconds when the
// key currently holds ARGV[1], or is absent when ARGV[1] is empty.
// Returns 1 on success, 0 otherwise.
//
// KEYS[1] = record key
// ARGV[1] = expected encoded record, "" for absent
// ARGV[2] = new encoded record
// ARGV[3] = ttl in seconds
var compareAndSwapScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if ARGV[1] == "" then
    if current then
        return 0
    end
elseif current ~= ARGV[1] then
    return 0
end

redis.call("SET", KEYS[1], ARGV[2], "EX", ARGV[3])
return 1
`)

// deleteIfUnchangedScript removes KEYS[1] only while it still holds ARGV[1].
var deleteIfUnchangedScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is a Redis implementation of ratelimit.Store. Each key holds
// the encoded WindowRecord as a plain string with a TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed rate limit store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Read(ctx context.Context, key string) (ratelimit.WindowRecord, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ratelimit.WindowRecord{}, false, nil
		}

		return ratelimit.WindowRecord{}, false, fmt.Errorf("redis store: read: %w", err)
	}

	record, err := ratelimit.DecodeRecord(value)
	if err != nil {
		return r.discard(ctx, key, value, err)
	}

	return record, true, nil
}

// discard drops an undecodable value so that the key reads as absent and
// the next compare-and-swap recreates it. A value that may carry no TTL
// would otherwise fail every read for good.
func (r *RedisStore) discard(
	ctx context.Context, key, value string, decodeErr error,
) (ratelimit.WindowRecord, bool, error) {
	if err := deleteIfUnchangedScript.Run(ctx, r.client, []string{key}, value).Err(); err != nil {
		return ratelimit.WindowRecord{}, false, fmt.Errorf("redis store: discard: %w", errors.Join(decodeErr, err))
	}

	return ratelimit.WindowRecord{}, false, nil
}

func (r *RedisStore) CompareAndSwap(
	ctx context.Context, key string, expected *ratelimit.WindowRecord, next ratelimit.WindowRecord, ttl time.Duration,
) (bool, error) {
	var expectedValue string
	if expected != nil {
		expectedValue = ratelimit.EncodeRecord(*expected)
	}

	swapped, err := compareAndSwapScript.Run(ctx, r.client, []string{key},
		expectedValue,
		ratelimit.EncodeRecord(next),
		ttlSeconds(ttl),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis store: compare-and-swap: %w", err)
	}

	return swapped == 1, nil
}

// Ping checks Redis connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ttlSeconds rounds ttl up to whole seconds, never below one.
func ttlSeconds(ttl time.Duration) int64 {
	return max(1, int64(math.Ceil(ttl.Seconds())))
}
