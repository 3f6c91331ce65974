package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptCounter tracks per-job delivery attempts in redis so counts survive
// worker restarts and the long tail of the backoff ladder. The TTL should
// exceed the last ladder rung.
type AttemptCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAttemptCounter(rdb *redis.Client, ttl time.Duration) *AttemptCounter {
	return &AttemptCounter{rdb: rdb, ttl: ttl}
}

// Next increments the attempt count for key and returns the 0-based attempt
// number of the execution that just failed.
func (a *AttemptCounter) Next(ctx context.Context, key string) (int, error) {
	count, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// Set expiration on first increment.
	if count == 1 {
		a.rdb.Expire(ctx, key, a.ttl)
	}

	return int(count - 1), nil
}

// Reset clears the attempt count after a confirmed send or discard.
func (a *AttemptCounter) Reset(ctx context.Context, key string) error {
	return a.rdb.Del(ctx, key).Err()
}

// FormatAttemptKey formats the redis key for a job's attempt count.
func FormatAttemptKey(queue, jobID string) string {
	return fmt.Sprintf("attempts:%s:%s", queue, jobID)
}
