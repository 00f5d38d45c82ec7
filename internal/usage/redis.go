package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const counterTTL = 48 * time.Hour

// RedisCounter keeps per-day run counters keyed by outcome.
type RedisCounter struct {
	client redis.Cmdable
	prefix string
}

func NewRedisCounter(client redis.Cmdable, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "readaloud:usage"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) Key(day time.Time, outcome string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, day.UTC().Format("2006-01-02"), outcome)
}

func (c *RedisCounter) Record(ctx context.Context, e Event) error {
	at := e.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	key := c.Key(at, e.Outcome)

	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment %s: %w", key, err)
	}
	return nil
}
