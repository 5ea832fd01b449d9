package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuoteCache remembers when an alert last fired for a fiat pair.
type QuoteCache interface {
	LastAlert(ctx context.Context, pair string) (time.Time, bool, error)
	MarkAlert(ctx context.Context, pair string, at time.Time) error
	Close() error
}

type redisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisQuoteCache connects to Redis. Entries expire after ttl, which doubles as the alert cooldown.
func NewRedisQuoteCache(addr, password string, db int, ttl time.Duration, prefix string) (QuoteCache, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if prefix == "" {
		prefix = "p2pwatch"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisQuoteCache{client: client, ttl: ttl, prefix: prefix}, nil
}

func (c *redisQuoteCache) key(pair string) string {
	return fmt.Sprintf("%s:last_alert:%s", c.prefix, pair)
}

func (c *redisQuoteCache) LastAlert(ctx context.Context, pair string) (time.Time, bool, error) {
	if c == nil || c.client == nil {
		return time.Time{}, false, nil
	}
	val, err := c.client.Get(ctx, c.key(pair)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	micros, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode cached alert time: %w", err)
	}
	return time.UnixMicro(micros).UTC(), true, nil
}

func (c *redisQuoteCache) MarkAlert(ctx context.Context, pair string, at time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, c.key(pair), strconv.FormatInt(at.UTC().UnixMicro(), 10), c.ttl).Err()
}

func (c *redisQuoteCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// PairKey names a leg pair.
func PairKey(acquireFiat, disposeFiat string) string {
	return acquireFiat + "_" + disposeFiat
}
