package redisx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		DialTimeout:  2 * time.Second,
	})
}

// OrderCache is a best-effort cache for the order query path. Redis errors
// are logged and treated as misses.
type OrderCache struct {
	Redis *redis.Client
	Log   *slog.Logger
}

func (c *OrderCache) Get(ctx context.Context, orderID string) ([]byte, bool) {
	b, err := c.Redis.Get(ctx, fmt.Sprintf(KeyOrder, orderID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.Log.WarnContext(ctx, "order cache get", "order_id", orderID, "err", err)
		}
		return nil, false
	}
	return b, true
}

func (c *OrderCache) Set(ctx context.Context, orderID string, body []byte) {
	if err := c.Redis.Set(ctx, fmt.Sprintf(KeyOrder, orderID), body, TTLOrderCache).Err(); err != nil {
		c.Log.WarnContext(ctx, "order cache set", "order_id", orderID, "err", err)
	}
}

func (c *OrderCache) Delete(ctx context.Context, orderID string) {
	if err := c.Redis.Del(ctx, fmt.Sprintf(KeyOrder, orderID)).Err(); err != nil {
		c.Log.WarnContext(ctx, "order cache delete", "order_id", orderID, "err", err)
	}
}

// Dedup remembers relayed events so a redelivered Kafka message is pushed once.
type Dedup struct {
	Redis   *redis.Client
	Service string
}

// FirstSeen reports whether this is the first time the pair is seen. On a
// Redis error it returns true along with the error, so the event is still delivered.
func (d *Dedup) FirstSeen(ctx context.Context, eventID, channel string) (bool, error) {
	key := fmt.Sprintf(KeyDedup, d.Service, eventID, channel)
	ok, err := d.Redis.SetNX(ctx, key, "1", TTLDedup).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}
