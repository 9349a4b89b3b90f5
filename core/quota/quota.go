// Package quota tracks per-tenant certificate issuance against the monthly
// billing window using a Redis counter. The window is the calendar month in
// UTC; keys expire after two months so abandoned tenants cost nothing.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veridoc/veridoc/core/tenant"
)

// keyTTL outlives the window it counts so in-flight reads near the month
// boundary never hit an expired key.
const keyTTL = 62 * 24 * time.Hour

// Store is the subset of redis.Cmdable the counter needs; *redis.Client
// satisfies it.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Counter implements the engine's QuotaCounter over Redis.
type Counter struct {
	store Store
	now   func() time.Time
}

// CounterOption configures a Counter.
type CounterOption func(*Counter)

// WithClock overrides the window clock, used in tests.
func WithClock(now func() time.Time) CounterOption {
	return func(c *Counter) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCounter(store Store, opts ...CounterOption) (*Counter, error) {
	if store == nil {
		return nil, errors.New("quota: store cannot be nil")
	}
	c := &Counter{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssuedThisMonth returns the number of certificates issued by the tenant in
// the current billing window. A missing key means zero; any other store
// error is surfaced so quota enforcement fails closed.
func (c *Counter) IssuedThisMonth(ctx context.Context, ns tenant.Namespace) (int64, error) {
	n, err := c.store.Get(ctx, c.key(ns)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota: read counter for %q: %w", ns, err)
	}
	return n, nil
}

// RecordIssued increments the tenant's counter for the current window,
// setting the TTL when the key is created.
func (c *Counter) RecordIssued(ctx context.Context, ns tenant.Namespace) error {
	key := c.key(ns)

	n, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("quota: increment counter for %q: %w", ns, err)
	}
	if n == 1 {
		if err := c.store.Expire(ctx, key, keyTTL).Err(); err != nil {
			return fmt.Errorf("quota: set counter ttl for %q: %w", ns, err)
		}
	}
	return nil
}

func (c *Counter) key(ns tenant.Namespace) string {
	t := c.now().UTC()
	return fmt.Sprintf("quota:%s:%04d-%02d", ns, t.Year(), int(t.Month()))
}
