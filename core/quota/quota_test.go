package quota_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/core/quota"
)

// fakeStore is an in-memory stand-in for the Redis counter commands.
type fakeStore struct {
	mu       sync.Mutex
	counters map[string]int64
	ttls     map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		counters: make(map[string]int64),
		ttls:     make(map[string]time.Duration),
	}
}

func (s *fakeStore) Get(ctx context.Context, key string) *redis.StringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := redis.NewStringCmd(ctx)
	n, ok := s.counters[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(strconv.FormatInt(n, 10))
	return cmd
}

func (s *fakeStore) Incr(ctx context.Context, key string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[key]++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(s.counters[key])
	return cmd
}

func (s *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ttls[key] = ttl
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func TestCounter(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }

	t.Run("zero before any issuance", func(t *testing.T) {
		t.Parallel()

		c, err := quota.NewCounter(newFakeStore(), quota.WithClock(clock))
		require.NoError(t, err)

		n, err := c.IssuedThisMonth(context.Background(), "acme")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("record and read back", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		c, err := quota.NewCounter(store, quota.WithClock(clock))
		require.NoError(t, err)

		require.NoError(t, c.RecordIssued(context.Background(), "acme"))
		require.NoError(t, c.RecordIssued(context.Background(), "acme"))

		n, err := c.IssuedThisMonth(context.Background(), "acme")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})

	t.Run("ttl set on first increment only", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		c, err := quota.NewCounter(store, quota.WithClock(clock))
		require.NoError(t, err)

		require.NoError(t, c.RecordIssued(context.Background(), "acme"))
		assert.Len(t, store.ttls, 1)
	})

	t.Run("windows roll over by month", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		current := fixed
		c, err := quota.NewCounter(store, quota.WithClock(func() time.Time { return current }))
		require.NoError(t, err)

		require.NoError(t, c.RecordIssued(context.Background(), "acme"))

		current = fixed.AddDate(0, 1, 0)
		n, err := c.IssuedThisMonth(context.Background(), "acme")
		require.NoError(t, err)
		assert.Zero(t, n, "new billing window starts at zero")
	})

	t.Run("tenants are counted independently", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		c, err := quota.NewCounter(store, quota.WithClock(clock))
		require.NoError(t, err)

		require.NoError(t, c.RecordIssued(context.Background(), "acme"))

		n, err := c.IssuedThisMonth(context.Background(), "globex")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("nil store rejected", func(t *testing.T) {
		t.Parallel()

		_, err := quota.NewCounter(nil)
		assert.Error(t, err)
	})
}
