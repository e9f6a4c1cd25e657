package store

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisGetSetDelete(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	_, ok, err := r.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.SetEx(ctx, "k", []byte("v"), time.Hour))
	v, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	n, err := r.Delete(ctx, "k", "missing")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestRedisTTLExpiry(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	require.NoError(t, r.SetEx(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCounters(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	n, err := r.Incr(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, r.Expire(ctx, "c", 90*time.Second))

	n, err = r.Incr(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	mr.FastForward(2 * time.Minute)
	n, err = r.Incr(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestRedisHashAndScan(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	require.NoError(t, r.HSet(ctx, "meta:ns:1", map[string]string{"cachedAt": "123", "ttlMs": "1000"}))
	n, err := r.HIncrBy(ctx, "meta:ns:1", "accessCount", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	fields, err := r.HGetAll(ctx, "meta:ns:1")
	require.NoError(t, err)
	require.Equal(t, "123", fields["cachedAt"])

	require.NoError(t, r.SetEx(ctx, "entry:ns:1", []byte("a"), 0))
	require.NoError(t, r.SetEx(ctx, "entry:other:1", []byte("b"), 0))

	keys, err := r.Scan(ctx, "entry:ns:*")
	require.NoError(t, err)
	sort.Strings(keys)
	require.Equal(t, []string{"entry:ns:1"}, keys)
}
