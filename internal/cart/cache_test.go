package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	_, err := cache.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	lines := []CachedLine{
		{ID: "l1", ProductID: "p1", Quantity: 2},
		{ID: "l2", ProductID: "p2", Quantity: 1},
	}
	require.NoError(t, cache.Set(ctx, "u1", lines))

	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, lines, got)

	require.NoError(t, cache.Delete(ctx, "u1"))
	_, err = cache.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheEntriesExpire(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	require.NoError(t, cache.Set(ctx, "u1", []CachedLine{{ID: "l1", ProductID: "p1", Quantity: 1}}))

	// past the base TTL plus maximum jitter
	mr.FastForward(21 * time.Minute)

	_, err := cache.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
