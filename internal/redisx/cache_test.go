package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*JSONCache, *redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewJSONCache(client), client, mr
}

type doc struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestJSONCache_SetGet(t *testing.T) {
	cache, _, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "order:1", doc{ID: 1, Name: "first"}, time.Minute))
	assert.True(t, mr.Exists("order:1"))

	var got doc
	require.NoError(t, cache.Get(ctx, "order:1", &got))
	assert.Equal(t, doc{ID: 1, Name: "first"}, got)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, cache.Get(ctx, "order:1", &got), ErrCacheMiss)
}

func TestJSONCache_Miss(t *testing.T) {
	cache, _, _ := setupTestRedis(t)
	var got doc
	assert.ErrorIs(t, cache.Get(context.Background(), "nope", &got), ErrCacheMiss)
}

func TestJSONCache_InvalidJSON(t *testing.T) {
	cache, _, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("order:2", "{not json"))

	var got doc
	err := cache.Get(context.Background(), "order:2", &got)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestJSONCache_Delete(t *testing.T) {
	cache, _, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "a", doc{ID: 1}, time.Minute))
	require.NoError(t, cache.Set(ctx, "b", doc{ID: 2}, time.Minute))

	require.NoError(t, cache.Delete(ctx, "a", "b", "c"))
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
	assert.NoError(t, cache.Delete(ctx))
}

func TestJSONCache_DeleteBumpsVersion(t *testing.T) {
	cache, _, mr := setupTestRedis(t)
	ctx := context.Background()

	v, err := cache.Version(ctx, "order:1")
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, cache.Delete(ctx, "order:1"))
	require.NoError(t, cache.Delete(ctx, "order:1"))
	v, err = cache.Version(ctx, "order:1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, TTLGeneration, mr.TTL("gen:order:1"))
}

func TestJSONCache_SetIfVersion(t *testing.T) {
	cache, _, mr := setupTestRedis(t)
	ctx := context.Background()

	v, err := cache.Version(ctx, "order:1")
	require.NoError(t, err)

	ok, err := cache.SetIfVersion(ctx, "order:1", v, doc{ID: 1, Name: "fresh"}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("order:1"))

	// a load that began before this invalidation must not repopulate the key
	stale := v
	require.NoError(t, cache.Delete(ctx, "order:1"))
	ok, err = cache.SetIfVersion(ctx, "order:1", stale, doc{ID: 1, Name: "stale"}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("order:1"))

	v, err = cache.Version(ctx, "order:1")
	require.NoError(t, err)
	ok, err = cache.SetIfVersion(ctx, "order:1", v, doc{ID: 1, Name: "after"}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	var got doc
	require.NoError(t, cache.Get(ctx, "order:1", &got))
	assert.Equal(t, "after", got.Name)
}

func TestNopCache(t *testing.T) {
	ctx := context.Background()
	var c Cache = NopCache{}
	require.NoError(t, c.Set(ctx, "k", doc{ID: 1}, time.Minute))
	assert.ErrorIs(t, c.Get(ctx, "k", &doc{}), ErrCacheMiss)
	ok, err := c.SetIfVersion(ctx, "k", 0, doc{ID: 1}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyOnce(t *testing.T) {
	_, client, mr := setupTestRedis(t)
	ctx := context.Background()
	incr := func(p redis.Pipeliner) { p.HIncrBy(ctx, "ledger:product:1", "reserved", 2) }

	ok, err := ApplyOnce(ctx, client, "dedup:x:1", time.Minute, incr)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ApplyOnce(ctx, client, "dedup:x:1", time.Minute, incr)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "2", mr.HGet("ledger:product:1", "reserved"))
	assert.Equal(t, time.Minute, mr.TTL("dedup:x:1"))
}

func TestApplyOnce_FailureLeavesNoMarker(t *testing.T) {
	_, client, mr := setupTestRedis(t)
	ctx := context.Background()
	incr := func(p redis.Pipeliner) { p.HIncrBy(ctx, "ledger:product:1", "reserved", 1) }

	mr.SetError("ERR unavailable")
	_, err := ApplyOnce(ctx, client, "dedup:x:2", time.Minute, incr)
	require.Error(t, err)
	mr.SetError("")

	assert.False(t, mr.Exists("dedup:x:2"))
	ok, err := ApplyOnce(ctx, client, "dedup:x:2", time.Minute, incr)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", mr.HGet("ledger:product:1", "reserved"))
}
