package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Symbol string  `json:"symbol"`
	Volume float64 `json:"volume"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "agg:AAPL", sample{Symbol: "AAPL", Volume: 1200}, time.Minute))

	var got sample
	require.NoError(t, mc.Get(ctx, "agg:AAPL", &got))
	assert.Equal(t, sample{Symbol: "AAPL", Volume: 1200}, got)

	var f float64
	require.NoError(t, mc.Set(ctx, "nmc:AAPL", 2.0, time.Minute))
	require.NoError(t, mc.Get(ctx, "nmc:AAPL", &f))
	assert.Equal(t, 2.0, f)
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", 1, time.Minute))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "session:2024-03-04:agg:A", 1, 0))
	require.NoError(t, mc.Set(ctx, "session:2024-03-04:agg:B", 2, 0))
	require.NoError(t, mc.Set(ctx, "session:2024-03-05:agg:A", 3, 0))

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("session:2024-03-04:")))
	assert.Equal(t, 1, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryMaxSize(2), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	now = now.Add(time.Second)
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestLayeredCacheReadsThroughRemote(t *testing.T) {
	remote := NewMemoryCache(WithMemoryCleanup(0))
	lc := NewLayeredCache(remote, WithLayeredMemorySize(10))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, remote.Set(ctx, "agg:MSFT", sample{Symbol: "MSFT", Volume: 5}, time.Hour))

	var got sample
	require.NoError(t, lc.Get(ctx, "agg:MSFT", &got))
	assert.Equal(t, "MSFT", got.Symbol)

	require.NoError(t, remote.Delete(ctx, "agg:MSFT"))
	got = sample{}
	require.NoError(t, lc.Get(ctx, "agg:MSFT", &got), "L1 should still hold the value")
	assert.Equal(t, 5.0, got.Volume)
}
