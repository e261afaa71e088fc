package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewCache(mr.Addr(), "", 0, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

type geoRecord struct {
	Country string `json:"country"`
	IsVPN   bool   `json:"is_vpn"`
}

func TestCache_GeoRoundTrip(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetGeo(ctx, "203.0.113.7", geoRecord{Country: "DE", IsVPN: true}, time.Minute))

	var got geoRecord
	require.NoError(t, c.GetGeo(ctx, "203.0.113.7", &got))
	assert.Equal(t, geoRecord{Country: "DE", IsVPN: true}, got)
	assert.Equal(t, time.Minute, mr.TTL("geo:203.0.113.7"))
}

func TestCache_GeoDefaultTTL(t *testing.T) {
	c, mr := setupCache(t)

	require.NoError(t, c.SetGeo(context.Background(), "198.51.100.1", geoRecord{}, 0))

	assert.Equal(t, time.Hour, mr.TTL("geo:198.51.100.1"))
}

func TestCache_GeoMiss(t *testing.T) {
	c, _ := setupCache(t)

	var got geoRecord
	err := c.GetGeo(context.Background(), "192.0.2.1", &got)

	assert.ErrorIs(t, err, ErrMiss)
}

func TestCache_GeoCorruptValue(t *testing.T) {
	c, mr := setupCache(t)
	require.NoError(t, mr.Set("geo:192.0.2.9", "not-json"))

	var got geoRecord
	err := c.GetGeo(context.Background(), "192.0.2.9", &got)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestCache_CheckRateLimit(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := c.CheckRateLimit(ctx, "fp:abc", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := c.CheckRateLimit(ctx, "fp:abc", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(2 * time.Minute)

	allowed, err = c.CheckRateLimit(ctx, "fp:abc", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "window should have reset")
}

func TestCache_CheckRateLimitIsolatesIdentifiers(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	_, _ = c.CheckRateLimit(ctx, "a", 1, time.Minute)
	denied, _ := c.CheckRateLimit(ctx, "a", 1, time.Minute)
	allowed, err := c.CheckRateLimit(ctx, "b", 1, time.Minute)

	require.NoError(t, err)
	assert.False(t, denied)
	assert.True(t, allowed)
}

func TestCache_Metrics(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	none, err := c.GetMetrics(ctx, "requests_blocked")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"requests_blocked": 0}, none)

	require.NoError(t, c.IncrementMetric(ctx, "requests_blocked"))
	require.NoError(t, c.IncrementMetric(ctx, "requests_blocked"))
	require.NoError(t, c.IncrementMetric(ctx, "analyses_total"))

	all, err := c.GetMetrics(ctx, "requests_blocked", "analyses_total", "unknown")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"requests_blocked": 2, "analyses_total": 1, "unknown": 0}, all)
}

func TestCache_ErrorsWhenServerGone(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), time.Minute)
	mr.Close()

	_, err := c.CheckRateLimit(context.Background(), "x", 1, time.Minute)
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestNewCache_Unreachable(t *testing.T) {
	_, err := NewCache("127.0.0.1:1", "", 0, time.Minute)

	assert.Error(t, err)
}
