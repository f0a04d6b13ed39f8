package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversion-tracker/internal/models"
)

// setupTestCache creates a RedisCache backed by a test Redis instance
func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewRedisCacheWithClient(client), mr
}

func TestRedisCache_RankedCampaignsRoundTrip(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	ranked := []*models.RankedCampaign{
		{Campaign: models.Campaign{ID: "cmp-a"}, Score: 0.95},
		{Campaign: models.Campaign{ID: "cmp-b"}, Score: 0.40},
	}

	require.NoError(t, cache.SetRankedCampaigns(ctx, ranked, time.Hour))

	got, err := cache.GetRankedCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cmp-a", got[0].Campaign.ID)
	assert.Equal(t, 0.95, got[0].Score)
	assert.Equal(t, "cmp-b", got[1].Campaign.ID)
}

func TestRedisCache_RankedCampaignsMiss(t *testing.T) {
	cache, _ := setupTestCache(t)

	got, err := cache.GetRankedCampaigns(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_RankedCampaignsExpiry(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	ranked := []*models.RankedCampaign{{Campaign: models.Campaign{ID: "cmp-a"}, Score: 1}}
	require.NoError(t, cache.SetRankedCampaigns(ctx, ranked, time.Minute))

	mr.FastForward(2 * time.Minute)

	got, err := cache.GetRankedCampaigns(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "expired entry must read as a miss")
}

func TestRedisCache_ActivityCounters(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	count, err := cache.IncrActivity(ctx, day, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = cache.IncrActivity(ctx, day, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	got, err := cache.GetActivity(ctx, day, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	// Other IPs and other days are independent
	other, err := cache.GetActivity(ctx, day, "203.0.113.8")
	require.NoError(t, err)
	assert.Equal(t, int64(0), other)

	nextDay, err := cache.GetActivity(ctx, day.AddDate(0, 0, 1), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, int64(0), nextDay)
}

func TestRedisCache_ClearActivityBefore(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	oldDay := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	recentDay := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := cache.IncrActivity(ctx, oldDay, "203.0.113.7")
	require.NoError(t, err)
	_, err = cache.IncrActivity(ctx, oldDay, "203.0.113.8")
	require.NoError(t, err)
	_, err = cache.IncrActivity(ctx, recentDay, "203.0.113.7")
	require.NoError(t, err)

	removed, err := cache.ClearActivityBefore(ctx, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	kept, err := cache.GetActivity(ctx, recentDay, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, int64(1), kept, "counters on or after the cutoff day must survive")

	gone, err := cache.GetActivity(ctx, oldDay, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gone)
}
