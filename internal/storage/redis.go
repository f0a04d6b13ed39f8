package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conversion-tracker/internal/config"
	"github.com/conversion-tracker/internal/models"
)

// rankedCampaignsKey caches the scorer's most recent ranked list
const rankedCampaignsKey = "campaigns:ranked"

// activityKeyPrefix namespaces per-IP recent activity counters, one key per day
const activityKeyPrefix = "activity"

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing client (tests use miniredis)
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SetRankedCampaigns caches the ranked campaign list with a TTL
func (r *RedisCache) SetRankedCampaigns(ctx context.Context, ranked []*models.RankedCampaign, ttl time.Duration) error {
	payload, err := json.Marshal(ranked)
	if err != nil {
		return fmt.Errorf("failed to encode ranked campaigns: %w", err)
	}
	return r.client.Set(ctx, rankedCampaignsKey, payload, ttl).Err()
}

// GetRankedCampaigns returns the cached ranked list, or (nil, nil) on a miss
func (r *RedisCache) GetRankedCampaigns(ctx context.Context) ([]*models.RankedCampaign, error) {
	payload, err := r.client.Get(ctx, rankedCampaignsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ranked campaigns: %w", err)
	}

	var ranked []*models.RankedCampaign
	if err := json.Unmarshal(payload, &ranked); err != nil {
		return nil, fmt.Errorf("failed to decode ranked campaigns: %w", err)
	}
	return ranked, nil
}

// activityKey builds the daily counter key for one IP
func activityKey(day time.Time, ip string) string {
	return fmt.Sprintf("%s:%s:%s", activityKeyPrefix, day.UTC().Format("2006-01-02"), ip)
}

// IncrActivity bumps the per-IP visit counter for the given day and returns
// the new count
func (r *RedisCache) IncrActivity(ctx context.Context, day time.Time, ip string) (int64, error) {
	count, err := r.client.Incr(ctx, activityKey(day, ip)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment activity for %s: %w", ip, err)
	}
	return count, nil
}

// GetActivity returns the per-IP visit counter for the given day (0 if unset)
func (r *RedisCache) GetActivity(ctx context.Context, day time.Time, ip string) (int64, error) {
	count, err := r.client.Get(ctx, activityKey(day, ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get activity for %s: %w", ip, err)
	}
	return count, nil
}

// ClearActivityBefore drops activity counters for days strictly before the
// cutoff day. Returns the number of keys removed.
func (r *RedisCache) ClearActivityBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffDay := cutoff.UTC().Format("2006-01-02")

	var removed int64
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, activityKeyPrefix+":*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan activity keys: %w", err)
		}

		var stale []string
		for _, key := range keys {
			// activity:<yyyy-mm-dd>:<ip>
			if len(key) >= len(activityKeyPrefix)+11 {
				day := key[len(activityKeyPrefix)+1 : len(activityKeyPrefix)+11]
				if day < cutoffDay {
					stale = append(stale, key)
				}
			}
		}
		if len(stale) > 0 {
			n, err := r.client.Del(ctx, stale...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete stale activity keys: %w", err)
			}
			removed += n
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}
