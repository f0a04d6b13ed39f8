package service

import (
	"context"
	"time"

	"github.com/conversion-tracker/internal/logging"
	"github.com/conversion-tracker/internal/storage"
)

// RecentActivityService tracks per-IP visit frequency in Redis so the front
// door can throttle abusive sources. Counters are daily and swept by the
// orchestrator's activity-clear task.
type RecentActivityService struct {
	cache     *storage.RedisCache
	retention time.Duration
	logger    *logging.Logger
}

// NewRecentActivityService creates a recent activity service
func NewRecentActivityService(cache *storage.RedisCache, retention time.Duration, logger *logging.Logger) *RecentActivityService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &RecentActivityService{cache: cache, retention: retention, logger: logger}
}

// RecordVisit bumps today's counter for the IP and returns the new count
func (s *RecentActivityService) RecordVisit(ctx context.Context, ip string) (int64, error) {
	return s.cache.IncrActivity(ctx, time.Now().UTC(), ip)
}

// VisitsToday returns today's counter for the IP
func (s *RecentActivityService) VisitsToday(ctx context.Context, ip string) (int64, error) {
	return s.cache.GetActivity(ctx, time.Now().UTC(), ip)
}

// ClearOld drops counters older than the retention window
func (s *RecentActivityService) ClearOld(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.retention)
	removed, err := s.cache.ClearActivityBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.WithFields(map[string]interface{}{
			"keys": removed,
		}).Info("Cleared stale activity counters")
	}
	return removed, nil
}
