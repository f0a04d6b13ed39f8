package service

import (
	"context"
	"fmt"
	"time"

	"github.com/conversion-tracker/internal/logging"
	"github.com/conversion-tracker/internal/models"
	"github.com/conversion-tracker/internal/storage"
	"github.com/conversion-tracker/internal/types"
)

// TrackingStore is the persistence contract the tracking service needs
type TrackingStore interface {
	RecordStore
	FilterExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	ListByUpdatedBetween(ctx context.Context, from, to *time.Time, limit, offset int) ([]*models.TrackingRecord, error)
	ListByUpdatedBetweenPaged(ctx context.Context, from, to *time.Time, page types.PageRequest) (*models.TrackingRecordPage, error)
	ListByCampaignItems(ctx context.Context, items []string, limit, offset int) ([]*models.TrackingRecord, error)
	MaxUpdatedAtExcluding(ctx context.Context, excludedHotkey string) (*time.Time, error)
	MarkCompletedBefore(ctx context.Context, campaignID string, saleCutoff time.Time) (int64, error)
}

// TrackingService handles visit ingestion and the record sync surface
type TrackingService struct {
	store  TrackingStore
	events EventSink
	logger *logging.Logger
}

// NewTrackingService creates a tracking service. The event sink is optional.
func NewTrackingService(store TrackingStore, events EventSink, logger *logging.Logger) *TrackingService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TrackingService{store: store, events: events, logger: logger}
}

// AddVisit normalizes and upserts a single visit
func (s *TrackingService) AddVisit(ctx context.Context, visit *models.Visit) (*models.TrackingRecord, error) {
	rec, err := s.store.Upsert(ctx, RecordFromVisit(visit))
	if err != nil {
		return nil, fmt.Errorf("failed to add visit %s: %w", visit.ID, err)
	}
	s.logVisit(ctx, rec)
	return rec, nil
}

// AddVisits ingests a batch of visits, writing only ids not already present.
// Existing records are left untouched. Returns the number of new records.
func (s *TrackingService) AddVisits(ctx context.Context, visits []*models.Visit) (int, error) {
	if len(visits) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(visits))
	for _, v := range visits {
		ids = append(ids, v.ID)
	}

	existing, err := s.store.FilterExistingIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to deduplicate visits: %w", err)
	}

	added := 0
	for _, v := range visits {
		if _, ok := existing[v.ID]; ok {
			continue
		}
		rec, err := s.store.Upsert(ctx, RecordFromVisit(v))
		if err != nil {
			return added, fmt.Errorf("failed to add visit %s: %w", v.ID, err)
		}
		s.logVisit(ctx, rec)
		added++
	}
	return added, nil
}

// AddCompletedVisits backfills already closed-out events as completed records
func (s *TrackingService) AddCompletedVisits(ctx context.Context, visits []*models.CompletedVisit) error {
	for _, cv := range visits {
		if _, err := s.store.Upsert(ctx, RecordFromCompletedVisit(cv)); err != nil {
			return fmt.Errorf("failed to add completed visit %s: %w", cv.ID, err)
		}
	}
	return nil
}

// GetRecord returns one record by id, or (nil, nil) when absent
func (s *TrackingService) GetRecord(ctx context.Context, id string) (*models.TrackingRecord, error) {
	return s.store.Get(ctx, id)
}

// RecordsBetween returns records updated in the given range, paged by page
// number, ordered by updated_at ascending
func (s *TrackingService) RecordsBetween(ctx context.Context, from, to *time.Time, page types.PageRequest) ([]*models.TrackingRecord, error) {
	limit, offset := page.LimitOffset()
	return s.store.ListByUpdatedBetween(ctx, from, to, limit, offset)
}

// RecordsBetweenPaged is RecordsBetween with page metadata
func (s *TrackingService) RecordsBetweenPaged(ctx context.Context, from, to *time.Time, page types.PageRequest) (*models.TrackingRecordPage, error) {
	return s.store.ListByUpdatedBetweenPaged(ctx, from, to, page)
}

// RecordsByCampaignItems returns records for the given campaign items
func (s *TrackingService) RecordsByCampaignItems(ctx context.Context, items []string, page types.PageRequest) ([]*models.TrackingRecord, error) {
	limit, offset := page.LimitOffset()
	return s.store.ListByCampaignItems(ctx, items, limit, offset)
}

// LastUpdateExcluding returns the sync watermark: the latest updated_at over
// records not last written by the given hotkey
func (s *TrackingService) LastUpdateExcluding(ctx context.Context, hotkey string) (*time.Time, error) {
	return s.store.MaxUpdatedAtExcluding(ctx, hotkey)
}

// CompleteStaleSales transitions lingering sale-pending records for one
// campaign older than the cutoff to completed
func (s *TrackingService) CompleteStaleSales(ctx context.Context, campaignID string, saleCutoff time.Time) (int64, error) {
	n, err := s.store.MarkCompletedBefore(ctx, campaignID, saleCutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.WithFields(map[string]interface{}{
			"campaignId": campaignID,
			"records":    n,
			"cutoff":     saleCutoff,
		}).Info("Completed stale sale records")
	}
	return n, nil
}

func (s *TrackingService) logVisit(ctx context.Context, rec *models.TrackingRecord) {
	if s.events == nil {
		return
	}
	err := s.events.Append(ctx, []*storage.TrackingEvent{{
		RecordID:   rec.ID,
		CampaignID: rec.CampaignID,
		Kind:       types.EventVisit,
		Hotkey:     rec.MinerHotkey,
		OccurredAt: rec.CreatedAt,
	}})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to append visit event to log")
	}
}
