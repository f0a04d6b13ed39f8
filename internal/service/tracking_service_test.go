package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conversion-tracker/internal/models"
	"github.com/conversion-tracker/internal/types"
)

// stubTrackingStore extends the record store stub with the batch surfaces
type stubTrackingStore struct {
	*stubRecordStore
	filterErr error
	completed int64
}

func newStubTrackingStore(records ...*models.TrackingRecord) *stubTrackingStore {
	return &stubTrackingStore{stubRecordStore: newStubRecordStore(records...)}
}

func (s *stubTrackingStore) FilterExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if s.filterErr != nil {
		return nil, s.filterErr
	}
	existing := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

func (s *stubTrackingStore) ListByUpdatedBetween(ctx context.Context, from, to *time.Time, limit, offset int) ([]*models.TrackingRecord, error) {
	return nil, nil
}

func (s *stubTrackingStore) ListByUpdatedBetweenPaged(ctx context.Context, from, to *time.Time, page types.PageRequest) (*models.TrackingRecordPage, error) {
	return &models.TrackingRecordPage{}, nil
}

func (s *stubTrackingStore) ListByCampaignItems(ctx context.Context, items []string, limit, offset int) ([]*models.TrackingRecord, error) {
	return nil, nil
}

func (s *stubTrackingStore) MaxUpdatedAtExcluding(ctx context.Context, excludedHotkey string) (*time.Time, error) {
	return nil, nil
}

func (s *stubTrackingStore) MarkCompletedBefore(ctx context.Context, campaignID string, saleCutoff time.Time) (int64, error) {
	return s.completed, nil
}

func TestAddVisits_DeduplicatesExistingIDs(t *testing.T) {
	store := newStubTrackingStore(visitRecord("v-existing"))
	svc := NewTrackingService(store, nil, testLogger())

	added, err := svc.AddVisits(context.Background(), []*models.Visit{
		{ID: "v-existing", CampaignID: "cmp-1"},
		{ID: "v-new", CampaignID: "cmp-1"},
	})
	if err != nil {
		t.Fatalf("AddVisits() error = %v", err)
	}

	if added != 1 {
		t.Errorf("added = %d, want 1 (existing id must be skipped)", added)
	}
	if store.upserts != 1 {
		t.Errorf("upserts = %d, want 1", store.upserts)
	}

	// The pre-existing record must be untouched
	got, _ := store.Get(context.Background(), "v-existing")
	if got.UpdatedAt != visitRecord("v-existing").UpdatedAt {
		t.Error("existing record was rewritten by a duplicate visit")
	}
}

func TestAddVisits_EmptyBatch(t *testing.T) {
	store := newStubTrackingStore()
	svc := NewTrackingService(store, nil, testLogger())

	added, err := svc.AddVisits(context.Background(), nil)
	if err != nil {
		t.Fatalf("AddVisits() error = %v", err)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
}

func TestAddVisits_DedupFailure(t *testing.T) {
	store := newStubTrackingStore()
	store.filterErr = errors.New("query timeout")
	svc := NewTrackingService(store, nil, testLogger())

	if _, err := svc.AddVisits(context.Background(), []*models.Visit{{ID: "v-1", CampaignID: "cmp-1"}}); err == nil {
		t.Error("expected error when deduplication fails")
	}
	if store.upserts != 0 {
		t.Errorf("upserts = %d, want 0 when dedup fails", store.upserts)
	}
}

func TestAddVisits_EmitsVisitEvents(t *testing.T) {
	store := newStubTrackingStore()
	sink := &stubEventSink{}
	svc := NewTrackingService(store, sink, testLogger())

	_, err := svc.AddVisits(context.Background(), []*models.Visit{{ID: "v-1", CampaignID: "cmp-1", MinerHotkey: "miner-a"}})
	if err != nil {
		t.Fatalf("AddVisits() error = %v", err)
	}

	if len(sink.events) != 1 || sink.events[0].Kind != types.EventVisit {
		t.Errorf("events = %+v, want one visit event", sink.events)
	}
	if sink.events[0].Hotkey != "miner-a" {
		t.Errorf("event hotkey = %s, want miner-a", sink.events[0].Hotkey)
	}
}

func TestAddCompletedVisits_StoresCompletedRecords(t *testing.T) {
	store := newStubTrackingStore()
	svc := NewTrackingService(store, nil, testLogger())

	err := svc.AddCompletedVisits(context.Background(), []*models.CompletedVisit{
		{Visit: models.Visit{ID: "v-1", CampaignID: "cmp-1"}, SalesCount: 1},
	})
	if err != nil {
		t.Fatalf("AddCompletedVisits() error = %v", err)
	}

	got, _ := store.Get(context.Background(), "v-1")
	if got == nil || got.SalesStatus != types.SalesStatusCompleted {
		t.Errorf("stored record = %+v, want completed", got)
	}
}

func TestCompleteStaleSales(t *testing.T) {
	store := newStubTrackingStore()
	store.completed = 7
	svc := NewTrackingService(store, nil, testLogger())

	n, err := svc.CompleteStaleSales(context.Background(), "cmp-1", time.Now())
	if err != nil {
		t.Fatalf("CompleteStaleSales() error = %v", err)
	}
	if n != 7 {
		t.Errorf("n = %d, want 7", n)
	}
}
