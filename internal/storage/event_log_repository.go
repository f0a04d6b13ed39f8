package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conversion-tracker/internal/types"
)

// TrackingEvent is one row in the append-only analytics event log. The log
// is not a source of truth: the canonical store converges independently and
// event writes are best effort.
type TrackingEvent struct {
	RecordID   string
	CampaignID string
	Kind       types.TrackingEventKind
	Amount     decimal.Decimal
	Hotkey     string
	OccurredAt time.Time
}

// EventLogRepository appends tracking events to ClickHouse and serves the
// counters the load report task publishes
type EventLogRepository struct {
	db *ClickHouseDB
}

// NewEventLogRepository creates a new event log repository
func NewEventLogRepository(db *ClickHouseDB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

// CreateTable creates the tracking_events table if it does not exist
func (r *EventLogRepository) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS tracking_events (
			record_id String,
			campaign_id String,
			kind LowCardinality(String),
			amount Decimal(18, 5),
			hotkey String,
			occurred_at DateTime64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(occurred_at)
		ORDER BY (campaign_id, occurred_at)`

	if err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tracking_events table: %w", err)
	}
	return nil
}

// Append writes a batch of events
func (r *EventLogRepository) Append(ctx context.Context, events []*TrackingEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO tracking_events (record_id, campaign_id, kind, amount, hotkey, occurred_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event batch: %w", err)
	}

	for _, e := range events {
		err := batch.Append(
			e.RecordID,
			e.CampaignID,
			string(e.Kind),
			e.Amount,
			e.Hotkey,
			e.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append event for record %s: %w", e.RecordID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send event batch: %w", err)
	}
	return nil
}

// EventCounts holds per-kind event totals since a cutoff
type EventCounts struct {
	Visits  uint64 `json:"visits"`
	Sales   uint64 `json:"sales"`
	Refunds uint64 `json:"refunds"`
}

// CountsSince returns per-kind event totals since the cutoff
func (r *EventLogRepository) CountsSince(ctx context.Context, since time.Time) (*EventCounts, error) {
	query := `
		SELECT
			countIf(kind = 'visit') AS visits,
			countIf(kind = 'sale') AS sales,
			countIf(kind = 'refund') AS refunds
		FROM tracking_events
		WHERE occurred_at >= $1`

	var counts EventCounts
	row := r.db.Conn().QueryRow(ctx, query, since)
	if err := row.Scan(&counts.Visits, &counts.Sales, &counts.Refunds); err != nil {
		return nil, fmt.Errorf("failed to count tracking events: %w", err)
	}
	return &counts, nil
}
