package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/conversion-tracker/internal/models"
	"github.com/conversion-tracker/internal/types"
)

// TrackingRepository handles canonical tracking record persistence.
// Upsert is the sole mutation path: concurrent writers are resolved by
// whichever call observes the latest row at merge time (last writer wins,
// no lost-update detection). Each statement runs in its own implicit
// transaction, so no single upsert is ever torn.
type TrackingRepository struct {
	db *PostgresDB
}

// NewTrackingRepository creates a new tracking record repository
func NewTrackingRepository(db *PostgresDB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

const trackingRecordColumns = `
	id, campaign_id, campaign_item, ip, user_agent, referer, device,
	country, country_code, miner_hotkey, miner_block,
	validator_hotkey, validator_block, sales_status, sale_date,
	order_info, refund_info, sales_count, refund_count, net_sale_amount,
	created_at, updated_at`

// Upsert inserts a record, or overwrites the mutable fields of an existing
// row while preserving its origin fields. Never fails on a duplicate id.
// Returns the persisted row.
func (r *TrackingRepository) Upsert(ctx context.Context, rec *models.TrackingRecord) (*models.TrackingRecord, error) {
	orderInfo, err := marshalNullable(rec.OrderInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order info: %w", err)
	}
	refundInfo, err := marshalNullable(rec.RefundInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to encode refund info: %w", err)
	}

	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO tracking_records (
			id, campaign_id, campaign_item, ip, user_agent, referer, device,
			country, country_code, miner_hotkey, miner_block,
			validator_hotkey, validator_block, sales_status, sale_date,
			order_info, refund_info, sales_count, refund_count, net_sale_amount,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (id)
		DO UPDATE SET
			validator_hotkey = EXCLUDED.validator_hotkey,
			validator_block = EXCLUDED.validator_block,
			sales_status = EXCLUDED.sales_status,
			sale_date = EXCLUDED.sale_date,
			order_info = EXCLUDED.order_info,
			refund_info = EXCLUDED.refund_info,
			sales_count = EXCLUDED.sales_count,
			refund_count = EXCLUDED.refund_count,
			net_sale_amount = EXCLUDED.net_sale_amount,
			updated_at = GREATEST(tracking_records.updated_at, EXCLUDED.updated_at)
		RETURNING ` + trackingRecordColumns

	row := r.db.Pool().QueryRow(ctx, query,
		rec.ID,
		rec.CampaignID,
		rec.CampaignItem,
		rec.IP,
		rec.UserAgent,
		rec.Referer,
		rec.Device,
		rec.Country,
		rec.CountryCode,
		rec.MinerHotkey,
		rec.MinerBlock,
		rec.ValidatorHotkey,
		rec.ValidatorBlock,
		rec.SalesStatus,
		rec.SaleDate,
		orderInfo,
		refundInfo,
		rec.SalesCount,
		rec.RefundCount,
		rec.NetSaleAmount,
		createdAt,
		now,
	)

	persisted, err := scanTrackingRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert tracking record: %w", err)
	}
	return persisted, nil
}

// Get retrieves a tracking record by id, returning (nil, nil) when absent
func (r *TrackingRepository) Get(ctx context.Context, id string) (*models.TrackingRecord, error) {
	query := `SELECT ` + trackingRecordColumns + ` FROM tracking_records WHERE id = $1`

	rec, err := scanTrackingRecord(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found, return nil without error
		}
		return nil, fmt.Errorf("failed to get tracking record: %w", err)
	}
	return rec, nil
}

// FilterExistingIDs returns the subset of ids already present in the store.
// Used to deduplicate a batch of incoming visits before insert.
func (r *TrackingRepository) FilterExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	query := `SELECT id FROM tracking_records WHERE id = ANY($1)`
	rows, err := r.db.Pool().Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to filter existing ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		existing[id] = struct{}{}
	}
	return existing, rows.Err()
}

// ListByUpdatedBetween returns records ordered by updated_at ascending.
// Nil bounds are open; used for incremental sync between peers.
func (r *TrackingRepository) ListByUpdatedBetween(ctx context.Context, from, to *time.Time, limit, offset int) ([]*models.TrackingRecord, error) {
	query := `SELECT ` + trackingRecordColumns + ` FROM tracking_records WHERE 1=1`
	args := []any{}
	argPos := 1

	if from != nil {
		query += fmt.Sprintf(" AND updated_at >= $%d", argPos)
		args = append(args, *from)
		argPos++
	}
	if to != nil {
		query += fmt.Sprintf(" AND updated_at <= $%d", argPos)
		args = append(args, *to)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY updated_at ASC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracking records: %w", err)
	}
	defer rows.Close()

	return collectTrackingRecords(rows)
}

// ListByUpdatedBetweenPaged is ListByUpdatedBetween with page metadata.
// NextPageNumber is always PageNumber+1; the caller checks Total.
func (r *TrackingRepository) ListByUpdatedBetweenPaged(ctx context.Context, from, to *time.Time, page types.PageRequest) (*models.TrackingRecordPage, error) {
	page = page.Normalize()
	limit, offset := page.LimitOffset()

	data, err := r.ListByUpdatedBetween(ctx, from, to, limit, offset)
	if err != nil {
		return nil, err
	}

	countQuery := `SELECT count(*) FROM tracking_records WHERE 1=1`
	args := []any{}
	argPos := 1
	if from != nil {
		countQuery += fmt.Sprintf(" AND updated_at >= $%d", argPos)
		args = append(args, *from)
		argPos++
	}
	if to != nil {
		countQuery += fmt.Sprintf(" AND updated_at <= $%d", argPos)
		args = append(args, *to)
	}

	var total int64
	if err := r.db.Pool().QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count tracking records: %w", err)
	}

	return &models.TrackingRecordPage{
		Data: data,
		Pagination: types.PaginationInfo{
			Total:          total,
			PageSize:       page.PageSize,
			PageNumber:     page.PageNumber,
			NextPageNumber: page.PageNumber + 1,
		},
	}, nil
}

// ListByCampaignItems returns records for the given campaign items ordered
// by updated_at ascending
func (r *TrackingRepository) ListByCampaignItems(ctx context.Context, items []string, limit, offset int) ([]*models.TrackingRecord, error) {
	if len(items) == 0 {
		return nil, nil
	}

	query := `SELECT ` + trackingRecordColumns + `
		FROM tracking_records
		WHERE campaign_item = ANY($1)
		ORDER BY updated_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool().Query(ctx, query, items, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list records by campaign items: %w", err)
	}
	defer rows.Close()

	return collectTrackingRecords(rows)
}

// MaxUpdatedAtExcluding returns the latest updated_at over records not last
// written by the given validator hotkey. Sync watermark: a peer uses it to
// avoid reprocessing records its own previous cycle authored.
func (r *TrackingRepository) MaxUpdatedAtExcluding(ctx context.Context, excludedHotkey string) (*time.Time, error) {
	query := `
		SELECT max(updated_at) FROM tracking_records
		WHERE validator_hotkey IS DISTINCT FROM $1`

	var maxUpdated *time.Time
	if err := r.db.Pool().QueryRow(ctx, query, excludedHotkey).Scan(&maxUpdated); err != nil {
		return nil, fmt.Errorf("failed to get max updated_at: %w", err)
	}
	return maxUpdated, nil
}

// MarkCompletedBefore bulk-transitions lingering sale-pending records with a
// sale date older than the cutoff to completed. Returns affected row count.
func (r *TrackingRepository) MarkCompletedBefore(ctx context.Context, campaignID string, saleCutoff time.Time) (int64, error) {
	query := `
		UPDATE tracking_records
		SET sales_status = $3, updated_at = now()
		WHERE campaign_id = $1
		  AND sales_status = $4
		  AND sales_count > 0
		  AND sale_date IS NOT NULL
		  AND sale_date < $2`

	result, err := r.db.Pool().Exec(ctx, query, campaignID, saleCutoff, types.SalesStatusCompleted, types.SalesStatusNone)
	if err != nil {
		return 0, fmt.Errorf("failed to mark records completed: %w", err)
	}
	return result.RowsAffected(), nil
}

// CampaignAggregates pulls the trailing-window counters the scorer needs for
// one campaign. Visits window on created_at, sale metrics on sale_date.
func (r *TrackingRepository) CampaignAggregates(ctx context.Context, campaignID string, since time.Time) (*models.CampaignAggregates, error) {
	query := `
		SELECT
			count(*) FILTER (WHERE created_at >= $2) AS visits,
			count(*) FILTER (WHERE sales_count > 0 AND sale_date >= $2) AS sales,
			count(*) FILTER (WHERE refund_count > 0 AND sale_date >= $2) AS refunds,
			COALESCE(sum(net_sale_amount) FILTER (WHERE sales_count > 0 AND sale_date >= $2), 0) AS total_sale_amount
		FROM tracking_records
		WHERE campaign_id = $1`

	agg := &models.CampaignAggregates{
		CampaignID:  campaignID,
		WindowStart: since,
	}
	err := r.db.Pool().QueryRow(ctx, query, campaignID, since).Scan(
		&agg.Visits,
		&agg.Sales,
		&agg.Refunds,
		&agg.TotalSaleAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate campaign %s: %w", campaignID, err)
	}
	return agg, nil
}

// ListMissingDevice returns legacy rows older than the cutoff that were
// ingested before device classification existed. The migration sweep
// re-normalizes them in bounded batches.
func (r *TrackingRepository) ListMissingDevice(ctx context.Context, olderThan time.Time, limit int) ([]*models.TrackingRecord, error) {
	query := `SELECT ` + trackingRecordColumns + `
		FROM tracking_records
		WHERE device = '' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.Pool().Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records missing device: %w", err)
	}
	defer rows.Close()

	return collectTrackingRecords(rows)
}

// UpdateDevice sets the device class for one record without touching the
// updated_at sync watermark
func (r *TrackingRepository) UpdateDevice(ctx context.Context, id string, device types.Device) error {
	query := `UPDATE tracking_records SET device = $2 WHERE id = $1`
	result, err := r.db.Pool().Exec(ctx, query, id, device)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("tracking record not found: %s", id)
	}
	return nil
}

// rowScanner covers pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrackingRecord(row rowScanner) (*models.TrackingRecord, error) {
	var rec models.TrackingRecord
	var orderInfo, refundInfo []byte

	err := row.Scan(
		&rec.ID,
		&rec.CampaignID,
		&rec.CampaignItem,
		&rec.IP,
		&rec.UserAgent,
		&rec.Referer,
		&rec.Device,
		&rec.Country,
		&rec.CountryCode,
		&rec.MinerHotkey,
		&rec.MinerBlock,
		&rec.ValidatorHotkey,
		&rec.ValidatorBlock,
		&rec.SalesStatus,
		&rec.SaleDate,
		&orderInfo,
		&refundInfo,
		&rec.SalesCount,
		&rec.RefundCount,
		&rec.NetSaleAmount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(orderInfo) > 0 {
		rec.OrderInfo = &models.OrderInfo{}
		if err := json.Unmarshal(orderInfo, rec.OrderInfo); err != nil {
			return nil, fmt.Errorf("failed to decode order info: %w", err)
		}
	}
	if len(refundInfo) > 0 {
		rec.RefundInfo = &models.RefundInfo{}
		if err := json.Unmarshal(refundInfo, rec.RefundInfo); err != nil {
			return nil, fmt.Errorf("failed to decode refund info: %w", err)
		}
	}
	return &rec, nil
}

func collectTrackingRecords(rows pgx.Rows) ([]*models.TrackingRecord, error) {
	var records []*models.TrackingRecord
	for rows.Next() {
		rec, err := scanTrackingRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracking record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// marshalNullable encodes a nullable struct pointer as JSONB, keeping SQL NULL
// for nil pointers
func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *models.OrderInfo:
		if t == nil {
			return nil, nil
		}
	case *models.RefundInfo:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
