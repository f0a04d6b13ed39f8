package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/conversion-tracker/internal/models"
	"github.com/conversion-tracker/internal/types"
)

// CampaignRepository persists the active campaign set supplied by the
// campaign backend. The set is replaced wholesale on each ping cycle.
type CampaignRepository struct {
	db *PostgresDB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *PostgresDB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, item, product_link, status, type, approved_countries, updated_at`

// ReplaceActive upserts the given campaigns and deactivates every campaign
// not in the set. Runs in one transaction so readers never observe a
// half-replaced set.
func (r *CampaignRepository) ReplaceActive(ctx context.Context, campaigns []*models.Campaign) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	now := time.Now().UTC()
	ids := make([]string, 0, len(campaigns))

	for _, c := range campaigns {
		ids = append(ids, c.ID)
		_, err := tx.Exec(ctx, `
			INSERT INTO campaigns (id, item, product_link, status, type, approved_countries, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id)
			DO UPDATE SET
				item = EXCLUDED.item,
				product_link = EXCLUDED.product_link,
				status = EXCLUDED.status,
				type = EXCLUDED.type,
				approved_countries = EXCLUDED.approved_countries,
				updated_at = EXCLUDED.updated_at`,
			c.ID, c.Item, c.ProductLink, c.Status, c.Type, c.ApprovedCountries, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert campaign %s: %w", c.ID, err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE campaigns SET status = $1, updated_at = $2
		WHERE NOT (id = ANY($3)) AND status <> $1`,
		types.CampaignStatusDeactivated, now, ids,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate stale campaigns: %w", err)
	}

	return tx.Commit(ctx)
}

// Get retrieves a campaign by id, returning (nil, nil) when absent
func (r *CampaignRepository) Get(ctx context.Context, id string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	var c models.Campaign
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Item, &c.ProductLink, &c.Status, &c.Type, &c.ApprovedCountries, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

// ListActive returns all activated campaigns ordered by id
func (r *CampaignRepository) ListActive(ctx context.Context) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY id`

	rows, err := r.db.Pool().Query(ctx, query, types.CampaignStatusActivated)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		var c models.Campaign
		err := rows.Scan(&c.ID, &c.Item, &c.ProductLink, &c.Status, &c.Type, &c.ApprovedCountries, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, &c)
	}
	return campaigns, rows.Err()
}
