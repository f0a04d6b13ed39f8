package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/conversion-tracker/internal/types"
)

// Campaign is one advertised offer supplied by the campaign backend. The
// active set is replaced wholesale on every ping cycle; campaigns may appear
// and disappear between cycles.
type Campaign struct {
	ID               string               `json:"id" db:"id"`
	Item             string               `json:"item" db:"item"`
	ProductLink      string               `json:"productLink" db:"product_link"`
	Status           types.CampaignStatus `json:"status" db:"status"`
	Type             types.CampaignType   `json:"type" db:"type"`
	ApprovedCountries []string            `json:"approvedCountries,omitempty" db:"approved_countries"`
	UpdatedAt        time.Time            `json:"updatedAt" db:"updated_at"`
}

// CampaignPerformance holds the derived scoring metrics for one campaign.
// Recreated wholesale on each scoring cycle; it is never a source of truth.
type CampaignPerformance struct {
	CampaignID     string          `json:"campaignId"`
	ConversionRate float64         `json:"conversionRate"`
	RefundRate     float64         `json:"refundRate"`
	AvgSale        decimal.Decimal `json:"avgSale"`
	TotalSales     int64           `json:"totalSales"`
	TotalVisits    int64           `json:"totalVisits"`
	TotalRefunds   int64           `json:"totalRefunds"`
	Score          float64         `json:"score"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

// RankedCampaign pairs a campaign with its composite score in rank order
type RankedCampaign struct {
	Campaign Campaign `json:"campaign"`
	Score    float64  `json:"score"`
}
