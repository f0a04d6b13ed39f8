package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/conversion-tracker/internal/types"
)

// TrackingRecord is the canonical, merged state of one tracked event across
// its visit, sale and refund streams. A record is created only by a visit
// (or completed-visit backfill); sales and refunds can only mutate it.
type TrackingRecord struct {
	ID           string `json:"id" db:"id"`
	CampaignID   string `json:"campaignId" db:"campaign_id"`
	CampaignItem string `json:"campaignItem" db:"campaign_item"`

	// Origin fields, written once at visit time and preserved by upserts
	IP          string       `json:"ip" db:"ip"`
	UserAgent   string       `json:"userAgent" db:"user_agent"`
	Referer     *string      `json:"referer,omitempty" db:"referer"`
	Device      types.Device `json:"device" db:"device"`
	Country     *string      `json:"country,omitempty" db:"country"`
	CountryCode *string      `json:"countryCode,omitempty" db:"country_code"`

	// Attribution: origin miner and the validator last responsible for a write
	MinerHotkey    string  `json:"minerHotkey" db:"miner_hotkey"`
	MinerBlock     int64   `json:"minerBlock" db:"miner_block"`
	ValidatorHotkey *string `json:"validatorHotkey,omitempty" db:"validator_hotkey"`
	ValidatorBlock  *int64  `json:"validatorBlock,omitempty" db:"validator_block"`

	SalesStatus types.SalesStatus `json:"salesStatus" db:"sales_status"`
	SaleDate    *time.Time        `json:"saleDate,omitempty" db:"sale_date"`
	OrderInfo   *OrderInfo        `json:"orderInfo,omitempty" db:"order_info"`
	RefundInfo  *RefundInfo       `json:"refundInfo,omitempty" db:"refund_info"`

	SalesCount    int             `json:"salesCount" db:"sales_count"`
	RefundCount   int             `json:"refundCount" db:"refund_count"`
	NetSaleAmount decimal.Decimal `json:"netSaleAmount" db:"net_sale_amount"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// OrderInfo holds the sale side of a queue item
type OrderInfo struct {
	TotalAmount decimal.Decimal `json:"totalAmount"`
	SaleDate    *time.Time      `json:"saleDate,omitempty"`
	Items       []OrderItem     `json:"items"`
}

// RefundInfo holds the refund side of a queue item
type RefundInfo struct {
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Items       []OrderItem     `json:"items"`
}

// OrderItem is a single line item inside an order or refund
type OrderItem struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// TrackingRecordPage is one page of a range query with page metadata
type TrackingRecordPage struct {
	Data       []*TrackingRecord    `json:"data"`
	Pagination types.PaginationInfo `json:"pagination"`
}

// CampaignAggregates holds per-campaign counters over a trailing window,
// pulled by the scorer on each recompute pass
type CampaignAggregates struct {
	CampaignID      string          `json:"campaignId"`
	Visits          int64           `json:"visits"`
	Sales           int64           `json:"sales"`
	Refunds         int64           `json:"refunds"`
	TotalSaleAmount decimal.Decimal `json:"totalSaleAmount"`
	WindowStart     time.Time       `json:"windowStart"`
}
