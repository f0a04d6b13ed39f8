package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/conversion-tracker/internal/types"
)

// Visit is a recorded impression/click event delivered by the tracking front
// door. Ids are pre-assigned by the source and globally unique.
type Visit struct {
	ID           string       `json:"id"`
	CampaignID   string       `json:"campaignId"`
	CampaignItem string       `json:"campaignItem"`
	IP           string       `json:"ip"`
	UserAgent    string       `json:"userAgent"`
	Referer      *string      `json:"referer,omitempty"`
	Device       types.Device `json:"device"`
	Country      *string      `json:"country,omitempty"`
	CountryCode  *string      `json:"countryCode,omitempty"`
	MinerHotkey  string       `json:"minerHotkey"`
	MinerBlock   int64        `json:"minerBlock"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// CompletedVisit is a bulk import record for an event that already closed out
// elsewhere. It normalizes to a tracking record with sales status completed
// without a reconciliation round-trip.
type CompletedVisit struct {
	Visit
	SaleDate      *time.Time      `json:"saleDate,omitempty"`
	SalesCount    int             `json:"salesCount"`
	RefundCount   int             `json:"refundCount"`
	NetSaleAmount decimal.Decimal `json:"netSaleAmount"`
}

// QueueItem is an incoming sale-or-refund update referencing an existing
// tracking record by id. Submitted by a validator; the transport delivers
// at least once and reconciliation absorbs duplicates.
type QueueItem struct {
	ID         string      `json:"id"`
	OrderInfo  OrderInfo   `json:"orderInfo"`
	RefundInfo *RefundInfo `json:"refundInfo,omitempty"`
}

// QueueItemResult is the per-item outcome of a reconciliation batch
type QueueItemResult struct {
	Status types.QueueItemStatus `json:"status"`
	Record *TrackingRecord       `json:"record,omitempty"`
}
