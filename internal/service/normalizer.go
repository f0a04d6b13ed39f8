// Package service implements the reconciliation, normalization and scoring
// core of the conversion tracker.
package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/conversion-tracker/internal/models"
	"github.com/conversion-tracker/internal/types"
)

// mobileMarkers are user agent fragments that classify a visit as mobile
var mobileMarkers = []string{"mobi", "android", "iphone", "ipad", "ipod"}

// DetermineDevice classifies a user agent into a device class
func DetermineDevice(userAgent string) types.Device {
	ua := strings.ToLower(userAgent)
	for _, marker := range mobileMarkers {
		if strings.Contains(ua, marker) {
			return types.DeviceMobile
		}
	}
	return types.DevicePC
}

// RecordFromVisit converts a visit into a fresh tracking record with no sale
// state. Missing id and timestamp are filled in at ingest time.
func RecordFromVisit(v *models.Visit) *models.TrackingRecord {
	id := v.ID
	if id == "" {
		id = uuid.NewString()
	}

	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	device := v.Device
	if device == "" {
		device = DetermineDevice(v.UserAgent)
	}

	return &models.TrackingRecord{
		ID:            id,
		CampaignID:    v.CampaignID,
		CampaignItem:  v.CampaignItem,
		IP:            v.IP,
		UserAgent:     v.UserAgent,
		Referer:       v.Referer,
		Device:        device,
		Country:       v.Country,
		CountryCode:   v.CountryCode,
		MinerHotkey:   v.MinerHotkey,
		MinerBlock:    v.MinerBlock,
		SalesStatus:   types.SalesStatusNone,
		NetSaleAmount: decimal.Zero,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

// RecordFromCompletedVisit converts a bulk import record for an already
// closed-out event into a completed tracking record, skipping the
// reconciliation round-trip
func RecordFromCompletedVisit(cv *models.CompletedVisit) *models.TrackingRecord {
	rec := RecordFromVisit(&cv.Visit)
	rec.SalesStatus = types.SalesStatusCompleted
	rec.SaleDate = cv.SaleDate
	rec.SalesCount = cv.SalesCount
	rec.RefundCount = cv.RefundCount
	rec.NetSaleAmount = cv.NetSaleAmount
	return rec
}
