package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conversion-tracker/internal/models"
	"github.com/conversion-tracker/internal/types"
)

func TestDetermineDevice(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      types.Device
	}{
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", types.DeviceMobile},
		{"android", "Mozilla/5.0 (Linux; Android 14; Pixel 8)", types.DeviceMobile},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)", types.DeviceMobile},
		{"generic mobile token", "SomeBrowser/1.0 Mobile Safari", types.DeviceMobile},
		{"desktop chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0", types.DevicePC},
		{"desktop mac", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", types.DevicePC},
		{"empty", "", types.DevicePC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineDevice(tt.userAgent); got != tt.want {
				t.Errorf("DetermineDevice(%q) = %v, want %v", tt.userAgent, got, tt.want)
			}
		})
	}
}

func TestRecordFromVisit(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	referer := "https://example.com/landing"

	visit := &models.Visit{
		ID:           "visit-1",
		CampaignID:   "cmp-1",
		CampaignItem: "item-1",
		IP:           "203.0.113.7",
		UserAgent:    "Mozilla/5.0 (iPhone)",
		Referer:      &referer,
		MinerHotkey:  "miner-a",
		MinerBlock:   42,
		CreatedAt:    createdAt,
	}

	rec := RecordFromVisit(visit)

	if rec.ID != "visit-1" || rec.CampaignID != "cmp-1" || rec.CampaignItem != "item-1" {
		t.Errorf("identity fields not carried over: %+v", rec)
	}
	if rec.Device != types.DeviceMobile {
		t.Errorf("Device = %v, want mobile (derived from user agent)", rec.Device)
	}
	if rec.SalesStatus != types.SalesStatusNone {
		t.Errorf("SalesStatus = %v, want none", rec.SalesStatus)
	}
	if !rec.NetSaleAmount.IsZero() {
		t.Errorf("NetSaleAmount = %v, want zero", rec.NetSaleAmount)
	}
	if !rec.CreatedAt.Equal(createdAt) || !rec.UpdatedAt.Equal(createdAt) {
		t.Errorf("timestamps = %v / %v, want %v", rec.CreatedAt, rec.UpdatedAt, createdAt)
	}
	if rec.MinerHotkey != "miner-a" || rec.MinerBlock != 42 {
		t.Errorf("attribution fields not carried over: %+v", rec)
	}
}

func TestRecordFromVisit_ZeroCreatedAt(t *testing.T) {
	before := time.Now().UTC()
	rec := RecordFromVisit(&models.Visit{ID: "visit-2", CampaignID: "cmp-1"})

	if rec.CreatedAt.Before(before) {
		t.Errorf("CreatedAt = %v, expected fill-in at ingest time", rec.CreatedAt)
	}
}

func TestRecordFromVisit_ExplicitDeviceWins(t *testing.T) {
	visit := &models.Visit{
		ID:        "visit-3",
		UserAgent: "Mozilla/5.0 (iPhone)",
		Device:    types.DevicePC,
	}

	if rec := RecordFromVisit(visit); rec.Device != types.DevicePC {
		t.Errorf("Device = %v, want explicit pc to win over user agent", rec.Device)
	}
}

func TestRecordFromCompletedVisit(t *testing.T) {
	saleDate := time.Date(2026, 2, 20, 9, 30, 0, 0, time.UTC)

	cv := &models.CompletedVisit{
		Visit: models.Visit{
			ID:         "visit-4",
			CampaignID: "cmp-2",
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0)",
		},
		SaleDate:      &saleDate,
		SalesCount:    2,
		RefundCount:   1,
		NetSaleAmount: decimal.NewFromInt(70),
	}

	rec := RecordFromCompletedVisit(cv)

	if rec.SalesStatus != types.SalesStatusCompleted {
		t.Errorf("SalesStatus = %v, want completed", rec.SalesStatus)
	}
	if rec.SaleDate == nil || !rec.SaleDate.Equal(saleDate) {
		t.Errorf("SaleDate = %v, want %v", rec.SaleDate, saleDate)
	}
	if rec.SalesCount != 2 || rec.RefundCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", rec.SalesCount, rec.RefundCount)
	}
	if !rec.NetSaleAmount.Equal(decimal.NewFromInt(70)) {
		t.Errorf("NetSaleAmount = %v, want 70", rec.NetSaleAmount)
	}
	if rec.Device != types.DevicePC {
		t.Errorf("Device = %v, want pc", rec.Device)
	}
}
