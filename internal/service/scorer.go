package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conversion-tracker/internal/config"
	"github.com/conversion-tracker/internal/logging"
	"github.com/conversion-tracker/internal/models"
)

// AggregateSource supplies per-campaign counters over a trailing window.
// Production uses the tracking repository; tests inject stubs.
type AggregateSource interface {
	CampaignAggregates(ctx context.Context, campaignID string, since time.Time) (*models.CampaignAggregates, error)
}

// CampaignScorer ranks the active campaign set on a bounded cadence. All
// scoring state lives on this object; callers hold a handle instead of
// relying on ambient process state.
//
// Two states: idle (within the refresh interval of the last run, returns the
// previous ranked list untouched) and recomputing (interval elapsed, pulls
// fresh aggregates and replaces the performance map wholesale).
type CampaignScorer struct {
	source AggregateSource
	cfg    config.ScorerConfig
	logger *logging.Logger

	mu          sync.Mutex
	lastRun     time.Time
	ranked      []*models.RankedCampaign
	performance map[string]*models.CampaignPerformance
}

// NewCampaignScorer creates a campaign scorer
func NewCampaignScorer(source AggregateSource, cfg config.ScorerConfig, logger *logging.Logger) *CampaignScorer {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &CampaignScorer{
		source:      source,
		cfg:         cfg,
		logger:      logger,
		performance: make(map[string]*models.CampaignPerformance),
	}
}

// Evaluate returns the ranked campaign list, recomputing only when the
// refresh interval has elapsed. A scoring pass is a best-effort snapshot:
// aggregate reads may run concurrently with reconciler writes.
func (s *CampaignScorer) Evaluate(ctx context.Context, activeCampaigns []*models.Campaign, now time.Time) []*models.RankedCampaign {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastRun.IsZero() && now.Sub(s.lastRun) < s.cfg.RefreshInterval {
		return s.ranked
	}

	windowStart := now.Add(-s.cfg.TrailingWindow)
	performance := make(map[string]*models.CampaignPerformance, len(activeCampaigns))

	for _, campaign := range activeCampaigns {
		perf, err := s.scoreCampaign(ctx, campaign.ID, windowStart, now)
		if err != nil {
			// One campaign's failed pull must not abort the pass; it simply
			// scores zero this cycle.
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"campaignId": campaign.ID,
			}).Warn("Failed to pull campaign aggregates, scoring zero")
			perf = &models.CampaignPerformance{CampaignID: campaign.ID, LastUpdated: now}
		}
		performance[campaign.ID] = perf
	}

	ranked := make([]*models.RankedCampaign, 0, len(activeCampaigns))
	for _, campaign := range activeCampaigns {
		ranked = append(ranked, &models.RankedCampaign{
			Campaign: *campaign,
			Score:    performance[campaign.ID].Score,
		})
	}

	// Score descending; ties broken by campaign id so the ordering stays
	// deterministic regardless of upstream input order.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Campaign.ID < ranked[j].Campaign.ID
	})

	s.performance = performance
	s.ranked = ranked
	s.lastRun = now

	return ranked
}

// Performance returns the most recent performance snapshot keyed by campaign id
func (s *CampaignScorer) Performance() map[string]*models.CampaignPerformance {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]*models.CampaignPerformance, len(s.performance))
	for id, perf := range s.performance {
		p := *perf
		snapshot[id] = &p
	}
	return snapshot
}

// LastRun returns the time of the last recompute pass
func (s *CampaignScorer) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *CampaignScorer) scoreCampaign(ctx context.Context, campaignID string, windowStart, now time.Time) (*models.CampaignPerformance, error) {
	agg, err := s.source.CampaignAggregates(ctx, campaignID, windowStart)
	if err != nil {
		return nil, err
	}

	var conversionRate, refundRate float64
	avgSale := decimal.Zero

	if agg.Visits > 0 {
		conversionRate = float64(agg.Sales) / float64(agg.Visits)
	}
	if agg.Sales > 0 {
		refundRate = float64(agg.Refunds) / float64(agg.Sales)
		avgSale = agg.TotalSaleAmount.Div(decimal.NewFromInt(agg.Sales))
	}

	perf := &models.CampaignPerformance{
		CampaignID:     campaignID,
		ConversionRate: conversionRate,
		RefundRate:     refundRate,
		AvgSale:        avgSale,
		TotalSales:     agg.Sales,
		TotalVisits:    agg.Visits,
		TotalRefunds:   agg.Refunds,
		LastUpdated:    now,
	}
	perf.Score = s.compositeScore(perf)
	return perf, nil
}

// compositeScore computes the weighted score. The reference points mark
// saturating good performance: contributions clamp at the weight's maximum
// once the metric passes the reference. Floored at zero.
func (s *CampaignScorer) compositeScore(perf *models.CampaignPerformance) float64 {
	saleScore := clamp01(perf.AvgSale.InexactFloat64() / s.cfg.AvgSaleReference)
	convScore := clamp01(perf.ConversionRate / s.cfg.ConversionReference)

	score := saleScore*s.cfg.AvgSaleWeight +
		convScore*s.cfg.ConversionWeight -
		perf.RefundRate*s.cfg.RefundWeight

	if score < 0 {
		return 0
	}
	return score
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
