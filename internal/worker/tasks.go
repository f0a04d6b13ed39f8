package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/conversion-tracker/internal/client"
	"github.com/conversion-tracker/internal/config"
	"github.com/conversion-tracker/internal/logging"
	"github.com/conversion-tracker/internal/service"
	"github.com/conversion-tracker/internal/storage"
)

// Deps bundles the collaborators the periodic tasks need
type Deps struct {
	Backend        *client.BackendClient
	Campaigns      *storage.CampaignRepository
	Records        *storage.TrackingRepository
	EventLog       *storage.EventLogRepository
	Cache          *storage.RedisCache
	Tracking       *service.TrackingService
	Scorer         *service.CampaignScorer
	RecentActivity *service.RecentActivityService
	Logger         *logging.Logger
}

// BuildTasks assembles the fixed task list in execution order
func BuildTasks(cfg *config.Config, deps *Deps) []*Task {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return []*Task{
		newPingTask(cfg, deps, logger),
		newCleanupTask(cfg, deps, logger),
		newMigrationTask(cfg, deps, logger),
		newLoadReportTask(cfg, deps, logger),
		newActivityClearTask(cfg, deps),
	}
}

// newPingTask registers with the campaign backend, replaces the active
// campaign set, re-ranks it and caches the result
func newPingTask(cfg *config.Config, deps *Deps, logger *logging.Logger) *Task {
	return &Task{
		Name:     "ping",
		Interval: cfg.Worker.PingInterval,
		Run: func(ctx context.Context) error {
			response, err := deps.Backend.Ping(ctx)
			if err != nil {
				return err
			}
			if !response.Result {
				return fmt.Errorf("backend rejected ping")
			}

			if err := deps.Campaigns.ReplaceActive(ctx, response.Campaigns); err != nil {
				return err
			}

			active, err := deps.Campaigns.ListActive(ctx)
			if err != nil {
				return err
			}

			ranked := deps.Scorer.Evaluate(ctx, active, time.Now().UTC())
			if err := deps.Cache.SetRankedCampaigns(ctx, ranked, 2*cfg.Scorer.RefreshInterval); err != nil {
				logger.WithError(err).Warn("Failed to cache ranked campaigns")
			}

			logger.WithFields(map[string]interface{}{
				"campaigns": len(active),
			}).Info("Ping cycle finished")
			return nil
		},
	}
}

// newCleanupTask sweeps lingering sale-pending records to completed
func newCleanupTask(cfg *config.Config, deps *Deps, logger *logging.Logger) *Task {
	return &Task{
		Name:     "cleanup",
		Interval: cfg.Worker.CleanupInterval,
		Run: func(ctx context.Context) error {
			active, err := deps.Campaigns.ListActive(ctx)
			if err != nil {
				return err
			}

			cutoff := time.Now().UTC().Add(-cfg.Worker.SaleCompletionWindow)
			var total int64
			for _, campaign := range active {
				n, err := deps.Tracking.CompleteStaleSales(ctx, campaign.ID, cutoff)
				if err != nil {
					// One campaign's failure must not stop the sweep
					logger.WithError(err).WithFields(map[string]interface{}{
						"campaignId": campaign.ID,
					}).Error("Cleanup sweep failed for campaign")
					continue
				}
				total += n
			}

			if total > 0 {
				logger.WithFields(map[string]interface{}{
					"records": total,
				}).Info("Cleanup sweep finished")
			}
			return nil
		},
	}
}

// newMigrationTask re-normalizes legacy records that predate device
// classification, in bounded batches
func newMigrationTask(cfg *config.Config, deps *Deps, logger *logging.Logger) *Task {
	return &Task{
		Name:     "migration",
		Interval: cfg.Worker.MigrationInterval,
		Run: func(ctx context.Context) error {
			olderThan := time.Now().UTC().Add(-cfg.Worker.MigrationLookback)
			records, err := deps.Records.ListMissingDevice(ctx, olderThan, cfg.Worker.MigrationBatchSize)
			if err != nil {
				return err
			}

			migrated := 0
			for _, rec := range records {
				device := service.DetermineDevice(rec.UserAgent)
				if err := deps.Records.UpdateDevice(ctx, rec.ID, device); err != nil {
					logger.WithError(err).WithFields(map[string]interface{}{
						"id": rec.ID,
					}).Error("Failed to migrate record")
					continue
				}
				migrated++
			}

			if migrated > 0 {
				logger.WithFields(map[string]interface{}{
					"records": migrated,
				}).Info("Migration sweep finished")
			}
			return nil
		},
	}
}

// newLoadReportTask publishes event-log counters and the scoring snapshot
// to the backend
func newLoadReportTask(cfg *config.Config, deps *Deps, logger *logging.Logger) *Task {
	return &Task{
		Name:     "load_report",
		Interval: cfg.Worker.LoadReportInterval,
		Run: func(ctx context.Context) error {
			report := &client.SystemLoadReport{
				Performance: deps.Scorer.Performance(),
				LastScoring: deps.Scorer.LastRun(),
			}

			if deps.EventLog != nil {
				since := time.Now().UTC().Add(-cfg.Scorer.TrailingWindow)
				counts, err := deps.EventLog.CountsSince(ctx, since)
				if err != nil {
					logger.WithError(err).Warn("Failed to read event log counters")
				} else {
					report.Visits = counts.Visits
					report.Sales = counts.Sales
					report.Refunds = counts.Refunds
				}
			}

			return deps.Backend.SendSystemLoad(ctx, report)
		},
	}
}

// newActivityClearTask drops stale per-IP activity counters
func newActivityClearTask(cfg *config.Config, deps *Deps) *Task {
	return &Task{
		Name:     "activity_clear",
		Interval: cfg.Worker.ActivityClearInterval,
		Run: func(ctx context.Context) error {
			_, err := deps.RecentActivity.ClearOld(ctx)
			return err
		},
	}
}
