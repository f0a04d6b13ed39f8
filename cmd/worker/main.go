// Package main provides the periodic task worker entry point.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conversion-tracker/internal/client"
	"github.com/conversion-tracker/internal/config"
	"github.com/conversion-tracker/internal/logging"
	"github.com/conversion-tracker/internal/service"
	"github.com/conversion-tracker/internal/storage"
	"github.com/conversion-tracker/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.Info("Worker starting...")

	// Initialize database connections
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories and services
	trackingRepo := storage.NewTrackingRepository(postgres)
	campaignRepo := storage.NewCampaignRepository(postgres)
	eventLogRepo := storage.NewEventLogRepository(clickhouse)

	if err := eventLogRepo.CreateTable(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to ensure event log table")
	}

	trackingService := service.NewTrackingService(trackingRepo, eventLogRepo, logger)
	scorer := service.NewCampaignScorer(trackingRepo, cfg.Scorer, logger)
	recentActivity := service.NewRecentActivityService(redis, cfg.Worker.ActivityRetention, logger)
	backend := client.NewBackendClient(&cfg.Backend)

	tasks := worker.BuildTasks(cfg, &worker.Deps{
		Backend:        backend,
		Campaigns:      campaignRepo,
		Records:        trackingRepo,
		EventLog:       eventLogRepo,
		Cache:          redis,
		Tracking:       trackingService,
		Scorer:         scorer,
		RecentActivity: recentActivity,
		Logger:         logger,
	})

	orchestrator := worker.NewOrchestrator(tasks, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orchestrator.Start(ctx, cfg.Worker.TickInterval); err != nil {
		logger.WithError(err).Fatal("Failed to start orchestrator")
	}

	logger.WithField("tick_interval", cfg.Worker.TickInterval.String()).Info("Worker started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := orchestrator.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Orchestrator shutdown error")
	}

	logger.Info("Worker stopped")
}
