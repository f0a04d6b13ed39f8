// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/conversion-tracker/internal/config"
	"github.com/conversion-tracker/internal/logging"
	"github.com/conversion-tracker/internal/models"
	"github.com/conversion-tracker/internal/types"
)

// Service interfaces for dependency injection and testing

// TrackingServiceInterface defines the interface for tracking record operations
type TrackingServiceInterface interface {
	AddVisit(ctx context.Context, visit *models.Visit) (*models.TrackingRecord, error)
	AddVisits(ctx context.Context, visits []*models.Visit) (int, error)
	AddCompletedVisits(ctx context.Context, visits []*models.CompletedVisit) error
	GetRecord(ctx context.Context, id string) (*models.TrackingRecord, error)
	RecordsBetweenPaged(ctx context.Context, from, to *time.Time, page types.PageRequest) (*models.TrackingRecordPage, error)
	RecordsByCampaignItems(ctx context.Context, items []string, page types.PageRequest) ([]*models.TrackingRecord, error)
	LastUpdateExcluding(ctx context.Context, hotkey string) (*time.Time, error)
}

// ReconcilerInterface defines the interface for sale/refund reconciliation
type ReconcilerInterface interface {
	Reconcile(ctx context.Context, validatorBlock int64, validatorHotkey string, items []*models.QueueItem) map[string]models.QueueItemResult
}

// CampaignCacheInterface defines the interface for reading the ranked campaign cache
type CampaignCacheInterface interface {
	GetRankedCampaigns(ctx context.Context) ([]*models.RankedCampaign, error)
}

// RecentActivityInterface defines the interface for per-IP activity counters
type RecentActivityInterface interface {
	RecordVisit(ctx context.Context, ip string) (int64, error)
}

// Server represents the HTTP API server.
type Server struct {
	router         *mux.Router
	httpServer     *http.Server
	tracking       TrackingServiceInterface
	reconciler     ReconcilerInterface
	campaignCache  CampaignCacheInterface
	recentActivity RecentActivityInterface
	config         *ServerConfig
	logger         *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimit       config.RateLimitConfig
	Auth            config.AuthConfig
}

// NewServer creates a new API server instance.
func NewServer(
	cfg *ServerConfig,
	tracking TrackingServiceInterface,
	reconciler ReconcilerInterface,
	campaignCache CampaignCacheInterface,
	recentActivity RecentActivityInterface,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:         mux.NewRouter(),
		tracking:       tracking,
		reconciler:     reconciler,
		campaignCache:  campaignCache,
		recentActivity: recentActivity,
		config:         cfg,
		logger:         logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Mutating endpoints require a submitter signature
	signed := api.NewRoute().Subrouter()
	signed.Use(SignatureMiddleware(s.config.Auth.AllowedHotkeys, s.logger))
	signed.HandleFunc("/reconcile", s.handleReconcile).Methods("POST")
	signed.HandleFunc("/visits", s.handleAddVisits).Methods("POST")
	signed.HandleFunc("/visits/completed", s.handleAddCompletedVisits).Methods("POST")

	// Record endpoints. Literal paths registered before the {id} catch-all.
	api.HandleFunc("/records", s.handleListRecords).Methods("GET")
	api.HandleFunc("/records/by_campaign_item", s.handleRecordsByCampaignItems).Methods("GET")
	api.HandleFunc("/records/last_update", s.handleLastUpdate).Methods("GET")
	api.HandleFunc("/records/{id}", s.handleGetRecord).Methods("GET")

	// Campaign endpoints
	api.HandleFunc("/campaigns/ranked", s.handleRankedCampaigns).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "conversion-tracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}
