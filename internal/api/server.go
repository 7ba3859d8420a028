// Package api exposes the ledger, the scheduler and the bank feed over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/mercury-odoo-sync/internal/api/handlers"
	"github.com/eshaffer321/mercury-odoo-sync/internal/api/middleware"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	// WriteTimeout must outlast a manual sync cycle.
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: middleware.DefaultCORSConfig().AllowedOrigins,
		WriteTimeout:   11 * time.Minute,
	}
}

// Dependencies are the collaborators behind the routes. Repo is required;
// routes whose collaborator is nil are not registered.
type Dependencies struct {
	Repo                 storage.Repository
	Sync                 handlers.SyncController
	Bank                 handlers.BankReader
	Accounting           handlers.AccountingProber
	NotificationsEnabled bool
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	deps       Dependencies
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	s := &Server{
		config: cfg,
		router: gin.New(),
		logger: logger,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())

	corsConfig := middleware.DefaultCORSConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = s.config.AllowedOrigins
	}
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger, "/health"))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler(s.deps.Bank, s.deps.Accounting)
	s.router.GET("/health", healthHandler.Get)

	api := s.router.Group("/api")
	{
		ledgerHandler := handlers.NewLedgerHandler(s.deps.Repo)
		api.GET("/unmatched", ledgerHandler.Unmatched)
		api.GET("/reconciliations", ledgerHandler.Reconciliations)
		api.GET("/sync-states", ledgerHandler.SyncStates)

		statsHandler := handlers.NewStatsHandler(s.deps.Repo)
		api.GET("/stats", statsHandler.Get)

		runsHandler := handlers.NewRunsHandler(s.deps.Repo)
		api.GET("/runs", runsHandler.List)
		api.GET("/runs/:id", runsHandler.Get)

		if s.deps.Sync != nil {
			syncHandler := handlers.NewSyncHandler(s.deps.Repo, s.deps.Sync, s.deps.Bank, s.deps.NotificationsEnabled)
			api.POST("/sync", syncHandler.Run)
			api.POST("/reconcile", syncHandler.Reconcile)
			api.GET("/status", syncHandler.Status)
		}

		if s.deps.Bank != nil {
			bankHandler := handlers.NewBankHandler(s.deps.Repo, s.deps.Bank)
			api.GET("/bank/accounts", bankHandler.Accounts)
			api.GET("/bank/balance", bankHandler.Balance)
			api.GET("/bank/transactions", bankHandler.Transactions)
			api.GET("/bank/health", bankHandler.Health)
		}
	}
}

// Start starts the HTTP server. It blocks until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the HTTP handler for testing.
func (s *Server) Router() http.Handler {
	return s.router
}
