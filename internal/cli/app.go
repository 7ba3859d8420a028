// Package cli wires the components shared by the server and the one-shot
// commands.
package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/eshaffer321/mercury-odoo-sync/internal/adapters/mercury"
	"github.com/eshaffer321/mercury-odoo-sync/internal/adapters/notify"
	"github.com/eshaffer321/mercury-odoo-sync/internal/adapters/odoo"
	"github.com/eshaffer321/mercury-odoo-sync/internal/application/reconcile"
	"github.com/eshaffer321/mercury-odoo-sync/internal/application/service"
	appsync "github.com/eshaffer321/mercury-odoo-sync/internal/application/sync"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/matcher"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/config"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/logging"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// App holds the wired components. Odoo and Orchestrator are nil when no
// accounting backend is configured.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *storage.Storage
	Bank         *mercury.Client
	Odoo         *odoo.Client
	Orchestrator *reconcile.Orchestrator
	Coordinator  *appsync.Coordinator
	Notifier     notify.Notifier
	Service      *service.SyncService
}

// NewApp builds every component from cfg. The caller must Close the App.
func NewApp(cfg *config.Config, system string, verbose bool) (*App, error) {
	loggingCfg := cfg.Observability.Logging
	if verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, system)

	store, err := storage.NewStorageWithLogger(cfg.Storage.DatabasePath, logger.With("component", "ledger"))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	bankClient, err := mercury.NewClient(cfg.Mercury.APIToken,
		mercury.WithBaseURL(cfg.Mercury.BaseURL),
		mercury.WithTimeout(time.Duration(cfg.Mercury.TimeoutSeconds)*time.Second),
		mercury.WithLogger(logger.With("component", "mercury")),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Bank:   bankClient,
	}

	// A nil *Orchestrator must not leak into the interfaces below.
	var cycleReconciler appsync.Reconciler
	var batchReconciler service.Reconciler

	if cfg.Odoo.Enabled() {
		odooClient, err := odoo.NewClient(odoo.Config{
			URL:      cfg.Odoo.URL,
			Database: cfg.Odoo.Database,
			Username: cfg.Odoo.Username,
			APIKey:   cfg.Odoo.APIKey,
		}, logger.With("component", "odoo"))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		backend := odoo.NewBackend(odooClient)
		m := matcher.NewMatcher(backend, matcher.Config{
			DateToleranceDays: cfg.Sync.DateToleranceDays,
			InvoicePrefix:     cfg.Sync.InvoicePrefix,
		})

		app.Odoo = odooClient
		app.Orchestrator = reconcile.NewOrchestrator(backend, m, store, bankClient, logger.With("component", "reconcile"))
		cycleReconciler = app.Orchestrator
		batchReconciler = app.Orchestrator
	} else {
		logger.Warn("Odoo API key not set, reconciliation disabled")
	}

	app.Coordinator = appsync.NewCoordinator(bankClient, store, cycleReconciler, appsync.Options{
		AutoReconcile: cfg.Sync.AutoReconcileEnabled(),
		MinConfidence: cfg.Sync.MinConfidence,
		ReconcileDays: cfg.Sync.ReconcileDays,
		PageSize:      cfg.Sync.PageSize,
		WatermarkSkew: appsync.DefaultOptions().WatermarkSkew,
	}, logger.With("component", "sync"))

	app.Notifier = notify.NewSlackNotifier(cfg.Slack.WebhookURL, logger.With("component", "notify"))

	app.Service = service.NewSyncService(service.Config{
		Interval:      time.Duration(cfg.Sync.IntervalMinutes) * time.Minute,
		InitialDelay:  time.Duration(cfg.Sync.InitialDelaySeconds) * time.Second,
		AutoReconcile: cfg.Sync.AutoReconcileEnabled(),
		MinConfidence: cfg.Sync.MinConfidence,
	}, app.Coordinator, batchReconciler, store, app.Notifier, logger.With("component", "scheduler"))

	return app, nil
}

// Close releases the backend connections and the ledger.
func (a *App) Close() error {
	if a.Odoo != nil {
		_ = a.Odoo.Close()
	}
	return a.Store.Close()
}
