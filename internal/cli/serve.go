package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eshaffer321/mercury-odoo-sync/internal/api"
	"github.com/eshaffer321/mercury-odoo-sync/internal/api/handlers"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/config"
)

// RunServe runs the scheduler and the API server until SIGINT or SIGTERM.
func RunServe(cfg *config.Config, flags *ServeFlags) error {
	app, err := NewApp(cfg, "api", flags.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	logger := app.Logger

	port := cfg.Server.Port
	if flags.Port > 0 {
		port = flags.Port
	}

	deps := api.Dependencies{
		Repo:                 app.Store,
		Sync:                 app.Service,
		Bank:                 app.Bank,
		NotificationsEnabled: app.Notifier.Enabled(),
	}
	// A nil *odoo.Client must stay a nil interface.
	var accounting handlers.AccountingProber
	if app.Odoo != nil {
		accounting = app.Odoo
	}
	deps.Accounting = accounting

	server := api.NewServer(api.Config{
		Port:           port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, deps, logger)

	if err := app.Service.Start(); err != nil {
		return err
	}

	// Handle graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Received shutdown signal")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", slog.Any("error", err))
		}
		app.Service.Stop()
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		app.Service.Stop()
		return err
	}

	<-done
	logger.Info("Server stopped")
	return nil
}
