package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/config"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// Subcommands of cmd/reconcile
const (
	CommandSync      = "sync"
	CommandReconcile = "reconcile"
	CommandUnmatched = "unmatched"
	CommandStats     = "stats"
	CommandReset     = "reset"
)

// ErrResetNotConfirmed is returned by reset without -confirm.
var ErrResetNotConfirmed = errors.New("reset clears the ledger; rerun with -confirm")

// Usage is printed for an unknown or missing subcommand.
const Usage = `usage: reconcile <command> [flags]

commands:
  sync        fetch new transactions and reconcile deposits
  reconcile   reconcile recent deposits (-days, -min-confidence)
  unmatched   list deposits not yet reconciled (-limit)
  stats       print ledger statistics
  reset       clear the ledger (-confirm)
`

// Run executes one subcommand. args excludes the program name.
func Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", Usage)
	}

	cmd := args[0]
	switch cmd {
	case CommandSync, CommandReconcile, CommandUnmatched, CommandStats, CommandReset:
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, Usage)
	}

	flags, err := ParseCommandFlags(cmd, args[1:])
	if err != nil {
		return err
	}
	if cmd == CommandReset && !flags.Confirm {
		return ErrResetNotConfirmed
	}

	cfg := config.LoadOrEnvWithPath(flags.Config)

	// Ledger-only commands do not need the bank token.
	switch cmd {
	case CommandUnmatched, CommandStats, CommandReset:
		store, err := storage.NewStorage(cfg.Storage.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer func() { _ = store.Close() }()
		return runLedgerCommand(ctx, cmd, flags, store, out)
	}

	app, err := NewApp(cfg, "cli", flags.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	switch cmd {
	case CommandSync:
		summary := app.Coordinator.RunCycle(ctx, storage.TriggerCLI)
		PrintCycleSummary(out, summary)
		if !summary.Success {
			return fmt.Errorf("sync failed")
		}
		return nil
	default:
		summary, err := app.Service.Reconcile(ctx, flags.Days, flags.MinConfidence)
		if summary != nil {
			PrintReconcileSummary(out, summary)
		}
		return err
	}
}

func runLedgerCommand(ctx context.Context, cmd string, flags *CommandFlags, repo storage.LedgerRepository, out io.Writer) error {
	switch cmd {
	case CommandUnmatched:
		txns, err := repo.GetUnreconciledTransactions(ctx, flags.Limit)
		if err != nil {
			return fmt.Errorf("failed to list unmatched deposits: %w", err)
		}
		PrintUnmatched(out, txns)
	case CommandStats:
		stats, err := repo.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}
		PrintStats(out, stats)
	case CommandReset:
		if err := repo.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset ledger: %w", err)
		}
		fmt.Fprintln(out, "Ledger cleared.")
	}
	return nil
}
