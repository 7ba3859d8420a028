// Package sync runs one bank feed sync cycle: fetch since the watermark,
// record new transactions in the ledger, then hand deposits to
// reconciliation.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/mercury-odoo-sync/internal/application/reconcile"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/bank"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// Coordinator runs sync cycles
type Coordinator struct {
	feed       Feed
	ledger     Ledger
	reconciler Reconciler
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// NewCoordinator creates a cycle coordinator. reconciler may be nil when no
// accounting backend is configured.
func NewCoordinator(feed Feed, ledger Ledger, reconciler Reconciler, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = defaults.PageSize
	}
	if opts.ReconcileDays <= 0 {
		opts.ReconcileDays = defaults.ReconcileDays
	}
	if opts.WatermarkSkew < 0 {
		opts.WatermarkSkew = 0
	}
	return &Coordinator{
		feed:       feed,
		ledger:     ledger,
		reconciler: reconciler,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// SetProgressCallback replaces the progress callback. Call it before the
// first cycle.
func (c *Coordinator) SetProgressCallback(cb ProgressCallback) {
	c.opts.OnProgress = cb
}

// Options returns the coordinator's effective settings.
func (c *Coordinator) Options() Options {
	return c.opts
}

// RunCycle performs one sync pass. It never returns nil and never panics on
// collaborator failures; they are reported in the summary.
func (c *Coordinator) RunCycle(ctx context.Context, trigger string) *Summary {
	summary := &Summary{
		RunID:       uuid.NewString(),
		Trigger:     trigger,
		StartedAt:   c.now().UTC(),
		NewDeposits: make([]NewDeposit, 0),
		Errors:      make([]string, 0),
		Success:     true,
	}
	ctx = reconcile.WithRunID(ctx, summary.RunID)

	c.recordStart(ctx, summary)

	if err := c.run(ctx, summary); err != nil {
		failedIn := summary.Phase
		summary.Success = false
		summary.Errors = append(summary.Errors, err.Error())
		c.setPhase(summary, PhaseFailed)
		c.logger.Error("Sync cycle failed",
			"run_id", summary.RunID,
			"phase", failedIn,
			"error", err)
	} else {
		c.setPhase(summary, PhaseDone)
	}

	completed := c.now().UTC()
	summary.CompletedAt = &completed

	c.recordCompletion(ctx, summary)

	c.logger.Info("Sync cycle complete",
		"run_id", summary.RunID,
		"trigger", trigger,
		"fetched", summary.Fetched,
		"new", summary.NewTransactions,
		"deposits", summary.Deposits,
		"withdrawals", summary.Withdrawals,
		"reconciled", summary.Reconciled,
		"errors", len(summary.Errors),
		"success", summary.Success)

	return summary
}

// run executes the phases. A returned error fails the cycle; recoverable
// problems are appended to summary.Errors instead.
func (c *Coordinator) run(ctx context.Context, summary *Summary) error {
	c.setPhase(summary, PhaseFetching)

	accounts, err := c.feed.GetAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch accounts: %w", err)
	}
	summary.AccountsSynced = len(accounts)
	accountNames := make(map[string]string, len(accounts))
	for _, acc := range accounts {
		accountNames[acc.ID] = acc.Name
	}

	since, err := c.fetchWindowStart(ctx)
	if err != nil {
		return err
	}

	c.logger.Debug("Fetching transactions", "run_id", summary.RunID, "since", since)

	page, err := c.feed.GetTransactions(ctx, bank.TransactionQuery{
		Start: since,
		Limit: c.opts.PageSize,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}
	if page == nil {
		page = &bank.TransactionPage{}
	}
	summary.Fetched = len(page.Transactions)

	c.setPhase(summary, PhaseDeduping)

	lastID, err := c.recordNew(ctx, summary, page.Transactions, accountNames)
	if err != nil {
		return err
	}

	if err := c.ledger.UpdateSyncState(ctx, GlobalAccountID, lastID, summary.NewTransactions); err != nil {
		return &LedgerError{Op: "update sync state", Err: err}
	}

	if c.opts.AutoReconcile && c.reconciler != nil && summary.Deposits > 0 {
		c.setPhase(summary, PhaseReconciling)
		if err := c.reconcile(ctx, summary); err != nil {
			return err
		}
	}

	c.setPhase(summary, PhaseSummarizing)
	return nil
}

// fetchWindowStart is the global watermark minus the skew allowance, or nil
// on the first run.
func (c *Coordinator) fetchWindowStart(ctx context.Context) (*time.Time, error) {
	state, err := c.ledger.GetSyncState(ctx, GlobalAccountID)
	if err != nil {
		return nil, &LedgerError{Op: "read sync state", Err: err}
	}
	if state == nil || state.LastSyncAt.IsZero() {
		return nil, nil
	}
	since := state.LastSyncAt.Add(-c.opts.WatermarkSkew)
	return &since, nil
}

// recordNew marks every unseen transaction processed and returns the id of
// the last one.
func (c *Coordinator) recordNew(ctx context.Context, summary *Summary, txns []bank.Transaction, accountNames map[string]string) (string, error) {
	lastID := ""
	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return lastID, err
		}

		seen, err := c.ledger.IsProcessed(ctx, txn.ID)
		if err != nil {
			return lastID, &LedgerError{Op: "check processed", Err: err}
		}
		if seen {
			continue
		}

		record := processedRecord(txn)
		if err := c.ledger.MarkProcessed(ctx, record); err != nil {
			return lastID, &LedgerError{Op: "mark processed", Err: err}
		}

		summary.NewTransactions++
		lastID = txn.ID

		if txn.IsDeposit() {
			summary.Deposits++
			summary.TotalDeposited = summary.TotalDeposited.Add(txn.Amount)
			name, ok := accountNames[txn.AccountID]
			if !ok || name == "" {
				name = defaultAccountName
			}
			summary.NewDeposits = append(summary.NewDeposits, NewDeposit{
				ID:           txn.ID,
				Amount:       txn.Amount,
				Counterparty: record.Description,
				Date:         record.TransactionDate,
				AccountName:  name,
			})
		} else {
			summary.Withdrawals++
		}

		c.report(summary)
	}
	return lastID, nil
}

// reconcile runs the trailing-window batch. Only ledger failures are
// returned; anything else is kept as a cycle error.
func (c *Coordinator) reconcile(ctx context.Context, summary *Summary) error {
	c.logger.Info("Running auto-reconciliation",
		"run_id", summary.RunID,
		"days", c.opts.ReconcileDays,
		"min_confidence", c.opts.MinConfidence)

	result, err := c.reconciler.AutoReconcileDeposits(ctx, c.opts.ReconcileDays, c.opts.MinConfidence)
	if result != nil {
		summary.Reconciliation = result
		summary.Reconciled = result.Reconciled
	}
	if err == nil {
		return nil
	}

	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return err
	}
	c.logger.Error("Auto-reconciliation failed", "run_id", summary.RunID, "error", err)
	summary.Errors = append(summary.Errors, fmt.Sprintf("Reconciliation failed: %v", err))
	return nil
}

func (c *Coordinator) setPhase(summary *Summary, phase string) {
	summary.Phase = phase
	c.report(summary)
}

func (c *Coordinator) report(summary *Summary) {
	if c.opts.OnProgress == nil {
		return
	}
	c.opts.OnProgress(ProgressUpdate{
		RunID:           summary.RunID,
		Phase:           summary.Phase,
		Fetched:         summary.Fetched,
		NewTransactions: summary.NewTransactions,
		Deposits:        summary.Deposits,
		Withdrawals:     summary.Withdrawals,
	})
}

// processedRecord is the ledger row for a newly seen transaction.
func processedRecord(txn bank.Transaction) storage.ProcessedTransaction {
	accountID := txn.AccountID
	if accountID == "" {
		accountID = unknownAccountID
	}
	return storage.ProcessedTransaction{
		TransactionID:   txn.ID,
		AccountID:       accountID,
		Amount:          txn.Amount,
		Type:            txn.Type(),
		Description:     txn.Counterparty(),
		TransactionDate: txn.PostedDate(),
	}
}
