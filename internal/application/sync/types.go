package sync

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/mercury-odoo-sync/internal/application/reconcile"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/bank"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

const (
	// GlobalAccountID is the watermark key for account-agnostic polling.
	GlobalAccountID = "_global"

	unknownAccountID   = "_unknown"
	defaultAccountName = "Mercury"
)

// Cycle phases, reported through ProgressCallback and Summary.Phase.
const (
	PhaseFetching    = "fetching"
	PhaseDeduping    = "deduping"
	PhaseReconciling = "reconciling"
	PhaseSummarizing = "summarizing"
	PhaseDone        = "done"
	PhaseFailed      = "failed"
)

// LedgerError is fatal for a cycle.
type LedgerError = reconcile.LedgerError

// Feed is the part of the bank feed a cycle reads.
type Feed interface {
	GetAccounts(ctx context.Context) ([]bank.Account, error)
	GetTransactions(ctx context.Context, q bank.TransactionQuery) (*bank.TransactionPage, error)
}

// Ledger is the part of the sync ledger a cycle reads and writes.
type Ledger interface {
	IsProcessed(ctx context.Context, transactionID string) (bool, error)
	MarkProcessed(ctx context.Context, txn storage.ProcessedTransaction) error
	GetSyncState(ctx context.Context, accountID string) (*storage.SyncState, error)
	UpdateSyncState(ctx context.Context, accountID, lastTransactionID string, delta int) error
	StartSyncRun(ctx context.Context, runID, kind, trigger string) error
	CompleteSyncRun(ctx context.Context, runID string, result storage.SyncRunResult) error
}

// Reconciler settles recent deposits. Implemented by reconcile.Orchestrator.
type Reconciler interface {
	AutoReconcileDeposits(ctx context.Context, days int, minConfidence float64) (*reconcile.Summary, error)
}

// Options tunes a Coordinator.
type Options struct {
	AutoReconcile bool
	MinConfidence float64
	ReconcileDays int
	PageSize      int
	WatermarkSkew time.Duration
	OnProgress    ProgressCallback
}

// DefaultOptions returns the standard cycle settings.
func DefaultOptions() Options {
	return Options{
		AutoReconcile: true,
		MinConfidence: 0.7,
		ReconcileDays: 1,
		PageSize:      500,
		WatermarkSkew: time.Hour,
	}
}

// ProgressUpdate is a snapshot of a running cycle.
type ProgressUpdate struct {
	RunID           string
	Phase           string
	Fetched         int
	NewTransactions int
	Deposits        int
	Withdrawals     int
}

// ProgressCallback is invoked on every phase change and once per new transaction.
type ProgressCallback func(update ProgressUpdate)

// NewDeposit describes a deposit first seen by this cycle.
type NewDeposit struct {
	ID           string          `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty"`
	Date         string          `json:"date,omitempty"`
	AccountName  string          `json:"account_name,omitempty"`
}

// Summary is the outcome of one cycle. It is always produced; failures are
// recorded in Errors with Success false.
type Summary struct {
	RunID           string             `json:"run_id"`
	Trigger         string             `json:"trigger"`
	Phase           string             `json:"phase"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	AccountsSynced  int                `json:"accounts_synced"`
	Fetched         int                `json:"fetched"`
	NewTransactions int                `json:"new_transactions"`
	Deposits        int                `json:"deposits"`
	Withdrawals     int                `json:"withdrawals"`
	TotalDeposited  decimal.Decimal    `json:"total_deposited"`
	Reconciled      int                `json:"reconciled"`
	NewDeposits     []NewDeposit       `json:"new_deposits"`
	Reconciliation  *reconcile.Summary `json:"reconciliation_summary,omitempty"`
	Errors          []string           `json:"errors"`
	Success         bool               `json:"success"`
}

// Unreconciled returns the new deposits the cycle did not settle.
func (s *Summary) Unreconciled() []NewDeposit {
	settled := make(map[string]bool)
	if s.Reconciliation != nil {
		for _, d := range s.Reconciliation.Details {
			settled[d.TransactionID] = true
		}
	}

	out := make([]NewDeposit, 0, len(s.NewDeposits))
	for _, d := range s.NewDeposits {
		if !settled[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

func (s *Summary) runResult() storage.SyncRunResult {
	result := storage.SyncRunResult{
		Fetched:         s.Fetched,
		NewTransactions: s.NewTransactions,
		Deposits:        s.Deposits,
		Withdrawals:     s.Withdrawals,
		Reconciled:      s.Reconciled,
		ErrorCount:      len(s.Errors),
		Failed:          !s.Success,
	}
	if s.Reconciliation != nil {
		result.Matched = s.Reconciliation.Matched
		result.Skipped = s.Reconciliation.Skipped
	}
	if len(s.Errors) > 0 {
		result.ErrorMessage = s.Errors[0]
	}
	return result
}
