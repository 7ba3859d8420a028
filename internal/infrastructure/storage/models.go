package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// GlobalAccountID is the reserved sync-state key for account-agnostic polling.
const GlobalAccountID = "_global"

// Match types recorded in the reconciliation log
const (
	MatchTypeInvoiceNumber = "invoice_number"
	MatchTypeAmountEmail   = "amount_email"
	MatchTypeAmountDate    = "amount_date"
)

// ProcessedTransaction is the ledger row for a bank transaction that has been
// seen at least once.
type ProcessedTransaction struct {
	TransactionID   string          `json:"transaction_id"`
	AccountID       string          `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Type            string          `json:"transaction_type"` // credit | debit
	Description     string          `json:"description"`
	TransactionDate string          `json:"transaction_date,omitempty"` // YYYY-MM-DD
	ProcessedAt     time.Time       `json:"processed_at"`
	Reconciled      bool            `json:"reconciled"`
	InvoiceID       *int64          `json:"invoice_id,omitempty"`
	PaymentID       *int64          `json:"payment_id,omitempty"`
}

// SyncState is the watermark for one source account.
type SyncState struct {
	AccountID         string    `json:"account_id"`
	LastSyncAt        time.Time `json:"last_sync_at"`
	LastTransactionID string    `json:"last_transaction_id,omitempty"`
	TransactionCount  int       `json:"transaction_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ReconciliationEntry is one row of the reconciliation audit trail.
type ReconciliationEntry struct {
	ID              int64           `json:"id"`
	TransactionID   string          `json:"transaction_id"`
	InvoiceID       int64           `json:"invoice_id"`
	PaymentID       *int64          `json:"payment_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	MatchType       string          `json:"match_type"`
	MatchConfidence float64         `json:"match_confidence"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Stats summarizes the ledger.
type Stats struct {
	TotalTransactions    int        `json:"total_transactions"`
	ReconciledCount      int        `json:"reconciled_count"`
	UnreconciledDeposits int        `json:"unreconciled_deposits"`
	LastSync             *time.Time `json:"last_sync,omitempty"`
}

// Sync run kinds and triggers
const (
	RunKindSync      = "sync"
	RunKindReconcile = "reconcile"

	TriggerTimer  = "timer"
	TriggerManual = "manual"
	TriggerCLI    = "cli"
)

// Sync run statuses
const (
	RunStatusRunning             = "running"
	RunStatusCompleted           = "completed"
	RunStatusCompletedWithErrors = "completed_with_errors"
	RunStatusFailed              = "failed"
)

// SyncRun records one sync cycle or reconcile batch.
type SyncRun struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	Trigger         string     `json:"trigger"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Fetched         int        `json:"fetched"`
	NewTransactions int        `json:"new_transactions"`
	Deposits        int        `json:"deposits"`
	Withdrawals     int        `json:"withdrawals"`
	Matched         int        `json:"matched"`
	Reconciled      int        `json:"reconciled"`
	Skipped         int        `json:"skipped"`
	ErrorCount      int        `json:"error_count"`
	Status          string     `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// SyncRunResult carries the final counters of a run.
type SyncRunResult struct {
	Fetched         int
	NewTransactions int
	Deposits        int
	Withdrawals     int
	Matched         int
	Reconciled      int
	Skipped         int
	ErrorCount      int
	Failed          bool
	ErrorMessage    string
}

// Status derives the terminal run status from the counters.
func (r SyncRunResult) Status() string {
	switch {
	case r.Failed:
		return RunStatusFailed
	case r.ErrorCount > 0:
		return RunStatusCompletedWithErrors
	default:
		return RunStatusCompleted
	}
}

// APICall is an audited accounting-backend call.
type APICall struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Method        string    `json:"method"`
	RequestJSON   string    `json:"request_json,omitempty"`
	ResponseJSON  string    `json:"response_json,omitempty"`
	Error         string    `json:"error,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}
