package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/mercury-odoo-sync/internal/application/service"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// Health check statuses
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	Bank       string `json:"bank,omitempty"`
	Accounting string `json:"accounting,omitempty"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	BankConnected        bool              `json:"bank_connected"`
	SchedulerRunning     bool              `json:"scheduler_running"`
	SyncIntervalMinutes  float64           `json:"sync_interval_minutes"`
	AutoReconcile        bool              `json:"auto_reconcile"`
	MinConfidence        float64           `json:"min_confidence"`
	NotificationsEnabled bool              `json:"notifications_enabled"`
	NextRun              *time.Time        `json:"next_run,omitempty"`
	LastSync             *time.Time        `json:"last_sync,omitempty"`
	LastSyncSuccess      *bool             `json:"last_sync_success,omitempty"`
	Current              *service.Progress `json:"current,omitempty"`
	Stats                *storage.Stats    `json:"stats,omitempty"`
}

// UnmatchedResponse lists deposits awaiting reconciliation.
type UnmatchedResponse struct {
	UnmatchedCount int                            `json:"unmatched_count"`
	Transactions   []storage.ProcessedTransaction `json:"transactions"`
}

// ReconciliationListResponse lists reconciliation log entries.
type ReconciliationListResponse struct {
	Reconciliations []storage.ReconciliationEntry `json:"reconciliations"`
	Count           int                           `json:"count"`
}

// SyncStateListResponse lists watermarks.
type SyncStateListResponse struct {
	SyncStates []storage.SyncState `json:"sync_states"`
	Count      int                 `json:"count"`
}

// SyncRunResponse represents a sync run in API responses.
type SyncRunResponse struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Trigger         string `json:"trigger"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
	Fetched         int    `json:"fetched"`
	NewTransactions int    `json:"new_transactions"`
	Deposits        int    `json:"deposits"`
	Withdrawals     int    `json:"withdrawals"`
	Matched         int    `json:"matched"`
	Reconciled      int    `json:"reconciled"`
	Skipped         int    `json:"skipped"`
	ErrorCount      int    `json:"error_count"`
	Status          string `json:"status"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// SyncRunListResponse is returned when listing sync runs.
type SyncRunListResponse struct {
	Runs  []SyncRunResponse `json:"runs"`
	Count int               `json:"count"`
}

// SyncRunDetailResponse is a run with the backend calls it made.
type SyncRunDetailResponse struct {
	SyncRunResponse
	APICalls []storage.APICall `json:"api_calls"`
}

// BankAccountResponse is one account with balances.
type BankAccountResponse struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
}

// BankAccountsResponse lists accounts with totals.
type BankAccountsResponse struct {
	Accounts       []BankAccountResponse `json:"accounts"`
	TotalAvailable decimal.Decimal       `json:"total_available"`
	TotalCurrent   decimal.Decimal       `json:"total_current"`
}

// BalanceResponse is a point-in-time balance summary.
type BalanceResponse struct {
	TotalAvailable decimal.Decimal       `json:"total_available"`
	TotalCurrent   decimal.Decimal       `json:"total_current"`
	Accounts       []BankAccountResponse `json:"accounts"`
	AsOf           string                `json:"as_of"`
}

// BankTransactionResponse is a feed transaction annotated with ledger state.
type BankTransactionResponse struct {
	ID           string          `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	Type         string          `json:"type"`
	Counterparty string          `json:"counterparty,omitempty"`
	Description  string          `json:"description,omitempty"`
	Date         *time.Time      `json:"date,omitempty"`
	Status       string          `json:"status"`
	Reconciled   bool            `json:"reconciled"`
	InvoiceID    *int64          `json:"invoice_id,omitempty"`
}

// BankTransactionsResponse lists feed transactions.
type BankTransactionsResponse struct {
	Transactions []BankTransactionResponse `json:"transactions"`
	Total        int                       `json:"total"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    HealthOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
