package dto

import "fmt"

// ReconcileParams are the query parameters of POST /api/reconcile.
type ReconcileParams struct {
	Days          int     `form:"days"`
	MinConfidence float64 `form:"min_confidence"`
}

// UnmatchedParams are the query parameters of GET /api/unmatched.
type UnmatchedParams struct {
	Limit int `form:"limit"`
}

// ReconciliationListParams are the query parameters of GET /api/reconciliations.
type ReconciliationListParams struct {
	Limit     int   `form:"limit"`
	InvoiceID int64 `form:"invoice_id"`
}

// BankTransactionParams are the query parameters of GET /api/bank/transactions.
type BankTransactionParams struct {
	AccountID string `form:"account_id"`
	Limit     int    `form:"limit"`
	Days      int    `form:"days"`
}

// SyncRunListParams represents query parameters for listing sync runs.
type SyncRunListParams struct {
	Limit int `form:"limit"`
}

// DefaultReconcileParams returns default values for reconcile params.
func DefaultReconcileParams() ReconcileParams {
	return ReconcileParams{Days: 7, MinConfidence: 0.7}
}

// Validate checks the reconcile bounds.
func (p ReconcileParams) Validate() error {
	if p.Days < 1 || p.Days > 90 {
		return fmt.Errorf("days must be between 1 and 90")
	}
	if p.MinConfidence < 0.2 || p.MinConfidence > 1.0 {
		return fmt.Errorf("min_confidence must be between 0.2 and 1.0")
	}
	return nil
}

// DefaultUnmatchedParams returns default values for unmatched params.
func DefaultUnmatchedParams() UnmatchedParams {
	return UnmatchedParams{Limit: 50}
}

// Validate checks the unmatched bounds.
func (p UnmatchedParams) Validate() error {
	if p.Limit < 1 || p.Limit > 200 {
		return fmt.Errorf("limit must be between 1 and 200")
	}
	return nil
}

// DefaultReconciliationListParams returns default values for history params.
func DefaultReconciliationListParams() ReconciliationListParams {
	return ReconciliationListParams{Limit: 50}
}

// DefaultBankTransactionParams returns default values for bank transaction params.
func DefaultBankTransactionParams() BankTransactionParams {
	return BankTransactionParams{Limit: 50, Days: 30}
}

// Validate checks the bank transaction bounds.
func (p BankTransactionParams) Validate() error {
	if p.Limit < 1 || p.Limit > 500 {
		return fmt.Errorf("limit must be between 1 and 500")
	}
	if p.Days < 1 || p.Days > 365 {
		return fmt.Errorf("days must be between 1 and 365")
	}
	return nil
}

// DefaultSyncRunListParams returns default values for sync run list params.
func DefaultSyncRunListParams() SyncRunListParams {
	return SyncRunListParams{
		Limit: 20,
	}
}
