package reconcile

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/accounting"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/bank"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/matcher"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// Accounting is the write side of the accounting backend.
type Accounting interface {
	ReadInvoice(ctx context.Context, invoiceID int64) (*accounting.InvoiceDetails, error)
	FindBankJournal(ctx context.Context) (int64, error)
	FindPaymentMethodLine(ctx context.Context, journalID int64) (int64, error)
	CreatePayment(ctx context.Context, draft accounting.PaymentDraft) (int64, error)
	PostPayment(ctx context.Context, paymentID int64) error
	PaymentMoveID(ctx context.Context, paymentID int64) (int64, error)
	OpenReceivableLines(ctx context.Context, moveID int64) ([]int64, error)
	ReconcileLines(ctx context.Context, lineIDs []int64) error
}

// DepositSource lists recent credits from the bank feed.
type DepositSource interface {
	GetRecentDeposits(ctx context.Context, days int, minAmount *decimal.Decimal) ([]bank.Transaction, error)
}

// InvoiceMatcher picks the invoice a deposit pays.
type InvoiceMatcher interface {
	FindMatch(ctx context.Context, txn bank.Transaction, minConfidence float64) (matcher.MatchResult, error)
}

// Ledger is the part of the sync ledger reconciliation reads and writes.
type Ledger interface {
	IsReconciled(ctx context.Context, transactionID string) (bool, error)
	MarkProcessed(ctx context.Context, txn storage.ProcessedTransaction) error
	LogReconciliation(ctx context.Context, entry storage.ReconciliationEntry, txn storage.ProcessedTransaction) error
	LogAPICall(ctx context.Context, call *storage.APICall) error
}

// Outcome is the result of reconciling one transaction.
type Outcome struct {
	Success       bool    `json:"success"`
	TransactionID string  `json:"transaction_id"`
	InvoiceID     int64   `json:"invoice_id,omitempty"`
	InvoiceName   string  `json:"invoice_name,omitempty"`
	PaymentID     int64   `json:"payment_id,omitempty"`
	MatchType     string  `json:"match_type,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Detail describes one successful reconciliation in a batch.
type Detail struct {
	TransactionID string          `json:"transaction_id"`
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceName   string          `json:"invoice_name,omitempty"`
	PaymentID     int64           `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	MatchType     string          `json:"match_type"`
	Confidence    float64         `json:"confidence"`
}

// TransactionError is a per-transaction failure in a batch.
type TransactionError struct {
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error"`
}

// Summary aggregates a batch. Skipped counts deposits that were already
// reconciled and is disjoint from Processed.
type Summary struct {
	RunID      string             `json:"run_id,omitempty"`
	Processed  int                `json:"processed"`
	Matched    int                `json:"matched"`
	Reconciled int                `json:"reconciled"`
	Skipped    int                `json:"skipped"`
	Errors     []TransactionError `json:"errors"`
	Details    []Detail           `json:"details"`
}

func newSummary(runID string) *Summary {
	return &Summary{
		RunID:   runID,
		Errors:  make([]TransactionError, 0),
		Details: make([]Detail, 0),
	}
}

type runIDKey struct{}

// WithRunID tags ctx so audited backend calls are attributed to a run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id carried by ctx, or "".
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
