// Package reconcile settles matched deposits against invoices in the
// accounting backend and drives batch reconciliation of recent deposits.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/accounting"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/bank"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/matcher"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// LedgerError marks a failure to read or write the sync ledger. It aborts
// whatever batch or cycle it happens in.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Orchestrator creates, posts and reconciles payments for matched deposits.
type Orchestrator struct {
	accounting Accounting
	matcher    InvoiceMatcher
	ledger     Ledger
	feed       DepositSource
	logger     *slog.Logger
	now        func() time.Time

	// batchMu serializes AutoReconcileDeposits
	batchMu sync.Mutex
}

// NewOrchestrator creates a new reconciliation orchestrator
func NewOrchestrator(
	acct Accounting,
	m InvoiceMatcher,
	ledger Ledger,
	feed DepositSource,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		accounting: acct,
		matcher:    m,
		ledger:     ledger,
		feed:       feed,
		logger:     logger,
		now:        time.Now,
	}
}

// ReconcileTransaction pays the matched invoice with txn and records the
// pair in the ledger. Backend failures come back as an unsuccessful Outcome;
// the returned error is non-nil only for ledger failures.
func (o *Orchestrator) ReconcileTransaction(ctx context.Context, txn bank.Transaction, match matcher.MatchResult) (Outcome, error) {
	if !match.Matched || match.InvoiceID == 0 {
		return Outcome{TransactionID: txn.ID, Error: "No match to reconcile"}, nil
	}

	amount := txn.Amount.Abs()
	date := o.now()
	if txn.PostedAt != nil {
		date = *txn.PostedAt
	}

	paymentID, err := o.CreatePayment(ctx, txn.ID, match.InvoiceID, amount, date)
	if err != nil {
		o.logger.Error("Failed to create payment",
			"transaction_id", txn.ID,
			"invoice_id", match.InvoiceID,
			"error", err)
		return Outcome{
			TransactionID: txn.ID,
			InvoiceID:     match.InvoiceID,
			PaymentID:     paymentID,
			MatchType:     match.MatchType,
			Error:         err.Error(),
		}, nil
	}

	entry := storage.ReconciliationEntry{
		TransactionID:   txn.ID,
		InvoiceID:       match.InvoiceID,
		PaymentID:       &paymentID,
		Amount:          amount,
		MatchType:       match.MatchType,
		MatchConfidence: match.Confidence,
	}
	if err := o.ledger.LogReconciliation(ctx, entry, processedRecord(txn)); err != nil {
		return Outcome{}, &LedgerError{Op: "log reconciliation", Err: err}
	}

	o.logger.Info("Reconciled deposit",
		"transaction_id", txn.ID,
		"invoice", match.InvoiceName,
		"payment_id", paymentID,
		"amount", amount.StringFixed(2),
		"match_type", match.MatchType)

	return Outcome{
		Success:       true,
		TransactionID: txn.ID,
		InvoiceID:     match.InvoiceID,
		InvoiceName:   match.InvoiceName,
		PaymentID:     paymentID,
		MatchType:     match.MatchType,
		Confidence:    match.Confidence,
	}, nil
}

// CreatePayment registers an inbound payment of amount against the invoice,
// capped at its residual, posts it and reconciles the receivable lines.
// A non-zero payment id may accompany an error when a step after creation
// failed.
func (o *Orchestrator) CreatePayment(ctx context.Context, transactionID string, invoiceID int64, amount decimal.Decimal, date time.Time) (int64, error) {
	invoice, err := audited(o, ctx, transactionID, "account.move.read", invoiceID, func() (*accounting.InvoiceDetails, error) {
		return o.accounting.ReadInvoice(ctx, invoiceID)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read invoice %d: %w", invoiceID, err)
	}
	if !invoice.AmountResidual.IsPositive() {
		return 0, fmt.Errorf("invoice %d has nothing left to pay", invoiceID)
	}

	journalID, err := audited(o, ctx, transactionID, "account.journal.search_read", "bank", func() (int64, error) {
		return o.accounting.FindBankJournal(ctx)
	})
	if err != nil {
		return 0, err
	}

	methodLineID, err := audited(o, ctx, transactionID, "account.payment.method.line.search_read", journalID, func() (int64, error) {
		return o.accounting.FindPaymentMethodLine(ctx, journalID)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to look up payment method: %w", err)
	}

	draft := accounting.PaymentDraft{
		PartnerID:           invoice.PartnerID,
		CurrencyID:          invoice.CurrencyID,
		JournalID:           journalID,
		PaymentMethodLineID: methodLineID,
		Amount:              decimal.Min(amount.Abs(), invoice.AmountResidual),
		Date:                date,
		Memo:                "Mercury: " + transactionID,
	}
	paymentID, err := audited(o, ctx, transactionID, "account.payment.create", draft, func() (int64, error) {
		return o.accounting.CreatePayment(ctx, draft)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create payment: %w", err)
	}

	_, err = audited(o, ctx, transactionID, "account.payment.action_post", paymentID, func() (struct{}, error) {
		return struct{}{}, o.accounting.PostPayment(ctx, paymentID)
	})
	if err := accounting.ClassifyActionResult(err); err != nil {
		return paymentID, fmt.Errorf("failed to post payment %d: %w", paymentID, err)
	}

	paymentMoveID, err := audited(o, ctx, transactionID, "account.payment.read", paymentID, func() (int64, error) {
		return o.accounting.PaymentMoveID(ctx, paymentID)
	})
	if err != nil {
		return paymentID, fmt.Errorf("failed to read payment %d: %w", paymentID, err)
	}

	invoiceLines, err := audited(o, ctx, transactionID, "account.move.line.search_read", invoice.MoveID, func() ([]int64, error) {
		return o.accounting.OpenReceivableLines(ctx, invoice.MoveID)
	})
	if err != nil {
		return paymentID, fmt.Errorf("failed to read invoice receivable lines: %w", err)
	}
	paymentLines, err := audited(o, ctx, transactionID, "account.move.line.search_read", paymentMoveID, func() ([]int64, error) {
		return o.accounting.OpenReceivableLines(ctx, paymentMoveID)
	})
	if err != nil {
		return paymentID, fmt.Errorf("failed to read payment receivable lines: %w", err)
	}

	if len(invoiceLines) == 0 || len(paymentLines) == 0 {
		o.logger.Warn("Nothing to reconcile, payment left posted",
			"payment_id", paymentID,
			"invoice_lines", len(invoiceLines),
			"payment_lines", len(paymentLines))
		return paymentID, nil
	}

	lines := append(append([]int64{}, invoiceLines...), paymentLines...)
	_, err = audited(o, ctx, transactionID, "account.move.line.reconcile", lines, func() (struct{}, error) {
		return struct{}{}, o.accounting.ReconcileLines(ctx, lines)
	})
	if err := accounting.ClassifyActionResult(err); err != nil {
		return paymentID, fmt.Errorf("failed to reconcile payment %d: %w", paymentID, err)
	}

	return paymentID, nil
}

// AutoReconcileDeposits matches and settles the deposits of the last days
// days. Feed and ledger failures abort the batch and are returned alongside
// the partial summary; match and backend failures are recorded per
// transaction.
func (o *Orchestrator) AutoReconcileDeposits(ctx context.Context, days int, minConfidence float64) (*Summary, error) {
	o.batchMu.Lock()
	defer o.batchMu.Unlock()

	ctx, runID := ensureRunID(ctx)
	summary := newSummary(runID)

	deposits, err := o.feed.GetRecentDeposits(ctx, days, nil)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch recent deposits: %w", err)
	}

	o.logger.Info("Reconciling deposits",
		"run_id", runID,
		"deposits", len(deposits),
		"days", days,
		"min_confidence", minConfidence)

	for _, txn := range deposits {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		reconciled, err := o.ledger.IsReconciled(ctx, txn.ID)
		if err != nil {
			return summary, &LedgerError{Op: "check reconciled", Err: err}
		}
		if reconciled {
			summary.Skipped++
			continue
		}

		summary.Processed++

		match, err := o.matcher.FindMatch(ctx, txn, minConfidence)
		if err != nil {
			o.logger.Warn("Matching failed", "transaction_id", txn.ID, "error", err)
			summary.Errors = append(summary.Errors, TransactionError{TransactionID: txn.ID, Error: err.Error()})
			continue
		}

		if !match.Matched {
			if err := o.ledger.MarkProcessed(ctx, processedRecord(txn)); err != nil {
				return summary, &LedgerError{Op: "mark processed", Err: err}
			}
			o.logger.Debug("No invoice match", "transaction_id", txn.ID, "details", match.Details)
			continue
		}

		summary.Matched++
		outcome, err := o.ReconcileTransaction(ctx, txn, match)
		if err != nil {
			return summary, err
		}
		if !outcome.Success {
			summary.Errors = append(summary.Errors, TransactionError{TransactionID: txn.ID, Error: outcome.Error})
			continue
		}

		summary.Reconciled++
		summary.Details = append(summary.Details, Detail{
			TransactionID: txn.ID,
			InvoiceID:     outcome.InvoiceID,
			InvoiceName:   outcome.InvoiceName,
			PaymentID:     outcome.PaymentID,
			Amount:        txn.Amount,
			MatchType:     outcome.MatchType,
			Confidence:    outcome.Confidence,
		})
	}

	o.logger.Info("Reconciliation batch complete",
		"run_id", runID,
		"processed", summary.Processed,
		"matched", summary.Matched,
		"reconciled", summary.Reconciled,
		"skipped", summary.Skipped,
		"errors", len(summary.Errors))

	return summary, nil
}

// IsLedgerError reports whether err came from the sync ledger.
func IsLedgerError(err error) bool {
	var le *LedgerError
	return errors.As(err, &le)
}

// processedRecord is the ledger row for a bank transaction.
func processedRecord(txn bank.Transaction) storage.ProcessedTransaction {
	return storage.ProcessedTransaction{
		TransactionID:   txn.ID,
		AccountID:       txn.AccountID,
		Amount:          txn.Amount,
		Type:            txn.Type(),
		Description:     txn.Counterparty(),
		TransactionDate: txn.PostedDate(),
	}
}
