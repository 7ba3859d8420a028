// Package notify announces sync results to a chat channel.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Deposit is a newly seen bank deposit.
type Deposit struct {
	TransactionID string
	Amount        decimal.Decimal
	Counterparty  string
	AccountName   string
	Date          string
}

// Reconciliation is a deposit that was settled against an invoice.
type Reconciliation struct {
	Amount       decimal.Decimal
	InvoiceName  string
	Counterparty string
	MatchType    string
	Confidence   float64
}

// CycleSummary totals one sync cycle.
type CycleSummary struct {
	NewTransactions int
	Deposits        int
	Reconciled      int
	Unmatched       int
	TotalDeposited  decimal.Decimal
}

// Notifier sends sync announcements. Implementations return an error only
// when a message could not be delivered.
type Notifier interface {
	Enabled() bool
	NewDeposit(ctx context.Context, d Deposit) error
	Reconciled(ctx context.Context, r Reconciliation) error
	Unmatched(ctx context.Context, d Deposit) error
	Summary(ctx context.Context, s CycleSummary) error
}

// Noop discards every message.
type Noop struct{}

var _ Notifier = Noop{}

func (Noop) Enabled() bool { return false }
func (Noop) NewDeposit(context.Context, Deposit) error { return nil }
func (Noop) Reconciled(context.Context, Reconciliation) error { return nil }
func (Noop) Unmatched(context.Context, Deposit) error { return nil }
func (Noop) Summary(context.Context, CycleSummary) error { return nil }

// dateOrToday formats an optional YYYY-MM-DD date, defaulting to today.
func dateOrToday(date string, now func() time.Time) string {
	if date != "" {
		return date
	}
	return now().Format("2006-01-02")
}
