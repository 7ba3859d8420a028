package service

import (
	"context"
	"fmt"

	"github.com/eshaffer321/mercury-odoo-sync/internal/adapters/notify"
	appsync "github.com/eshaffer321/mercury-odoo-sync/internal/application/sync"
)

// notifyCycle announces the deposits a cycle saw. When reconciliation ran,
// each settled deposit is announced as reconciled and the rest as unmatched;
// otherwise every deposit is announced as new. A summary follows when more
// than one deposit arrived. Delivery failures are logged only.
func (s *SyncService) notifyCycle(ctx context.Context, summary *appsync.Summary) {
	if !s.notifier.Enabled() || len(summary.NewDeposits) == 0 {
		return
	}

	counterparties := make(map[string]string, len(summary.NewDeposits))
	for _, d := range summary.NewDeposits {
		counterparties[d.ID] = d.Counterparty
	}

	sent := 0
	deliver := func(err error) {
		if err != nil {
			s.logger.Warn("Failed to send notification", "run_id", summary.RunID, "error", err)
			return
		}
		sent++
	}

	unmatched := summary.NewDeposits
	if summary.Reconciliation != nil {
		for _, detail := range summary.Reconciliation.Details {
			counterparty, ok := counterparties[detail.TransactionID]
			if !ok {
				counterparty = "Unknown"
			}
			invoice := detail.InvoiceName
			if invoice == "" {
				invoice = fmt.Sprintf("Invoice #%d", detail.InvoiceID)
			}
			deliver(s.notifier.Reconciled(ctx, notify.Reconciliation{
				Amount:       detail.Amount,
				InvoiceName:  invoice,
				Counterparty: counterparty,
				MatchType:    detail.MatchType,
				Confidence:   detail.Confidence,
			}))
		}

		unmatched = summary.Unreconciled()
		for _, d := range unmatched {
			deliver(s.notifier.Unmatched(ctx, toNotifyDeposit(d)))
		}
	} else {
		for _, d := range summary.NewDeposits {
			deliver(s.notifier.NewDeposit(ctx, toNotifyDeposit(d)))
		}
	}

	if len(summary.NewDeposits) > 1 {
		deliver(s.notifier.Summary(ctx, notify.CycleSummary{
			NewTransactions: summary.NewTransactions,
			Deposits:        len(summary.NewDeposits),
			Reconciled:      summary.Reconciled,
			Unmatched:       len(unmatched),
			TotalDeposited:  summary.TotalDeposited,
		}))
	}

	s.logger.Info("Sent notifications",
		"run_id", summary.RunID,
		"deposits", len(summary.NewDeposits),
		"sent", sent)
}

func toNotifyDeposit(d appsync.NewDeposit) notify.Deposit {
	return notify.Deposit{
		TransactionID: d.ID,
		Amount:        d.Amount,
		Counterparty:  d.Counterparty,
		AccountName:   d.AccountName,
		Date:          d.Date,
	}
}
