package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/mercury-odoo-sync/internal/application/reconcile"
	appsync "github.com/eshaffer321/mercury-odoo-sync/internal/application/sync"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// PrintCycleSummary prints the result of a sync cycle
func PrintCycleSummary(out io.Writer, s *appsync.Summary) {
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintf(out, "Sync %s: Fetched=%d New=%d Deposits=%d Withdrawals=%d Reconciled=%d\n",
		s.RunID, s.Fetched, s.NewTransactions, s.Deposits, s.Withdrawals, s.Reconciled)
	if s.NewTransactions > 0 {
		fmt.Fprintf(out, "Total deposited: $%s\n", s.TotalDeposited.StringFixed(2))
	}

	if len(s.Errors) > 0 {
		fmt.Fprintln(out, "\nErrors:")
		for _, e := range s.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}

	if s.Success {
		fmt.Fprintln(out, "\nSync completed successfully.")
	}
}

// PrintReconcileSummary prints the result of a reconciliation batch
func PrintReconcileSummary(out io.Writer, s *reconcile.Summary) {
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintf(out, "Reconcile: Processed=%d Matched=%d Reconciled=%d Skipped=%d Errors=%d\n",
		s.Processed, s.Matched, s.Reconciled, s.Skipped, len(s.Errors))

	for _, d := range s.Details {
		invoice := d.InvoiceName
		if invoice == "" {
			invoice = fmt.Sprintf("#%d", d.InvoiceID)
		}
		fmt.Fprintf(out, "  %s  $%s -> %s (%s, %.0f%%)\n",
			d.TransactionID, d.Amount.StringFixed(2), invoice, d.MatchType, d.Confidence*100)
	}

	if len(s.Errors) > 0 {
		fmt.Fprintln(out, "\nErrors:")
		for _, e := range s.Errors {
			fmt.Fprintf(out, "  - %s: %s\n", e.TransactionID, e.Error)
		}
	}
}

// PrintUnmatched lists deposits awaiting reconciliation
func PrintUnmatched(out io.Writer, txns []storage.ProcessedTransaction) {
	if len(txns) == 0 {
		fmt.Fprintln(out, "No unmatched deposits.")
		return
	}
	fmt.Fprintf(out, "%d unmatched deposit(s):\n", len(txns))
	for _, t := range txns {
		fmt.Fprintf(out, "  %-10s  %12s  %s  %s\n",
			t.TransactionDate, "$"+t.Amount.StringFixed(2), t.TransactionID, t.Description)
	}
}

// PrintStats prints ledger statistics
func PrintStats(out io.Writer, s *storage.Stats) {
	fmt.Fprintf(out, "Transactions=%d Reconciled=%d UnreconciledDeposits=%d\n",
		s.TotalTransactions, s.ReconciledCount, s.UnreconciledDeposits)
	if s.LastSync != nil {
		fmt.Fprintf(out, "Last sync: %s\n", s.LastSync.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Fprintln(out, "Last sync: never")
	}
}
