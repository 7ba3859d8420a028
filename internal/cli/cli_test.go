package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/mercury-odoo-sync/internal/application/reconcile"
	appsync "github.com/eshaffer321/mercury-odoo-sync/internal/application/sync"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

func TestParseCommandFlags(t *testing.T) {
	t.Run("reconcile defaults", func(t *testing.T) {
		flags, err := ParseCommandFlags(CommandReconcile, nil)
		require.NoError(t, err)
		assert.Equal(t, 7, flags.Days)
		assert.Equal(t, 0.7, flags.MinConfidence)
	})

	t.Run("unmatched default limit", func(t *testing.T) {
		flags, err := ParseCommandFlags(CommandUnmatched, nil)
		require.NoError(t, err)
		assert.Equal(t, 50, flags.Limit)
	})

	tests := []struct {
		name string
		cmd  string
		args []string
	}{
		{name: "days too large", cmd: CommandReconcile, args: []string{"-days", "91"}},
		{name: "confidence too low", cmd: CommandReconcile, args: []string{"-min-confidence", "0.1"}},
		{name: "limit too large", cmd: CommandUnmatched, args: []string{"-limit", "201"}},
		{name: "flag of another command", cmd: CommandStats, args: []string{"-days", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommandFlags(tt.cmd, tt.args)
			assert.Error(t, err)
		})
	}
}

func TestRun_Dispatch(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer

	t.Run("missing command", func(t *testing.T) {
		err := Run(ctx, nil, &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "usage:")
	})

	t.Run("unknown command", func(t *testing.T) {
		err := Run(ctx, []string{"frobnicate"}, &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown command "frobnicate"`)
	})

	t.Run("reset requires confirmation", func(t *testing.T) {
		err := Run(ctx, []string{CommandReset}, &out)
		assert.ErrorIs(t, err, ErrResetNotConfirmed)
	})
}

func TestRun_StatsAgainstLedgerFile(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	t.Setenv("MERCURY_SYNC_DB", filepath.Join(dir, "ledger.db"))
	missingConfig := filepath.Join(dir, "missing.yaml")
	var out bytes.Buffer

	// Act
	err := Run(context.Background(), []string{CommandStats, "-config", missingConfig}, &out)

	// Assert
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Transactions=0 Reconciled=0 UnreconciledDeposits=0")
	assert.Contains(t, out.String(), "Last sync: never")
}

func TestRunLedgerCommand(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *storage.MockRepository {
		t.Helper()
		repo := storage.NewMockRepository()
		require.NoError(t, repo.MarkProcessed(ctx, storage.ProcessedTransaction{
			TransactionID:   "dep-1",
			Amount:          decimal.RequireFromString("125.5"),
			Type:            "credit",
			Description:     "Acme Corp",
			TransactionDate: "2025-03-01",
		}))
		return repo
	}

	t.Run("unmatched", func(t *testing.T) {
		var out bytes.Buffer
		err := runLedgerCommand(ctx, CommandUnmatched, &CommandFlags{Limit: 10}, seed(t), &out)

		require.NoError(t, err)
		assert.Contains(t, out.String(), "1 unmatched deposit(s)")
		assert.Contains(t, out.String(), "$125.50")
		assert.Contains(t, out.String(), "dep-1")
	})

	t.Run("unmatched when empty", func(t *testing.T) {
		var out bytes.Buffer
		err := runLedgerCommand(ctx, CommandUnmatched, &CommandFlags{Limit: 10}, storage.NewMockRepository(), &out)

		require.NoError(t, err)
		assert.Equal(t, "No unmatched deposits.\n", out.String())
	})

	t.Run("stats error is wrapped", func(t *testing.T) {
		repo := seed(t)
		repo.GetStatsErr = assert.AnError

		err := runLedgerCommand(ctx, CommandStats, &CommandFlags{}, repo, &bytes.Buffer{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get stats")
	})

	t.Run("reset clears the ledger", func(t *testing.T) {
		repo := seed(t)
		var out bytes.Buffer

		err := runLedgerCommand(ctx, CommandReset, &CommandFlags{Confirm: true}, repo, &out)

		require.NoError(t, err)
		assert.Equal(t, 0, repo.ProcessedCount())
		assert.Contains(t, out.String(), "Ledger cleared.")
	})
}

func TestPrintCycleSummary(t *testing.T) {
	var out bytes.Buffer
	PrintCycleSummary(&out, &appsync.Summary{
		RunID:           "run-1",
		Fetched:         5,
		NewTransactions: 3,
		Deposits:        2,
		Withdrawals:     1,
		TotalDeposited:  decimal.RequireFromString("300"),
		Errors:          []string{"Reconciliation failed: timeout"},
	})

	assert.Contains(t, out.String(), "Fetched=5 New=3 Deposits=2 Withdrawals=1 Reconciled=0")
	assert.Contains(t, out.String(), "Total deposited: $300.00")
	assert.Contains(t, out.String(), "  - Reconciliation failed: timeout")
	assert.NotContains(t, out.String(), "completed successfully")
}

func TestPrintReconcileSummary(t *testing.T) {
	var out bytes.Buffer
	PrintReconcileSummary(&out, &reconcile.Summary{
		Processed:  2,
		Matched:    1,
		Reconciled: 1,
		Details: []reconcile.Detail{{
			TransactionID: "dep-1",
			InvoiceID:     42,
			Amount:        decimal.RequireFromString("100"),
			MatchType:     "amount_date",
			Confidence:    0.7,
		}},
		Errors: []reconcile.TransactionError{{TransactionID: "dep-2", Error: "no match"}},
	})

	assert.Contains(t, out.String(), "Processed=2 Matched=1 Reconciled=1 Skipped=0 Errors=1")
	assert.Contains(t, out.String(), "dep-1  $100.00 -> #42 (amount_date, 70%)")
	assert.Contains(t, out.String(), "  - dep-2: no match")
}
