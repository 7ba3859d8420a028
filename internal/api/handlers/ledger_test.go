package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/mercury-odoo-sync/internal/api/dto"
	"github.com/eshaffer321/mercury-odoo-sync/internal/api/handlers"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

func seedLedger(t *testing.T) *storage.MockRepository {
	t.Helper()
	ctx := context.Background()
	repo := storage.NewMockRepository()
	rows := []storage.ProcessedTransaction{
		{TransactionID: "dep-1", Amount: decimal.RequireFromString("100"), Type: "credit", TransactionDate: "2025-03-01"},
		{TransactionID: "dep-2", Amount: decimal.RequireFromString("250"), Type: "credit", TransactionDate: "2025-03-02"},
		{TransactionID: "debit-1", Amount: decimal.RequireFromString("-40"), Type: "debit", TransactionDate: "2025-03-02"},
	}
	for _, row := range rows {
		require.NoError(t, repo.MarkProcessed(ctx, row))
	}
	require.NoError(t, repo.LogReconciliation(ctx, storage.ReconciliationEntry{
		TransactionID:   "dep-1",
		InvoiceID:       42,
		Amount:          decimal.RequireFromString("100"),
		MatchType:       storage.MatchTypeInvoiceNumber,
		MatchConfidence: 1.0,
	}, rows[0]))
	require.NoError(t, repo.UpdateSyncState(ctx, storage.GlobalAccountID, "dep-2", 3))
	return repo
}

func TestLedgerHandler_Unmatched(t *testing.T) {
	t.Run("lists unreconciled deposits", func(t *testing.T) {
		handler := handlers.NewLedgerHandler(seedLedger(t))

		rec := serve(http.MethodGet, "/api/unmatched", "/api/unmatched", handler.Unmatched)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.UnmatchedResponse
		decode(t, rec, &response)
		require.Equal(t, 1, response.UnmatchedCount)
		assert.Equal(t, "dep-2", response.Transactions[0].TransactionID)
	})

	t.Run("rejects out of range limit", func(t *testing.T) {
		handler := handlers.NewLedgerHandler(storage.NewMockRepository())

		rec := serve(http.MethodGet, "/api/unmatched", "/api/unmatched?limit=500", handler.Unmatched)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var response dto.APIError
		decode(t, rec, &response)
		assert.Equal(t, dto.ErrCodeValidation, response.Code)
	})

	t.Run("rejects malformed limit", func(t *testing.T) {
		handler := handlers.NewLedgerHandler(storage.NewMockRepository())

		rec := serve(http.MethodGet, "/api/unmatched", "/api/unmatched?limit=abc", handler.Unmatched)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var response dto.APIError
		decode(t, rec, &response)
		assert.Equal(t, dto.ErrCodeBadRequest, response.Code)
	})
}

func TestLedgerHandler_Reconciliations(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantCount int
	}{
		{name: "all entries", target: "/api/reconciliations", wantCount: 1},
		{name: "matching invoice", target: "/api/reconciliations?invoice_id=42", wantCount: 1},
		{name: "other invoice", target: "/api/reconciliations?invoice_id=7", wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handlers.NewLedgerHandler(seedLedger(t))

			rec := serve(http.MethodGet, "/api/reconciliations", tt.target, handler.Reconciliations)

			assert.Equal(t, http.StatusOK, rec.Code)
			var response dto.ReconciliationListResponse
			decode(t, rec, &response)
			assert.Equal(t, tt.wantCount, response.Count)
			assert.Len(t, response.Reconciliations, tt.wantCount)
		})
	}
}

func TestLedgerHandler_SyncStates(t *testing.T) {
	handler := handlers.NewLedgerHandler(seedLedger(t))

	rec := serve(http.MethodGet, "/api/sync-states", "/api/sync-states", handler.SyncStates)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response dto.SyncStateListResponse
	decode(t, rec, &response)
	require.Equal(t, 1, response.Count)
	assert.Equal(t, storage.GlobalAccountID, response.SyncStates[0].AccountID)
	assert.Equal(t, "dep-2", response.SyncStates[0].LastTransactionID)
	assert.Equal(t, 3, response.SyncStates[0].TransactionCount)
}

func TestStatsHandler_Get(t *testing.T) {
	t.Run("returns ledger stats", func(t *testing.T) {
		handler := handlers.NewStatsHandler(seedLedger(t))

		rec := serve(http.MethodGet, "/api/stats", "/api/stats", handler.Get)

		assert.Equal(t, http.StatusOK, rec.Code)
		var stats storage.Stats
		decode(t, rec, &stats)
		assert.Equal(t, 3, stats.TotalTransactions)
		assert.Equal(t, 1, stats.ReconciledCount)
		assert.Equal(t, 1, stats.UnreconciledDeposits)
		assert.NotNil(t, stats.LastSync)
	})

	t.Run("storage failure is a 500", func(t *testing.T) {
		repo := storage.NewMockRepository()
		repo.GetStatsErr = assert.AnError
		handler := handlers.NewStatsHandler(repo)

		rec := serve(http.MethodGet, "/api/stats", "/api/stats", handler.Get)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
