package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/mercury-odoo-sync/internal/api/dto"
	"github.com/eshaffer321/mercury-odoo-sync/internal/api/handlers"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

func TestRunsHandler_List(t *testing.T) {
	t.Run("returns empty list when no runs", func(t *testing.T) {
		handler := handlers.NewRunsHandler(storage.NewMockRepository())

		rec := serve(http.MethodGet, "/api/runs", "/api/runs", handler.List)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.SyncRunListResponse
		decode(t, rec, &response)
		assert.Empty(t, response.Runs)
		assert.Equal(t, 0, response.Count)
	})

	t.Run("returns runs from repository", func(t *testing.T) {
		// Arrange
		ctx := context.Background()
		repo := storage.NewMockRepository()
		require.NoError(t, repo.StartSyncRun(ctx, "run-1", storage.RunKindSync, storage.TriggerTimer))
		require.NoError(t, repo.CompleteSyncRun(ctx, "run-1", storage.SyncRunResult{Fetched: 10, NewTransactions: 8, Deposits: 3}))
		require.NoError(t, repo.StartSyncRun(ctx, "run-2", storage.RunKindReconcile, storage.TriggerManual))
		require.NoError(t, repo.CompleteSyncRun(ctx, "run-2", storage.SyncRunResult{Matched: 2, Reconciled: 1, ErrorCount: 1}))
		handler := handlers.NewRunsHandler(repo)

		// Act
		rec := serve(http.MethodGet, "/api/runs", "/api/runs", handler.List)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.SyncRunListResponse
		decode(t, rec, &response)
		require.Equal(t, 2, response.Count)

		byID := map[string]dto.SyncRunResponse{}
		for _, run := range response.Runs {
			byID[run.ID] = run
		}
		assert.Equal(t, storage.RunStatusCompleted, byID["run-1"].Status)
		assert.Equal(t, 8, byID["run-1"].NewTransactions)
		assert.NotEmpty(t, byID["run-1"].CompletedAt)
		assert.Equal(t, storage.RunKindReconcile, byID["run-2"].Kind)
		assert.Equal(t, storage.RunStatusCompletedWithErrors, byID["run-2"].Status)
	})

	t.Run("respects limit parameter", func(t *testing.T) {
		ctx := context.Background()
		repo := storage.NewMockRepository()
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, repo.StartSyncRun(ctx, id, storage.RunKindSync, storage.TriggerTimer))
		}
		handler := handlers.NewRunsHandler(repo)

		rec := serve(http.MethodGet, "/api/runs", "/api/runs?limit=2", handler.List)

		var response dto.SyncRunListResponse
		decode(t, rec, &response)
		assert.Equal(t, 2, response.Count)
	})
}

func TestRunsHandler_Get(t *testing.T) {
	t.Run("returns run with its api calls", func(t *testing.T) {
		ctx := context.Background()
		repo := storage.NewMockRepository()
		require.NoError(t, repo.StartSyncRun(ctx, "run-1", storage.RunKindSync, storage.TriggerManual))
		require.NoError(t, repo.LogAPICall(ctx, &storage.APICall{RunID: "run-1", Method: "account.payment.create"}))
		require.NoError(t, repo.LogAPICall(ctx, &storage.APICall{RunID: "other", Method: "account.move.read"}))
		handler := handlers.NewRunsHandler(repo)

		rec := serve(http.MethodGet, "/api/runs/:id", "/api/runs/run-1", handler.Get)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.SyncRunDetailResponse
		decode(t, rec, &response)
		assert.Equal(t, "run-1", response.ID)
		assert.Equal(t, storage.RunStatusRunning, response.Status)
		assert.Empty(t, response.CompletedAt)
		require.Len(t, response.APICalls, 1)
		assert.Equal(t, "account.payment.create", response.APICalls[0].Method)
	})

	t.Run("returns 404 for unknown run", func(t *testing.T) {
		handler := handlers.NewRunsHandler(storage.NewMockRepository())

		rec := serve(http.MethodGet, "/api/runs/:id", "/api/runs/nope", handler.Get)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var response dto.APIError
		decode(t, rec, &response)
		assert.Equal(t, dto.ErrCodeNotFound, response.Code)
	})
}
