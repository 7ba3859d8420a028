package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/mercury-odoo-sync/internal/api/dto"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// RunsHandler handles sync run-related HTTP requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/runs - returns list of sync runs.
func (h *RunsHandler) List(c *gin.Context) {
	limit := ParseIntParam(c, "limit", dto.DefaultSyncRunListParams().Limit)

	runs, err := h.repo.ListSyncRuns(c.Request.Context(), limit)
	if err != nil {
		h.WriteError(c, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.SyncRunListResponse{
		Runs:  make([]dto.SyncRunResponse, 0, len(runs)),
		Count: len(runs),
	}

	for _, run := range runs {
		response.Runs = append(response.Runs, toSyncRunResponse(run))
	}

	h.WriteJSON(c, http.StatusOK, response)
}

// Get handles GET /api/runs/:id - returns a run with its audited backend calls.
func (h *RunsHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("run ID is required"))
		return
	}

	run, err := h.repo.GetSyncRun(c.Request.Context(), id)
	if err != nil {
		h.WriteError(c, http.StatusInternalServerError, dto.InternalError())
		return
	}

	if run == nil {
		h.WriteError(c, http.StatusNotFound, dto.NotFoundError("sync run"))
		return
	}

	calls, err := h.repo.GetAPICallsByRunID(c.Request.Context(), id)
	if err != nil {
		h.WriteError(c, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.SyncRunDetailResponse{
		SyncRunResponse: toSyncRunResponse(*run),
		APICalls:        calls,
	})
}

// toSyncRunResponse converts a storage SyncRun to an API response.
func toSyncRunResponse(run storage.SyncRun) dto.SyncRunResponse {
	response := dto.SyncRunResponse{
		ID:              run.ID,
		Kind:            run.Kind,
		Trigger:         run.Trigger,
		StartedAt:       run.StartedAt.UTC().Format(time.RFC3339),
		Fetched:         run.Fetched,
		NewTransactions: run.NewTransactions,
		Deposits:        run.Deposits,
		Withdrawals:     run.Withdrawals,
		Matched:         run.Matched,
		Reconciled:      run.Reconciled,
		Skipped:         run.Skipped,
		ErrorCount:      run.ErrorCount,
		Status:          run.Status,
		ErrorMessage:    run.ErrorMessage,
	}
	if run.CompletedAt != nil {
		response.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return response
}
