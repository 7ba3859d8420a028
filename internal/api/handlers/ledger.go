package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/mercury-odoo-sync/internal/api/dto"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// LedgerHandler serves the sync ledger's read side.
type LedgerHandler struct {
	*Base
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(repo storage.Repository) *LedgerHandler {
	return &LedgerHandler{
		Base: NewBase(repo),
	}
}

// Unmatched handles GET /api/unmatched - deposits not yet reconciled.
func (h *LedgerHandler) Unmatched(c *gin.Context) {
	params := dto.DefaultUnmatchedParams()
	if !h.BindQuery(c, &params, params.Validate) {
		return
	}

	txns, err := h.repo.GetUnreconciledTransactions(c.Request.Context(), params.Limit)
	if err != nil {
		h.WriteError(c, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.UnmatchedResponse{
		UnmatchedCount: len(txns),
		Transactions:   txns,
	})
}

// Reconciliations handles GET /api/reconciliations - the audit trail,
// optionally for one invoice.
func (h *LedgerHandler) Reconciliations(c *gin.Context) {
	params := dto.DefaultReconciliationListParams()
	if !h.BindQuery(c, &params, nil) {
		return
	}

	entries, err := h.repo.GetReconciliationHistory(c.Request.Context(), params.Limit, params.InvoiceID)
	if err != nil {
		h.WriteError(c, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.ReconciliationListResponse{
		Reconciliations: entries,
		Count:           len(entries),
	})
}

// SyncStates handles GET /api/sync-states - every watermark.
func (h *LedgerHandler) SyncStates(c *gin.Context) {
	states, err := h.repo.ListSyncStates(c.Request.Context())
	if err != nil {
		h.WriteError(c, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.SyncStateListResponse{
		SyncStates: states,
		Count:      len(states),
	})
}
