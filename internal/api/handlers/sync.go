package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/mercury-odoo-sync/internal/api/dto"
	"github.com/eshaffer321/mercury-odoo-sync/internal/application/reconcile"
	"github.com/eshaffer321/mercury-odoo-sync/internal/application/service"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// SyncHandler handles sync and reconcile requests.
type SyncHandler struct {
	*Base
	sync                 SyncController
	bank                 BankReader
	notificationsEnabled bool
}

// NewSyncHandler creates a new sync handler. bank may be nil.
func NewSyncHandler(repo storage.Repository, sync SyncController, bank BankReader, notificationsEnabled bool) *SyncHandler {
	return &SyncHandler{
		Base:                 NewBase(repo),
		sync:                 sync,
		bank:                 bank,
		notificationsEnabled: notificationsEnabled,
	}
}

// Run handles POST /api/sync - runs a cycle, or waits for the one in
// flight, and returns its summary.
func (h *SyncHandler) Run(c *gin.Context) {
	summary, _ := h.sync.RunNow(c.Request.Context(), storage.TriggerManual)
	h.WriteJSON(c, http.StatusOK, summary)
}

// Reconcile handles POST /api/reconcile - runs a reconciliation batch.
func (h *SyncHandler) Reconcile(c *gin.Context) {
	params := dto.DefaultReconcileParams()
	if !h.BindQuery(c, &params, params.Validate) {
		return
	}

	summary, err := h.sync.Reconcile(c.Request.Context(), params.Days, params.MinConfidence)
	if errors.Is(err, service.ErrAccountingUnavailable) {
		h.WriteError(c, http.StatusServiceUnavailable, dto.UnavailableError("accounting backend"))
		return
	}
	if reconcile.IsLedgerError(err) {
		h.WriteError(c, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if err != nil {
		h.WriteError(c, http.StatusBadGateway, dto.UpstreamError(err))
		return
	}

	h.WriteJSON(c, http.StatusOK, summary)
}

// Status handles GET /api/status - scheduler state plus ledger stats.
func (h *SyncHandler) Status(c *gin.Context) {
	st := h.sync.Status()

	response := dto.StatusResponse{
		SchedulerRunning:     st.Running,
		SyncIntervalMinutes:  st.IntervalMinutes,
		AutoReconcile:        st.AutoReconcile,
		MinConfidence:        st.MinConfidence,
		NotificationsEnabled: h.notificationsEnabled,
		NextRun:              st.NextRun,
		LastSync:             st.LastSync,
		LastSyncSuccess:      st.LastSyncSuccess,
		Current:              st.Current,
	}

	if h.bank != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
		defer cancel()
		response.BankConnected = h.bank.HealthCheck(ctx).Connected
	}

	stats, err := h.repo.GetStats(c.Request.Context())
	if err != nil {
		h.WriteError(c, http.StatusInternalServerError, dto.InternalError())
		return
	}
	response.Stats = stats

	h.WriteJSON(c, http.StatusOK, response)
}
