package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/mercury-odoo-sync/internal/api/dto"
)

const healthProbeTimeout = 5 * time.Second

// HealthHandler handles health check requests.
type HealthHandler struct {
	bank       BankReader
	accounting AccountingProber
}

// NewHealthHandler creates a new health handler. Either prober may be nil.
func NewHealthHandler(bank BankReader, accounting AccountingProber) *HealthHandler {
	return &HealthHandler{bank: bank, accounting: accounting}
}

// Get handles GET /health. It always answers 200 so load balancers can tell
// a degraded process from a dead one.
func (h *HealthHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	response := dto.NewHealthResponse()

	if h.bank != nil {
		health := h.bank.HealthCheck(ctx)
		if health.Connected {
			response.Bank = "connected"
		} else {
			response.Bank = "error: " + health.Error
			response.Status = dto.HealthDegraded
		}
	}

	if h.accounting != nil {
		if _, err := h.accounting.Authenticate(ctx); err != nil {
			response.Accounting = "error: " + err.Error()
			response.Status = dto.HealthDegraded
		} else {
			response.Accounting = "connected"
		}
	}

	c.JSON(http.StatusOK, response)
}
