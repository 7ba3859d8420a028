package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/mercury-odoo-sync/internal/api/dto"
	"github.com/eshaffer321/mercury-odoo-sync/internal/application/reconcile"
	"github.com/eshaffer321/mercury-odoo-sync/internal/application/service"
	appsync "github.com/eshaffer321/mercury-odoo-sync/internal/application/sync"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/bank"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// SyncController runs cycles and batches on demand. Implemented by
// service.SyncService.
type SyncController interface {
	RunNow(ctx context.Context, trigger string) (*appsync.Summary, bool)
	Reconcile(ctx context.Context, days int, minConfidence float64) (*reconcile.Summary, error)
	Status() service.Status
}

// BankReader is the read side of the bank feed used by the API.
// Implemented by mercury.Client.
type BankReader interface {
	GetTotalBalance(ctx context.Context) (*bank.BalanceSummary, error)
	GetTransactions(ctx context.Context, q bank.TransactionQuery) (*bank.TransactionPage, error)
	HealthCheck(ctx context.Context) bank.Health
}

// AccountingProber checks the accounting backend login. Implemented by
// odoo.Client.
type AccountingProber interface {
	Authenticate(ctx context.Context) (int64, error)
}

// Base provides shared functionality for all handlers.
type Base struct {
	repo storage.Repository
}

// NewBase creates a new base handler with the given repository.
func NewBase(repo storage.Repository) *Base {
	return &Base{repo: repo}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(c *gin.Context, status int, err dto.APIError) {
	c.AbortWithStatusJSON(status, err)
}

// BindQuery fills params from the query string, keeping the prefilled
// defaults for absent keys, then runs validate. It writes a 400 and
// returns false on failure.
func (b *Base) BindQuery(c *gin.Context, params interface{}, validate func() error) bool {
	if err := c.ShouldBindQuery(params); err != nil {
		b.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid query parameters: "+err.Error()))
		return false
	}
	if validate != nil {
		if err := validate(); err != nil {
			b.WriteError(c, http.StatusBadRequest, dto.ValidationError(err.Error()))
			return false
		}
	}
	return true
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(c *gin.Context, name string, defaultVal int) int {
	val := c.Query(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
