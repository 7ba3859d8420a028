package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/mercury-odoo-sync/internal/api/dto"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/bank"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// BankHandler serves read-only views of the bank feed.
type BankHandler struct {
	*Base
	bank BankReader
	now  func() time.Time
}

// NewBankHandler creates a new bank handler.
func NewBankHandler(repo storage.Repository, reader BankReader) *BankHandler {
	return &BankHandler{
		Base: NewBase(repo),
		bank: reader,
		now:  time.Now,
	}
}

// Accounts handles GET /api/bank/accounts.
func (h *BankHandler) Accounts(c *gin.Context) {
	balance, ok := h.balance(c)
	if !ok {
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.BankAccountsResponse{
		Accounts:       toAccountResponses(balance.Accounts),
		TotalAvailable: balance.TotalAvailable,
		TotalCurrent:   balance.TotalCurrent,
	})
}

// Balance handles GET /api/bank/balance.
func (h *BankHandler) Balance(c *gin.Context) {
	balance, ok := h.balance(c)
	if !ok {
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.BalanceResponse{
		TotalAvailable: balance.TotalAvailable,
		TotalCurrent:   balance.TotalCurrent,
		Accounts:       toAccountResponses(balance.Accounts),
		AsOf:           h.now().UTC().Format(time.RFC3339),
	})
}

// Transactions handles GET /api/bank/transactions - recent feed entries
// annotated with their reconciliation state from the ledger.
func (h *BankHandler) Transactions(c *gin.Context) {
	params := dto.DefaultBankTransactionParams()
	if !h.BindQuery(c, &params, params.Validate) {
		return
	}

	start := h.now().AddDate(0, 0, -params.Days)
	page, err := h.bank.GetTransactions(c.Request.Context(), bank.TransactionQuery{
		AccountID: params.AccountID,
		Start:     &start,
		Limit:     params.Limit,
	})
	if err != nil {
		h.WriteError(c, http.StatusBadGateway, dto.UpstreamError(err))
		return
	}

	response := dto.BankTransactionsResponse{
		Transactions: make([]dto.BankTransactionResponse, 0, len(page.Transactions)),
		Total:        page.Total,
	}
	for _, txn := range page.Transactions {
		item := dto.BankTransactionResponse{
			ID:           txn.ID,
			Amount:       txn.Amount,
			Type:         txn.Type(),
			Counterparty: txn.CounterpartyName,
			Description:  txn.BankDescription,
			Status:       txn.Status,
		}
		if date, ok := txn.EffectiveDate(); ok {
			item.Date = &date
		}

		record, err := h.repo.GetProcessedTransaction(c.Request.Context(), txn.ID)
		if err != nil {
			h.WriteError(c, http.StatusInternalServerError, dto.InternalError())
			return
		}
		if record != nil {
			item.Reconciled = record.Reconciled
			item.InvoiceID = record.InvoiceID
		}

		response.Transactions = append(response.Transactions, item)
	}

	h.WriteJSON(c, http.StatusOK, response)
}

// Health handles GET /api/bank/health.
func (h *BankHandler) Health(c *gin.Context) {
	h.WriteJSON(c, http.StatusOK, h.bank.HealthCheck(c.Request.Context()))
}

func (h *BankHandler) balance(c *gin.Context) (*bank.BalanceSummary, bool) {
	balance, err := h.bank.GetTotalBalance(c.Request.Context())
	if err != nil {
		h.WriteError(c, http.StatusBadGateway, dto.UpstreamError(err))
		return nil, false
	}
	return balance, true
}

func toAccountResponses(accounts []bank.AccountBalance) []dto.BankAccountResponse {
	out := make([]dto.BankAccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, dto.BankAccountResponse{
			ID:               a.ID,
			Name:             a.Name,
			Type:             a.Type,
			AvailableBalance: a.AvailableBalance,
			CurrentBalance:   a.CurrentBalance,
		})
	}
	return out
}
