// Package mercury is a read-only client for the Mercury bank REST API.
package mercury

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/bank"
)

const (
	// DefaultBaseURL is the production API root
	DefaultBaseURL = "https://api.mercury.com/api/v1"

	// MaxPageSize is the largest page the API will return
	MaxPageSize = 500

	defaultTimeout   = 30 * time.Second
	defaultPageLimit = 100
)

// APIError is returned for transport failures (StatusCode 0) and HTTP error
// responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Mercury API error (%d): %s", e.StatusCode, e.Message)
}

// Client talks to the Mercury API with a bearer token.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes a Client
type Option func(*Client)

// WithBaseURL overrides the API root, mostly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new Mercury client. The token is required.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("mercury API token is required")
	}

	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do performs a GET request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("Request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	c.logger.Debug("mercury request",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if resp.StatusCode == http.StatusNoContent || out == nil || len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", endpoint, err)
	}
	return nil
}

// errorMessage extracts "error" or "message" from a JSON error body, falling
// back to the raw text.
func errorMessage(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"error", "message"} {
			if v, ok := payload[key]; ok {
				if s, ok := v.(string); ok {
					return s
				}
				b, _ := json.Marshal(v)
				return string(b)
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// GetAccounts lists all accounts
func (c *Client) GetAccounts(ctx context.Context) ([]bank.Account, error) {
	var resp struct {
		Accounts []bank.Account `json:"accounts"`
	}
	if err := c.do(ctx, "/accounts", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Accounts == nil {
		return []bank.Account{}, nil
	}
	return resp.Accounts, nil
}

// GetAccount fetches one account
func (c *Client) GetAccount(ctx context.Context, accountID string) (*bank.Account, error) {
	var account bank.Account
	if err := c.do(ctx, "/accounts/"+url.PathEscape(accountID), nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetTransactions lists transactions, across all accounts unless
// q.AccountID is set. The limit is capped at MaxPageSize.
func (c *Client) GetTransactions(ctx context.Context, q bank.TransactionQuery) (*bank.TransactionPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	if q.Start != nil {
		params.Set("start", q.Start.Format("2006-01-02"))
	}
	if q.End != nil {
		params.Set("end", q.End.Format("2006-01-02"))
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}

	endpoint := "/transactions"
	if q.AccountID != "" {
		endpoint = "/accounts/" + url.PathEscape(q.AccountID) + "/transactions"
	}

	var page bank.TransactionPage
	if err := c.do(ctx, endpoint, params, &page); err != nil {
		return nil, err
	}
	if page.Transactions == nil {
		page.Transactions = []bank.Transaction{}
	}
	return &page, nil
}

// GetTransaction fetches one transaction
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*bank.Transaction, error) {
	var txn bank.Transaction
	if err := c.do(ctx, "/transactions/"+url.PathEscape(transactionID), nil, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetTreasury fetches the treasury account summary
func (c *Client) GetTreasury(ctx context.Context) (*bank.Treasury, error) {
	var treasury bank.Treasury
	if err := c.do(ctx, "/treasury", nil, &treasury); err != nil {
		return nil, err
	}
	return &treasury, nil
}

// GetTotalBalance sums balances across all accounts
func (c *Client) GetTotalBalance(ctx context.Context) (*bank.BalanceSummary, error) {
	accounts, err := c.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}

	summary := &bank.BalanceSummary{
		TotalAvailable: decimal.Zero,
		TotalCurrent:   decimal.Zero,
		Accounts:       make([]bank.AccountBalance, 0, len(accounts)),
	}
	for _, a := range accounts {
		summary.TotalAvailable = summary.TotalAvailable.Add(a.AvailableBalance)
		summary.TotalCurrent = summary.TotalCurrent.Add(a.CurrentBalance)
		summary.Accounts = append(summary.Accounts, bank.AccountBalance{
			ID:               a.ID,
			Name:             a.Name,
			Type:             a.Type,
			AvailableBalance: a.AvailableBalance,
			CurrentBalance:   a.CurrentBalance,
		})
	}
	return summary, nil
}

// GetRecentDeposits returns credits from the last days days, optionally at or
// above minAmount. Only the first page of the default size is consulted.
func (c *Client) GetRecentDeposits(ctx context.Context, days int, minAmount *decimal.Decimal) ([]bank.Transaction, error) {
	end := c.now()
	start := end.AddDate(0, 0, -days)

	page, err := c.GetTransactions(ctx, bank.TransactionQuery{
		Start: &start,
		End:   &end,
		Limit: defaultPageLimit,
	})
	if err != nil {
		return nil, err
	}

	deposits := make([]bank.Transaction, 0)
	for _, txn := range page.Transactions {
		if !txn.IsDeposit() {
			continue
		}
		if minAmount != nil && minAmount.IsPositive() && txn.Amount.LessThan(*minAmount) {
			continue
		}
		deposits = append(deposits, txn)
	}
	return deposits, nil
}

// HealthCheck probes connectivity by listing accounts. It never returns an
// error; failures are reported in the result.
func (c *Client) HealthCheck(ctx context.Context) bank.Health {
	accounts, err := c.GetAccounts(ctx)
	if err != nil {
		return bank.Health{
			Status:    "unhealthy",
			Connected: false,
			Error:     err.Error(),
			Timestamp: c.now(),
		}
	}
	return bank.Health{
		Status:       "healthy",
		Connected:    true,
		AccountCount: len(accounts),
		Timestamp:    c.now(),
	}
}
