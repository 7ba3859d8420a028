// Package bank holds the bank feed's record types as seen by the rest of the
// system. Amounts are signed: positive is a credit (deposit), negative a debit.
package bank

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types as stored in the ledger
const (
	TypeCredit = "credit"
	TypeDebit  = "debit"
)

// Transaction is a single bank feed entry. It is read-only to this system.
type Transaction struct {
	ID               string          `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	AccountID        string          `json:"accountId"`
	CounterpartyName string          `json:"counterpartyName,omitempty"`
	Note             string          `json:"note,omitempty"`
	BankDescription  string          `json:"bankDescription,omitempty"`
	Kind             string          `json:"kind,omitempty"`
	Status           string          `json:"status,omitempty"`
	PostedAt         *time.Time      `json:"postedAt,omitempty"`
	CreatedAt        *time.Time      `json:"createdAt,omitempty"`
}

// IsDeposit reports whether the transaction is a credit.
func (t Transaction) IsDeposit() bool {
	return t.Amount.IsPositive()
}

// Type returns "credit" or "debit".
func (t Transaction) Type() string {
	if t.IsDeposit() {
		return TypeCredit
	}
	return TypeDebit
}

// EffectiveDate is the posted date, falling back to the creation date for
// pending transactions. ok is false when neither is known.
func (t Transaction) EffectiveDate() (time.Time, bool) {
	if t.PostedAt != nil {
		return *t.PostedAt, true
	}
	if t.CreatedAt != nil {
		return *t.CreatedAt, true
	}
	return time.Time{}, false
}

// PostedDate returns the posted date as YYYY-MM-DD, or "" when pending.
func (t Transaction) PostedDate() string {
	if t.PostedAt == nil {
		return ""
	}
	return t.PostedAt.UTC().Format("2006-01-02")
}

// Counterparty returns the counterparty name or "Unknown".
func (t Transaction) Counterparty() string {
	if name := strings.TrimSpace(t.CounterpartyName); name != "" {
		return name
	}
	return "Unknown"
}

// SearchText is the free text the matcher scans for invoice numbers and emails.
func (t Transaction) SearchText() string {
	return t.CounterpartyName + " " + t.Note
}

// Account is a bank account.
type Account struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Status           string          `json:"status"`
	Type             string          `json:"type"`
	Kind             string          `json:"kind,omitempty"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	CurrentBalance   decimal.Decimal `json:"currentBalance"`
	AccountNumber    string          `json:"accountNumber,omitempty"`
	RoutingNumber    string          `json:"routingNumber,omitempty"`
}

// TransactionQuery filters a transaction listing. Zero values mean "unset".
type TransactionQuery struct {
	AccountID string
	Start     *time.Time
	End       *time.Time
	Limit     int
	Offset    int
	Status    string
	Search    string
}

// TransactionPage is one page of a transaction listing.
type TransactionPage struct {
	Total        int           `json:"total"`
	Transactions []Transaction `json:"transactions"`
}

// Treasury is the treasury account summary.
type Treasury struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	CurrentBalance   decimal.Decimal `json:"currentBalance"`
	CreatedAt        *time.Time      `json:"createdAt,omitempty"`
}

// AccountBalance summarizes one account within a BalanceSummary.
type AccountBalance struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
}

// BalanceSummary totals balances across all accounts.
type BalanceSummary struct {
	TotalAvailable decimal.Decimal  `json:"total_available"`
	TotalCurrent   decimal.Decimal  `json:"total_current"`
	Accounts       []AccountBalance `json:"accounts"`
}

// Health is the result of a feed connectivity probe.
type Health struct {
	Status       string    `json:"status"`
	Connected    bool      `json:"connected"`
	AccountCount int       `json:"account_count,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
