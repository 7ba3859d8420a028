// Package accounting defines the records and errors exchanged with the
// accounting backend. The backend owns invoices and payments; this system only
// reads invoices and creates, posts and reconciles payments through it.
package accounting

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice states the matcher searches over.
const (
	MoveTypeCustomerInvoice = "out_invoice"
	StatePosted             = "posted"
	PaymentStateNotPaid     = "not_paid"
	PaymentStatePartial     = "partial"
)

// ErrNoBankJournal is returned when the backend has no bank-type journal to
// receive payments into.
var ErrNoBankJournal = errors.New("no bank journal found")

// Invoice is an open customer invoice as returned by an invoice search.
type Invoice struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Ref            string          `json:"ref,omitempty"`
	PartnerID      int64           `json:"partner_id,omitempty"`
	PartnerName    string          `json:"partner_name,omitempty"`
	AmountTotal    decimal.Decimal `json:"amount_total"`
	AmountResidual decimal.Decimal `json:"amount_residual"`
	InvoiceDate    string          `json:"invoice_date,omitempty"` // YYYY-MM-DD, empty when unset
	Narration      string          `json:"narration,omitempty"`
}

// Date parses InvoiceDate. ok is false when the date is missing or malformed.
func (i Invoice) Date() (time.Time, bool) {
	if i.InvoiceDate == "" {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", i.InvoiceDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// InvoiceQuery narrows an open-invoice search. Every search is implicitly
// restricted to posted customer invoices that are not fully paid.
type InvoiceQuery struct {
	NameContains string
	RefContains  string
	PartnerID    int64
	ResidualMin  *decimal.Decimal
	ResidualMax  *decimal.Decimal
	Limit        int
}

// ResidualAround builds a query for residuals within ±tolerance of amount.
func ResidualAround(amount, tolerance decimal.Decimal) InvoiceQuery {
	lo := amount.Sub(tolerance)
	hi := amount.Add(tolerance)
	return InvoiceQuery{ResidualMin: &lo, ResidualMax: &hi}
}

// InvoiceDetails is what payment creation needs to know about an invoice.
type InvoiceDetails struct {
	ID             int64
	Name           string
	PartnerID      int64
	CurrencyID     int64
	MoveID         int64
	AmountResidual decimal.Decimal
}

// PaymentDraft describes an inbound customer payment to create.
type PaymentDraft struct {
	PartnerID           int64
	CurrencyID          int64
	JournalID           int64
	PaymentMethodLineID int64 // 0 lets the backend choose
	Amount              decimal.Decimal
	Date                time.Time
	Memo                string
}
