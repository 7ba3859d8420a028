package matcher

import (
	"context"

	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/accounting"
)

// Match types, in the order strategies are tried
const (
	MatchTypeInvoiceNumber = "invoice_number"
	MatchTypeAmountEmail   = "amount_email"
	MatchTypeAmountDate    = "amount_date"
)

// Fixed per-strategy confidences. Only the overall cutoff is configurable.
const (
	invoiceNumberConfidence = 1.0
	amountEmailConfidence   = 0.9
	amountDateConfidence    = 0.7
)

// Config holds matcher configuration
type Config struct {
	DateToleranceDays int    // Default: 60
	InvoicePrefix     string // Default: AIQSO, matches PREFIX-NNN
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		DateToleranceDays: 60,
		InvoicePrefix:     "AIQSO",
	}
}

// InvoiceSource is the read side of the accounting backend the matcher needs.
type InvoiceSource interface {
	SearchOpenInvoices(ctx context.Context, q accounting.InvoiceQuery) ([]accounting.Invoice, error)
	FindPartnerByEmail(ctx context.Context, email string) (partnerID int64, found bool, err error)
}

// MatchResult contains match information
type MatchResult struct {
	Matched     bool    `json:"matched"`
	InvoiceID   int64   `json:"invoice_id,omitempty"`
	InvoiceName string  `json:"invoice_number,omitempty"`
	MatchType   string  `json:"match_type,omitempty"`
	Confidence  float64 `json:"confidence"`
	Details     string  `json:"details,omitempty"`
}
