// Package matcher decides which open invoice, if any, a bank deposit pays.
//
// Three strategies are tried in order, and the first whose confidence meets
// the caller's minimum wins:
//   - Invoice number found in the counterparty name or memo (1.0)
//   - Exact amount plus a customer email found in the memo (0.9)
//   - Exact amount plus invoice date proximity (0.7 scaled by closeness)
//
// Amounts match within 1 cent. Debits are never matched.
//
// Example usage:
//
//	m := matcher.NewMatcher(backend, matcher.DefaultConfig())
//	result, err := m.FindMatch(ctx, txn, 0.7)
//	if result.Matched {
//		// pay result.InvoiceID
//	}
package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/accounting"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/bank"
)

var (
	amountTolerance = decimal.New(1, -2)

	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// Tried in order; the whole match is the token.
	baseInvoicePatterns = []string{
		`(?i)INV[/-]?\d{4}[/-]\d+`, // INV/2025/0001, INV-2025-0001
		`(?i)Invoice\s*#?\s*(\d+)`, // Invoice #123
		`(?i)Inv\s*#?\s*(\d+)`,     // Inv #123
	}
)

// Matcher matches deposits with open invoices
type Matcher struct {
	source   InvoiceSource
	config   Config
	patterns []*regexp.Regexp
}

// NewMatcher creates a new matcher with the given source and config
func NewMatcher(source InvoiceSource, config Config) *Matcher {
	if config.DateToleranceDays <= 0 {
		config.DateToleranceDays = DefaultConfig().DateToleranceDays
	}
	if config.InvoicePrefix == "" {
		config.InvoicePrefix = DefaultConfig().InvoicePrefix
	}

	patterns := make([]*regexp.Regexp, 0, len(baseInvoicePatterns)+1)
	for _, p := range baseInvoicePatterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	patterns = append(patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(config.InvoicePrefix)+`[/-]?\d+`))

	return &Matcher{
		source:   source,
		config:   config,
		patterns: patterns,
	}
}

// ExtractInvoiceNumber returns the first invoice-number token in text,
// upper-cased, or "".
func (m *Matcher) ExtractInvoiceNumber(text string) string {
	for _, p := range m.patterns {
		if token := p.FindString(text); token != "" {
			return strings.ToUpper(token)
		}
	}
	return ""
}

// ExtractEmail returns the first email address in text, lower-cased, or "".
func ExtractEmail(text string) string {
	return strings.ToLower(emailPattern.FindString(text))
}

// FindMatch runs the strategies in order and returns the first result at or
// above minConfidence. A non-match is not an error; errors come only from the
// invoice source.
func (m *Matcher) FindMatch(ctx context.Context, txn bank.Transaction, minConfidence float64) (MatchResult, error) {
	if !txn.Amount.IsPositive() {
		return MatchResult{Details: "Not a deposit"}, nil
	}

	strategies := []func(context.Context, bank.Transaction) (MatchResult, error){
		m.matchByInvoiceNumber,
		m.matchByAmountAndEmail,
		m.matchByAmountAndDate,
	}
	for _, strategy := range strategies {
		result, err := strategy(ctx, txn)
		if err != nil {
			return MatchResult{}, err
		}
		if result.Matched && result.Confidence >= minConfidence {
			return result, nil
		}
	}

	return MatchResult{Details: "No matching invoice found"}, nil
}

func (m *Matcher) matchByInvoiceNumber(ctx context.Context, txn bank.Transaction) (MatchResult, error) {
	token := m.ExtractInvoiceNumber(txn.SearchText())
	if token == "" {
		return MatchResult{}, nil
	}

	invoices, err := m.source.SearchOpenInvoices(ctx, accounting.InvoiceQuery{NameContains: token, Limit: 1})
	if err != nil {
		return MatchResult{}, fmt.Errorf("failed to search invoices by name: %w", err)
	}
	if len(invoices) == 0 {
		invoices, err = m.source.SearchOpenInvoices(ctx, accounting.InvoiceQuery{RefContains: token, Limit: 1})
		if err != nil {
			return MatchResult{}, fmt.Errorf("failed to search invoices by ref: %w", err)
		}
	}
	if len(invoices) == 0 {
		return MatchResult{}, nil
	}

	inv := invoices[0]
	return MatchResult{
		Matched:     true,
		InvoiceID:   inv.ID,
		InvoiceName: inv.Name,
		MatchType:   MatchTypeInvoiceNumber,
		Confidence:  invoiceNumberConfidence,
		Details:     fmt.Sprintf("Found invoice number '%s' in transaction memo", token),
	}, nil
}

func (m *Matcher) matchByAmountAndEmail(ctx context.Context, txn bank.Transaction) (MatchResult, error) {
	amount := txn.Amount.Abs()
	email := ExtractEmail(txn.SearchText())
	if email == "" || !amount.IsPositive() {
		return MatchResult{}, nil
	}

	partnerID, found, err := m.source.FindPartnerByEmail(ctx, email)
	if err != nil {
		return MatchResult{}, fmt.Errorf("failed to look up partner %s: %w", email, err)
	}
	if !found {
		return MatchResult{}, nil
	}

	q := accounting.ResidualAround(amount, amountTolerance)
	q.PartnerID = partnerID
	q.Limit = 1
	invoices, err := m.source.SearchOpenInvoices(ctx, q)
	if err != nil {
		return MatchResult{}, fmt.Errorf("failed to search invoices for partner %d: %w", partnerID, err)
	}
	if len(invoices) == 0 {
		return MatchResult{}, nil
	}

	inv := invoices[0]
	return MatchResult{
		Matched:     true,
		InvoiceID:   inv.ID,
		InvoiceName: inv.Name,
		MatchType:   MatchTypeAmountEmail,
		Confidence:  amountEmailConfidence,
		Details:     fmt.Sprintf("Matched amount $%s to customer %s", amount.StringFixed(2), email),
	}, nil
}

func (m *Matcher) matchByAmountAndDate(ctx context.Context, txn bank.Transaction) (MatchResult, error) {
	amount := txn.Amount.Abs()
	txnTime, ok := txn.EffectiveDate()
	if !amount.IsPositive() || !ok {
		return MatchResult{}, nil
	}
	txnDay := truncateDay(txnTime)

	invoices, err := m.source.SearchOpenInvoices(ctx, accounting.ResidualAround(amount, amountTolerance))
	if err != nil {
		return MatchResult{}, fmt.Errorf("failed to search invoices by amount: %w", err)
	}

	tolerance := m.config.DateToleranceDays
	var best *accounting.Invoice
	bestDiff := 0
	for i := range invoices {
		inv := &invoices[i]
		invDay, ok := inv.Date()
		if !ok {
			continue
		}

		diff := daysBetween(txnDay, invDay)
		if diff > tolerance {
			continue
		}
		if best == nil || diff < bestDiff || (diff == bestDiff && inv.ID < best.ID) {
			best = inv
			bestDiff = diff
		}
	}
	if best == nil {
		return MatchResult{}, nil
	}

	score := 1.0 - float64(bestDiff)/float64(tolerance+1)
	return MatchResult{
		Matched:     true,
		InvoiceID:   best.ID,
		InvoiceName: best.Name,
		MatchType:   MatchTypeAmountDate,
		Confidence:  amountDateConfidence * score,
		Details:     fmt.Sprintf("Matched amount $%s within %d days", amount.StringFixed(2), tolerance),
	}, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	d := int(truncateDay(a).Sub(truncateDay(b)).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}
