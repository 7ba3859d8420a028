package odoo

import (
	"context"
	"fmt"
	"time"

	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/accounting"
)

// Executor is the raw RPC surface Backend builds on.
type Executor interface {
	Execute(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error)
}

// Backend is the typed accounting view over an Executor. It performs no error
// reclassification; callers decide which faults are benign.
type Backend struct {
	exec Executor
}

// NewBackend wraps an Executor
func NewBackend(exec Executor) *Backend {
	return &Backend{exec: exec}
}

var invoiceFields = []interface{}{
	"id", "name", "partner_id", "amount_total", "amount_residual",
	"invoice_date", "ref", "narration",
}

func cond(field, op string, value interface{}) []interface{} {
	return []interface{}{field, op, value}
}

// SearchOpenInvoices returns posted customer invoices that are not fully paid
// and satisfy q.
func (b *Backend) SearchOpenInvoices(ctx context.Context, q accounting.InvoiceQuery) ([]accounting.Invoice, error) {
	domain := []interface{}{
		cond("move_type", "=", accounting.MoveTypeCustomerInvoice),
		cond("state", "=", accounting.StatePosted),
		cond("payment_state", "in", []interface{}{accounting.PaymentStateNotPaid, accounting.PaymentStatePartial}),
	}
	if q.NameContains != "" {
		domain = append(domain, cond("name", "ilike", q.NameContains))
	}
	if q.RefContains != "" {
		domain = append(domain, cond("ref", "ilike", q.RefContains))
	}
	if q.PartnerID != 0 {
		domain = append(domain, cond("partner_id", "=", q.PartnerID))
	}
	if q.ResidualMin != nil {
		domain = append(domain, cond("amount_residual", ">=", q.ResidualMin.InexactFloat64()))
	}
	if q.ResidualMax != nil {
		domain = append(domain, cond("amount_residual", "<=", q.ResidualMax.InexactFloat64()))
	}

	kwargs := map[string]interface{}{"fields": invoiceFields}
	if q.Limit > 0 {
		kwargs["limit"] = q.Limit
	}

	result, err := b.exec.Execute(ctx, "account.move", "search_read", []interface{}{domain}, kwargs)
	if err != nil {
		return nil, err
	}

	recs := records(result)
	invoices := make([]accounting.Invoice, 0, len(recs))
	for _, rec := range recs {
		id, _ := asInt64(rec["id"])
		partnerID, partnerName := many2one(rec["partner_id"])
		invoices = append(invoices, accounting.Invoice{
			ID:             id,
			Name:           asString(rec["name"]),
			Ref:            asString(rec["ref"]),
			PartnerID:      partnerID,
			PartnerName:    partnerName,
			AmountTotal:    asDecimal(rec["amount_total"]),
			AmountResidual: asDecimal(rec["amount_residual"]),
			InvoiceDate:    asString(rec["invoice_date"]),
			Narration:      asString(rec["narration"]),
		})
	}
	return invoices, nil
}

// FindPartnerByEmail returns the first partner whose email matches,
// case-insensitively. found is false when there is none.
func (b *Backend) FindPartnerByEmail(ctx context.Context, email string) (int64, bool, error) {
	result, err := b.exec.Execute(ctx, "res.partner", "search_read",
		[]interface{}{[]interface{}{cond("email", "=ilike", email)}},
		map[string]interface{}{"fields": []interface{}{"id"}, "limit": 1},
	)
	if err != nil {
		return 0, false, err
	}
	found := ids(records(result))
	if len(found) == 0 {
		return 0, false, nil
	}
	return found[0], true, nil
}

// ReadInvoice reads what payment creation needs from an invoice.
func (b *Backend) ReadInvoice(ctx context.Context, invoiceID int64) (*accounting.InvoiceDetails, error) {
	result, err := b.exec.Execute(ctx, "account.move", "read",
		[]interface{}{[]interface{}{invoiceID}},
		map[string]interface{}{"fields": []interface{}{"name", "currency_id", "partner_id", "amount_residual"}},
	)
	if err != nil {
		return nil, err
	}
	recs := records(result)
	if len(recs) == 0 {
		return nil, fmt.Errorf("invoice %d not found", invoiceID)
	}

	rec := recs[0]
	partnerID, _ := many2one(rec["partner_id"])
	currencyID, _ := many2one(rec["currency_id"])
	return &accounting.InvoiceDetails{
		ID:             invoiceID,
		Name:           asString(rec["name"]),
		PartnerID:      partnerID,
		CurrencyID:     currencyID,
		MoveID:         invoiceID,
		AmountResidual: asDecimal(rec["amount_residual"]),
	}, nil
}

// FindBankJournal returns the first bank-type journal, or
// accounting.ErrNoBankJournal.
func (b *Backend) FindBankJournal(ctx context.Context) (int64, error) {
	result, err := b.exec.Execute(ctx, "account.journal", "search_read",
		[]interface{}{[]interface{}{cond("type", "=", "bank")}},
		map[string]interface{}{"fields": []interface{}{"id"}, "limit": 1},
	)
	if err != nil {
		return 0, err
	}
	found := ids(records(result))
	if len(found) == 0 {
		return 0, accounting.ErrNoBankJournal
	}
	return found[0], nil
}

// FindPaymentMethodLine returns the inbound payment method line of a journal,
// or 0 when the journal has none.
func (b *Backend) FindPaymentMethodLine(ctx context.Context, journalID int64) (int64, error) {
	result, err := b.exec.Execute(ctx, "account.payment.method.line", "search_read",
		[]interface{}{[]interface{}{
			cond("journal_id", "=", journalID),
			cond("payment_type", "=", "inbound"),
		}},
		map[string]interface{}{"fields": []interface{}{"id"}, "limit": 1},
	)
	if err != nil {
		return 0, err
	}
	found := ids(records(result))
	if len(found) == 0 {
		return 0, nil
	}
	return found[0], nil
}

// CreatePayment creates a draft inbound customer payment.
func (b *Backend) CreatePayment(ctx context.Context, draft accounting.PaymentDraft) (int64, error) {
	date := draft.Date
	if date.IsZero() {
		date = time.Now()
	}

	vals := map[string]interface{}{
		"payment_type": "inbound",
		"partner_type": "customer",
		"partner_id":   draft.PartnerID,
		"amount":       draft.Amount.InexactFloat64(),
		"currency_id":  draft.CurrencyID,
		"journal_id":   draft.JournalID,
		"memo":         draft.Memo,
		"date":         date.Format("2006-01-02"),
	}
	if draft.PaymentMethodLineID != 0 {
		vals["payment_method_line_id"] = draft.PaymentMethodLineID
	}

	result, err := b.exec.Execute(ctx, "account.payment", "create", []interface{}{vals}, nil)
	if err != nil {
		return 0, err
	}
	id, ok := asInt64(result)
	if !ok || id == 0 {
		return 0, fmt.Errorf("unexpected payment create result %v", result)
	}
	return id, nil
}

// PostPayment confirms a draft payment. The raw error is returned; the
// backend is known to fault on a successful post.
func (b *Backend) PostPayment(ctx context.Context, paymentID int64) error {
	_, err := b.exec.Execute(ctx, "account.payment", "action_post",
		[]interface{}{[]interface{}{paymentID}}, nil)
	return err
}

// PaymentMoveID reads the journal entry behind a posted payment.
func (b *Backend) PaymentMoveID(ctx context.Context, paymentID int64) (int64, error) {
	result, err := b.exec.Execute(ctx, "account.payment", "read",
		[]interface{}{[]interface{}{paymentID}},
		map[string]interface{}{"fields": []interface{}{"move_id"}},
	)
	if err != nil {
		return 0, err
	}
	recs := records(result)
	if len(recs) == 0 {
		return 0, fmt.Errorf("payment %d not found", paymentID)
	}
	moveID, _ := many2one(recs[0]["move_id"])
	if moveID == 0 {
		return 0, fmt.Errorf("payment %d has no journal entry", paymentID)
	}
	return moveID, nil
}

// OpenReceivableLines lists unreconciled receivable lines of a journal entry.
func (b *Backend) OpenReceivableLines(ctx context.Context, moveID int64) ([]int64, error) {
	result, err := b.exec.Execute(ctx, "account.move.line", "search_read",
		[]interface{}{[]interface{}{
			cond("move_id", "=", moveID),
			cond("account_type", "=", "asset_receivable"),
			cond("reconciled", "=", false),
		}},
		map[string]interface{}{"fields": []interface{}{"id"}},
	)
	if err != nil {
		return nil, err
	}
	return ids(records(result)), nil
}

// ReconcileLines reconciles the given move lines together. Like
// PostPayment, the raw error is returned.
func (b *Backend) ReconcileLines(ctx context.Context, lineIDs []int64) error {
	lines := make([]interface{}, 0, len(lineIDs))
	for _, id := range lineIDs {
		lines = append(lines, id)
	}
	_, err := b.exec.Execute(ctx, "account.move.line", "reconcile", []interface{}{lines}, nil)
	return err
}
