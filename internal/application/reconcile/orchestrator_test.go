package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/accounting"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/bank"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/matcher"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

type mockAccounting struct {
	mock.Mock
}

func (m *mockAccounting) ReadInvoice(ctx context.Context, invoiceID int64) (*accounting.InvoiceDetails, error) {
	args := m.Called(ctx, invoiceID)
	details, _ := args.Get(0).(*accounting.InvoiceDetails)
	return details, args.Error(1)
}

func (m *mockAccounting) FindBankJournal(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAccounting) FindPaymentMethodLine(ctx context.Context, journalID int64) (int64, error) {
	args := m.Called(ctx, journalID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAccounting) CreatePayment(ctx context.Context, draft accounting.PaymentDraft) (int64, error) {
	args := m.Called(ctx, draft)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAccounting) PostPayment(ctx context.Context, paymentID int64) error {
	return m.Called(ctx, paymentID).Error(0)
}

func (m *mockAccounting) PaymentMoveID(ctx context.Context, paymentID int64) (int64, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAccounting) OpenReceivableLines(ctx context.Context, moveID int64) ([]int64, error) {
	args := m.Called(ctx, moveID)
	lines, _ := args.Get(0).([]int64)
	return lines, args.Error(1)
}

func (m *mockAccounting) ReconcileLines(ctx context.Context, lineIDs []int64) error {
	return m.Called(ctx, lineIDs).Error(0)
}

type stubFeed struct {
	deposits []bank.Transaction
	err      error
	days     int
}

func (s *stubFeed) GetRecentDeposits(_ context.Context, days int, _ *decimal.Decimal) ([]bank.Transaction, error) {
	s.days = days
	return s.deposits, s.err
}

type stubMatcher struct {
	results map[string]matcher.MatchResult
	errs    map[string]error
	seen    []string
}

func (s *stubMatcher) FindMatch(_ context.Context, txn bank.Transaction, _ float64) (matcher.MatchResult, error) {
	s.seen = append(s.seen, txn.ID)
	if err := s.errs[txn.ID]; err != nil {
		return matcher.MatchResult{}, err
	}
	return s.results[txn.ID], nil
}

var benignFault = &accounting.Fault{Code: 1, Message: "cannot marshal None unless allow_none is enabled"}

func deposit(id, amount string) bank.Transaction {
	posted := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return bank.Transaction{
		ID:               id,
		AccountID:        "acc-1",
		Amount:           decimal.RequireFromString(amount),
		CounterpartyName: "Acme Corp",
		PostedAt:         &posted,
	}
}

func invoiceMatch(invoiceID int64) matcher.MatchResult {
	return matcher.MatchResult{
		Matched:     true,
		InvoiceID:   invoiceID,
		InvoiceName: "INV/2025/0001",
		MatchType:   matcher.MatchTypeInvoiceNumber,
		Confidence:  1.0,
	}
}

// expectHappyPayment wires a full successful payment for invoice 42.
func expectHappyPayment(acct *mockAccounting, residual string, postErr, reconcileErr error) {
	acct.On("ReadInvoice", mock.Anything, int64(42)).Return(&accounting.InvoiceDetails{
		ID: 42, PartnerID: 11, CurrencyID: 2, MoveID: 42,
		AmountResidual: decimal.RequireFromString(residual),
	}, nil)
	acct.On("FindBankJournal", mock.Anything).Return(int64(3), nil)
	acct.On("FindPaymentMethodLine", mock.Anything, int64(3)).Return(int64(5), nil)
	acct.On("CreatePayment", mock.Anything, mock.Anything).Return(int64(17), nil)
	acct.On("PostPayment", mock.Anything, int64(17)).Return(postErr)
	acct.On("PaymentMoveID", mock.Anything, int64(17)).Return(int64(900), nil)
	acct.On("OpenReceivableLines", mock.Anything, int64(42)).Return([]int64{1}, nil)
	acct.On("OpenReceivableLines", mock.Anything, int64(900)).Return([]int64{2}, nil)
	acct.On("ReconcileLines", mock.Anything, []int64{1, 2}).Return(reconcileErr)
}

func TestReconcileTransaction_NoMatch(t *testing.T) {
	acct := &mockAccounting{}
	ledger := storage.NewMockRepository()
	o := NewOrchestrator(acct, &stubMatcher{}, ledger, &stubFeed{}, nil)

	outcome, err := o.ReconcileTransaction(context.Background(), deposit("txn-1", "10.00"), matcher.MatchResult{})

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "No match to reconcile", outcome.Error)
	acct.AssertNotCalled(t, "ReadInvoice", mock.Anything, mock.Anything)
	assert.Zero(t, ledger.LogReconciliationCalls)
}

func TestReconcileTransaction_ClampsOverpayment(t *testing.T) {
	// Arrange
	acct := &mockAccounting{}
	expectHappyPayment(acct, "200.00", nil, nil)
	ledger := storage.NewMockRepository()
	o := NewOrchestrator(acct, &stubMatcher{}, ledger, &stubFeed{}, nil)

	// Act
	outcome, err := o.ReconcileTransaction(context.Background(), deposit("txn-1", "250.00"), invoiceMatch(42))

	// Assert
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, int64(17), outcome.PaymentID)

	acct.AssertCalled(t, "CreatePayment", mock.Anything, mock.MatchedBy(func(d accounting.PaymentDraft) bool {
		return d.Amount.Equal(decimal.RequireFromString("200.00")) &&
			d.Memo == "Mercury: txn-1" &&
			d.PartnerID == 11 && d.CurrencyID == 2 && d.JournalID == 3 && d.PaymentMethodLineID == 5 &&
			d.Date.Format("2006-01-02") == "2025-03-10"
	}))

	reconciled, err := ledger.IsReconciled(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.True(t, reconciled)

	history, err := ledger.GetReconciliationHistory(context.Background(), 10, 42)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Amount.Equal(decimal.RequireFromString("250.00")))
	assert.Equal(t, int64(17), *history[0].PaymentID)
}

func TestReconcileTransaction_BenignFaultsAreSuccess(t *testing.T) {
	acct := &mockAccounting{}
	expectHappyPayment(acct, "100.00", benignFault, benignFault)
	ledger := storage.NewMockRepository()
	o := NewOrchestrator(acct, &stubMatcher{}, ledger, &stubFeed{}, nil)

	outcome, err := o.ReconcileTransaction(context.Background(), deposit("txn-1", "100.00"), invoiceMatch(42))

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	acct.AssertCalled(t, "ReconcileLines", mock.Anything, []int64{1, 2})
}

func TestReconcileTransaction_OtherFaultIsFailure(t *testing.T) {
	acct := &mockAccounting{}
	expectHappyPayment(acct, "100.00", &accounting.Fault{Code: 2, Message: "Access denied"}, nil)
	ledger := storage.NewMockRepository()
	o := NewOrchestrator(acct, &stubMatcher{}, ledger, &stubFeed{}, nil)

	outcome, err := o.ReconcileTransaction(context.Background(), deposit("txn-1", "100.00"), invoiceMatch(42))

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, int64(42), outcome.InvoiceID)
	assert.Equal(t, int64(17), outcome.PaymentID)
	assert.Contains(t, outcome.Error, "Access denied")
	assert.Zero(t, ledger.LogReconciliationCalls)
	acct.AssertNotCalled(t, "PaymentMoveID", mock.Anything, mock.Anything)
}

func TestReconcileTransaction_NoBankJournal(t *testing.T) {
	acct := &mockAccounting{}
	acct.On("ReadInvoice", mock.Anything, int64(42)).Return(&accounting.InvoiceDetails{
		ID: 42, PartnerID: 11, CurrencyID: 2, MoveID: 42, AmountResidual: decimal.NewFromInt(100),
	}, nil)
	acct.On("FindBankJournal", mock.Anything).Return(int64(0), accounting.ErrNoBankJournal)
	ledger := storage.NewMockRepository()
	o := NewOrchestrator(acct, &stubMatcher{}, ledger, &stubFeed{}, nil)

	outcome, err := o.ReconcileTransaction(context.Background(), deposit("txn-1", "100.00"), invoiceMatch(42))

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "no bank journal")
	acct.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestReconcileTransaction_SkipsReconcileWithoutOpenLines(t *testing.T) {
	acct := &mockAccounting{}
	acct.On("ReadInvoice", mock.Anything, int64(42)).Return(&accounting.InvoiceDetails{
		ID: 42, PartnerID: 11, CurrencyID: 2, MoveID: 42, AmountResidual: decimal.NewFromInt(100),
	}, nil)
	acct.On("FindBankJournal", mock.Anything).Return(int64(3), nil)
	acct.On("FindPaymentMethodLine", mock.Anything, int64(3)).Return(int64(0), nil)
	acct.On("CreatePayment", mock.Anything, mock.Anything).Return(int64(17), nil)
	acct.On("PostPayment", mock.Anything, int64(17)).Return(nil)
	acct.On("PaymentMoveID", mock.Anything, int64(17)).Return(int64(900), nil)
	acct.On("OpenReceivableLines", mock.Anything, int64(42)).Return([]int64{}, nil)
	acct.On("OpenReceivableLines", mock.Anything, int64(900)).Return([]int64{2}, nil)
	o := NewOrchestrator(acct, &stubMatcher{}, storage.NewMockRepository(), &stubFeed{}, nil)

	outcome, err := o.ReconcileTransaction(context.Background(), deposit("txn-1", "100.00"), invoiceMatch(42))

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	acct.AssertNotCalled(t, "ReconcileLines", mock.Anything, mock.Anything)
}

func TestReconcileTransaction_AuditsBackendCalls(t *testing.T) {
	acct := &mockAccounting{}
	expectHappyPayment(acct, "100.00", nil, nil)
	ledger := storage.NewMockRepository()
	o := NewOrchestrator(acct, &stubMatcher{}, ledger, &stubFeed{}, nil)

	ctx := WithRunID(context.Background(), "run-abc")
	_, err := o.ReconcileTransaction(ctx, deposit("txn-1", "100.00"), invoiceMatch(42))
	require.NoError(t, err)

	calls := ledger.APICalls()
	require.Len(t, calls, 9)
	methods := make([]string, 0, len(calls))
	for _, c := range calls {
		assert.Equal(t, "run-abc", c.RunID)
		assert.Equal(t, "txn-1", c.TransactionID)
		methods = append(methods, c.Method)
	}
	assert.Equal(t, "account.move.read", methods[0])
	assert.Contains(t, methods, "account.payment.create")
	assert.Contains(t, methods, "account.payment.action_post")
	assert.Equal(t, "account.move.line.reconcile", methods[len(methods)-1])
}

func TestReconcileTransaction_LedgerFailureIsReturned(t *testing.T) {
	acct := &mockAccounting{}
	expectHappyPayment(acct, "100.00", nil, nil)
	ledger := storage.NewMockRepository()
	ledger.LogReconciliationErr = errors.New("disk full")
	o := NewOrchestrator(acct, &stubMatcher{}, ledger, &stubFeed{}, nil)

	_, err := o.ReconcileTransaction(context.Background(), deposit("txn-1", "100.00"), invoiceMatch(42))

	require.Error(t, err)
	assert.True(t, IsLedgerError(err))
}

func TestAutoReconcileDeposits_Counts(t *testing.T) {
	// Arrange: 5 deposits, 2 already reconciled, 1 matched, 1 unmatched, 1 match error
	ctx := context.Background()
	ledger := storage.NewMockRepository()
	for _, id := range []string{"done-1", "done-2"} {
		txn := deposit(id, "10.00")
		require.NoError(t, ledger.LogReconciliation(ctx, storage.ReconciliationEntry{
			TransactionID: id, InvoiceID: 1, Amount: txn.Amount, MatchType: matcher.MatchTypeAmountDate,
		}, processedRecord(txn)))
	}

	feed := &stubFeed{deposits: []bank.Transaction{
		deposit("done-1", "10.00"),
		deposit("match", "100.00"),
		deposit("done-2", "10.00"),
		deposit("nomatch", "33.00"),
		deposit("broken", "44.00"),
	}}
	m := &stubMatcher{
		results: map[string]matcher.MatchResult{
			"match":   invoiceMatch(42),
			"nomatch": {Details: "No matching invoice found"},
		},
		errs: map[string]error{"broken": errors.New("backend timeout")},
	}
	acct := &mockAccounting{}
	expectHappyPayment(acct, "100.00", benignFault, nil)
	o := NewOrchestrator(acct, m, ledger, feed, nil)

	// Act
	summary, err := o.AutoReconcileDeposits(ctx, 7, 0.7)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 7, feed.days)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Reconciled)
	require.Len(t, summary.Details, 1)
	assert.Equal(t, "match", summary.Details[0].TransactionID)
	assert.Equal(t, int64(17), summary.Details[0].PaymentID)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "broken", summary.Errors[0].TransactionID)
	assert.Equal(t, []string{"match", "nomatch", "broken"}, m.seen)

	// The unmatched deposit is processed but not reconciled
	row, err := ledger.GetProcessedTransaction(ctx, "nomatch")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.False(t, row.Reconciled)
	assert.Equal(t, "credit", row.Type)
	assert.Equal(t, "2025-03-10", row.TransactionDate)

	// The failed match is left for the next pass
	row, err = ledger.GetProcessedTransaction(ctx, "broken")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestAutoReconcileDeposits_Aborts(t *testing.T) {
	t.Run("feed failure", func(t *testing.T) {
		feed := &stubFeed{err: errors.New("401")}
		o := NewOrchestrator(&mockAccounting{}, &stubMatcher{}, storage.NewMockRepository(), feed, nil)

		summary, err := o.AutoReconcileDeposits(context.Background(), 1, 0.7)
		require.Error(t, err)
		assert.False(t, IsLedgerError(err))
		assert.Zero(t, summary.Processed)
	})

	t.Run("ledger failure", func(t *testing.T) {
		ledger := storage.NewMockRepository()
		ledger.IsReconciledErr = errors.New("locked")
		feed := &stubFeed{deposits: []bank.Transaction{deposit("a", "1.00"), deposit("b", "2.00")}}
		m := &stubMatcher{}
		o := NewOrchestrator(&mockAccounting{}, m, ledger, feed, nil)

		_, err := o.AutoReconcileDeposits(context.Background(), 1, 0.7)
		require.Error(t, err)
		assert.True(t, IsLedgerError(err))
		assert.Empty(t, m.seen)
	})
}

func TestAutoReconcileDeposits_KeepsCallerRunID(t *testing.T) {
	o := NewOrchestrator(&mockAccounting{}, &stubMatcher{}, storage.NewMockRepository(), &stubFeed{}, nil)

	summary, err := o.AutoReconcileDeposits(WithRunID(context.Background(), "cycle-1"), 1, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", summary.RunID)
	assert.NotNil(t, summary.Errors)
	assert.NotNil(t, summary.Details)
}
