package handlers_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/mercury-odoo-sync/internal/application/reconcile"
	"github.com/eshaffer321/mercury-odoo-sync/internal/application/service"
	appsync "github.com/eshaffer321/mercury-odoo-sync/internal/application/sync"
	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/bank"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// serve routes a single request to h registered at pattern.
func serve(method, pattern, target string, h gin.HandlerFunc) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

type fakeSync struct {
	summary *appsync.Summary

	reconcileSummary *reconcile.Summary
	reconcileErr     error
	gotDays          int
	gotConfidence    float64

	status service.Status
}

func (f *fakeSync) RunNow(_ context.Context, _ string) (*appsync.Summary, bool) {
	return f.summary, false
}

func (f *fakeSync) Reconcile(_ context.Context, days int, minConfidence float64) (*reconcile.Summary, error) {
	f.gotDays = days
	f.gotConfidence = minConfidence
	return f.reconcileSummary, f.reconcileErr
}

func (f *fakeSync) Status() service.Status {
	return f.status
}

type fakeBank struct {
	balance    *bank.BalanceSummary
	balanceErr error
	page       *bank.TransactionPage
	pageErr    error
	gotQuery   bank.TransactionQuery
	health     bank.Health
}

func (f *fakeBank) GetTotalBalance(_ context.Context) (*bank.BalanceSummary, error) {
	return f.balance, f.balanceErr
}

func (f *fakeBank) GetTransactions(_ context.Context, q bank.TransactionQuery) (*bank.TransactionPage, error) {
	f.gotQuery = q
	return f.page, f.pageErr
}

func (f *fakeBank) HealthCheck(_ context.Context) bank.Health {
	return f.health
}

type fakeAccounting struct {
	err error
}

func (f fakeAccounting) Authenticate(_ context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

