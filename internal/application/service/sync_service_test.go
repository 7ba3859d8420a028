package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/mercury-odoo-sync/internal/adapters/notify"
	"github.com/eshaffer321/mercury-odoo-sync/internal/application/reconcile"
	appsync "github.com/eshaffer321/mercury-odoo-sync/internal/application/sync"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// Helper to create a test logger
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRunner returns a fixed summary. When gate is set each cycle blocks
// until it is closed.
type fakeRunner struct {
	summary  appsync.Summary
	gate     chan struct{}
	started  chan struct{}
	calls    atomic.Int32
	progress appsync.ProgressCallback
}

func (r *fakeRunner) RunCycle(_ context.Context, trigger string) *appsync.Summary {
	r.calls.Add(1)
	if r.progress != nil {
		r.progress(appsync.ProgressUpdate{RunID: "run-1", Phase: appsync.PhaseFetching})
	}
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.gate != nil {
		<-r.gate
	}
	out := r.summary
	out.Trigger = trigger
	completed := time.Now()
	out.CompletedAt = &completed
	return &out
}

func (r *fakeRunner) SetProgressCallback(cb appsync.ProgressCallback) {
	r.progress = cb
}

type stubReconciler struct {
	summary *reconcile.Summary
	err     error
	runID   string
}

func (r *stubReconciler) AutoReconcileDeposits(ctx context.Context, _ int, _ float64) (*reconcile.Summary, error) {
	r.runID = reconcile.RunIDFrom(ctx)
	return r.summary, r.err
}

// recordingNotifier keeps every message it is asked to send.
type recordingNotifier struct {
	mu          sync.Mutex
	newDeposits []notify.Deposit
	reconciled  []notify.Reconciliation
	unmatched   []notify.Deposit
	summaries   []notify.CycleSummary
}

func (n *recordingNotifier) Enabled() bool { return true }

func (n *recordingNotifier) NewDeposit(_ context.Context, d notify.Deposit) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newDeposits = append(n.newDeposits, d)
	return nil
}

func (n *recordingNotifier) Reconciled(_ context.Context, r notify.Reconciliation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reconciled = append(n.reconciled, r)
	return nil
}

func (n *recordingNotifier) Unmatched(_ context.Context, d notify.Deposit) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unmatched = append(n.unmatched, d)
	return nil
}

func (n *recordingNotifier) Summary(_ context.Context, s notify.CycleSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return nil
}

func testConfig() Config {
	return Config{Interval: time.Hour, InitialDelay: time.Hour, AutoReconcile: true, MinConfidence: 0.7}
}

func deposit(id, amount string) appsync.NewDeposit {
	return appsync.NewDeposit{ID: id, Amount: decimal.RequireFromString(amount), Counterparty: "Cust " + id, AccountName: "Checking"}
}

func TestSyncService_RunNow_StoresLastResult(t *testing.T) {
	// Arrange
	runner := &fakeRunner{summary: appsync.Summary{RunID: "run-1", Success: true}}
	svc := NewSyncService(testConfig(), runner, nil, nil, nil, testLogger())

	// Act
	summary, shared := svc.RunNow(context.Background(), storage.TriggerManual)

	// Assert
	require.NotNil(t, summary)
	assert.False(t, shared)
	assert.Equal(t, storage.TriggerManual, summary.Trigger)
	assert.Same(t, summary, svc.LastResult())

	st := svc.Status()
	assert.False(t, st.Running)
	require.NotNil(t, st.LastSyncSuccess)
	assert.True(t, *st.LastSyncSuccess)
	assert.NotNil(t, st.LastSync)
	assert.Nil(t, st.Current, "progress is cleared once the cycle ends")
}

func TestSyncService_RunNow_JoinsRunningCycle(t *testing.T) {
	runner := &fakeRunner{
		summary: appsync.Summary{RunID: "run-1", Success: true},
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	svc := NewSyncService(testConfig(), runner, nil, nil, nil, testLogger())

	var wg sync.WaitGroup
	results := make([]*appsync.Summary, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = svc.RunNow(context.Background(), storage.TriggerTimer)
	}()
	<-runner.started

	st := svc.Status()
	require.NotNil(t, st.Current)
	assert.Equal(t, appsync.PhaseFetching, st.Current.Phase)

	var joined bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], joined = svc.RunNow(context.Background(), storage.TriggerManual)
	}()

	// Give the second caller time to reach the in-flight call before releasing.
	time.Sleep(50 * time.Millisecond)
	close(runner.gate)
	wg.Wait()

	assert.Equal(t, int32(1), runner.calls.Load())
	assert.True(t, joined)
	assert.Same(t, results[0], results[1])
}

func TestSyncService_RunNow_SurvivesCallerCancel(t *testing.T) {
	runner := &fakeRunner{summary: appsync.Summary{Success: true}}
	svc := NewSyncService(testConfig(), runner, nil, nil, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, _ := svc.RunNow(ctx, storage.TriggerManual)

	require.NotNil(t, summary)
	assert.True(t, summary.Success)
}

func TestSyncService_StartStop(t *testing.T) {
	runner := &fakeRunner{summary: appsync.Summary{Success: true}}
	cfg := testConfig()
	cfg.InitialDelay = 10 * time.Millisecond
	svc := NewSyncService(cfg, runner, nil, nil, nil, testLogger())

	require.NoError(t, svc.Start())
	assert.ErrorIs(t, svc.Start(), ErrAlreadyRunning)

	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		st := svc.Status()
		return st.NextRun != nil && time.Until(*st.NextRun) > 30*time.Minute
	}, time.Second, 5*time.Millisecond)

	st := svc.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 60.0, st.IntervalMinutes)
	assert.True(t, st.AutoReconcile)
	assert.Equal(t, 0.7, st.MinConfidence)

	svc.Stop()
	st = svc.Status()
	assert.False(t, st.Running)
	assert.Nil(t, st.NextRun)

	svc.Stop()
}

func TestSyncService_Start_InvalidInterval(t *testing.T) {
	svc := NewSyncService(Config{}, &fakeRunner{}, nil, nil, nil, testLogger())

	err := svc.Start()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sync interval")
}

func TestSyncService_StopBeforeFirstCycle(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewSyncService(testConfig(), runner, nil, nil, nil, testLogger())

	require.NoError(t, svc.Start())
	svc.Stop()

	assert.Zero(t, runner.calls.Load())
}

func TestSyncService_Reconcile(t *testing.T) {
	t.Run("no backend", func(t *testing.T) {
		svc := NewSyncService(testConfig(), &fakeRunner{}, nil, nil, nil, testLogger())

		_, err := svc.Reconcile(context.Background(), 7, 0.7)

		assert.ErrorIs(t, err, ErrAccountingUnavailable)
	})

	t.Run("records a reconcile run", func(t *testing.T) {
		runs := storage.NewMockRepository()
		rec := &stubReconciler{summary: &reconcile.Summary{Processed: 3, Matched: 2, Reconciled: 2, Skipped: 1}}
		svc := NewSyncService(testConfig(), &fakeRunner{}, rec, runs, nil, testLogger())

		summary, err := svc.Reconcile(context.Background(), 7, 0.7)

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Reconciled)
		require.NotEmpty(t, rec.runID)

		run, err := runs.GetSyncRun(context.Background(), rec.runID)
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.Equal(t, storage.RunKindReconcile, run.Kind)
		assert.Equal(t, storage.TriggerManual, run.Trigger)
		assert.Equal(t, 4, run.Deposits)
		assert.Equal(t, 2, run.Reconciled)
		assert.Equal(t, storage.RunStatusCompleted, run.Status)
	})

	t.Run("batch error", func(t *testing.T) {
		runs := storage.NewMockRepository()
		rec := &stubReconciler{summary: &reconcile.Summary{}, err: errors.New("failed to fetch recent deposits: timeout")}
		svc := NewSyncService(testConfig(), &fakeRunner{}, rec, runs, nil, testLogger())

		summary, err := svc.Reconcile(context.Background(), 1, 0.7)

		require.Error(t, err)
		assert.NotNil(t, summary)
		run, getErr := runs.GetSyncRun(context.Background(), rec.runID)
		require.NoError(t, getErr)
		assert.Equal(t, storage.RunStatusFailed, run.Status)
		assert.Contains(t, run.ErrorMessage, "timeout")
	})
}

func TestSyncService_Notifications(t *testing.T) {
	t.Run("reconciled and unmatched with summary", func(t *testing.T) {
		n := &recordingNotifier{}
		runner := &fakeRunner{summary: appsync.Summary{
			Success:         true,
			NewTransactions: 3,
			Reconciled:      1,
			TotalDeposited:  decimal.RequireFromString("300"),
			NewDeposits:     []appsync.NewDeposit{deposit("t1", "100"), deposit("t2", "200")},
			Reconciliation: &reconcile.Summary{
				Reconciled: 1,
				Details: []reconcile.Detail{{
					TransactionID: "t1",
					InvoiceID:     42,
					Amount:        decimal.RequireFromString("100"),
					MatchType:     "amount_date",
					Confidence:    0.7,
				}},
			},
		}}
		svc := NewSyncService(testConfig(), runner, nil, nil, n, testLogger())

		svc.RunNow(context.Background(), storage.TriggerTimer)

		require.Len(t, n.reconciled, 1)
		assert.Equal(t, "Invoice #42", n.reconciled[0].InvoiceName)
		assert.Equal(t, "Cust t1", n.reconciled[0].Counterparty)
		require.Len(t, n.unmatched, 1)
		assert.Equal(t, "t2", n.unmatched[0].TransactionID)
		assert.Empty(t, n.newDeposits)
		require.Len(t, n.summaries, 1)
		assert.Equal(t, notify.CycleSummary{
			NewTransactions: 3,
			Deposits:        2,
			Reconciled:      1,
			Unmatched:       1,
			TotalDeposited:  decimal.RequireFromString("300"),
		}, n.summaries[0])
	})

	t.Run("new deposits when reconciliation did not run", func(t *testing.T) {
		n := &recordingNotifier{}
		runner := &fakeRunner{summary: appsync.Summary{
			Success:         true,
			NewTransactions: 1,
			NewDeposits:     []appsync.NewDeposit{deposit("t1", "100")},
		}}
		svc := NewSyncService(testConfig(), runner, nil, nil, n, testLogger())

		svc.RunNow(context.Background(), storage.TriggerTimer)

		require.Len(t, n.newDeposits, 1)
		assert.Empty(t, n.unmatched)
		assert.Empty(t, n.summaries, "single deposit gets no summary")
	})

	t.Run("failed cycle is not announced", func(t *testing.T) {
		n := &recordingNotifier{}
		runner := &fakeRunner{summary: appsync.Summary{
			Success:     false,
			NewDeposits: []appsync.NewDeposit{deposit("t1", "100")},
		}}
		svc := NewSyncService(testConfig(), runner, nil, nil, n, testLogger())

		svc.RunNow(context.Background(), storage.TriggerTimer)

		assert.Empty(t, n.newDeposits)
	})
}
