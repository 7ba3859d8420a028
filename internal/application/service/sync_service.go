// Package service schedules sync cycles and exposes them to the API and CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/eshaffer321/mercury-odoo-sync/internal/adapters/notify"
	"github.com/eshaffer321/mercury-odoo-sync/internal/application/reconcile"
	appsync "github.com/eshaffer321/mercury-odoo-sync/internal/application/sync"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// ErrAccountingUnavailable is returned by Reconcile when no accounting
// backend is configured.
var ErrAccountingUnavailable = errors.New("accounting backend not configured")

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler already running")

const (
	// DefaultInitialDelay is how long after Start the first cycle runs.
	DefaultInitialDelay = 5 * time.Second

	// DefaultCycleTimeout bounds a single cycle, including notifications.
	DefaultCycleTimeout = 10 * time.Minute

	cycleKey = appsync.GlobalAccountID
)

// CycleRunner runs one sync cycle. Implemented by sync.Coordinator.
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger string) *appsync.Summary
}

// Reconciler runs a reconciliation batch. Implemented by reconcile.Orchestrator.
type Reconciler interface {
	AutoReconcileDeposits(ctx context.Context, days int, minConfidence float64) (*reconcile.Summary, error)
}

// Config holds scheduler settings.
type Config struct {
	Interval      time.Duration
	InitialDelay  time.Duration
	CycleTimeout  time.Duration
	AutoReconcile bool
	MinConfidence float64
}

// Progress is the live state of the cycle in flight.
type Progress struct {
	RunID           string    `json:"run_id"`
	Phase           string    `json:"phase"`
	Fetched         int       `json:"fetched"`
	NewTransactions int       `json:"new_transactions"`
	Deposits        int       `json:"deposits"`
	Withdrawals     int       `json:"withdrawals"`
	LastUpdate      time.Time `json:"last_update"`
}

// Status describes the scheduler.
type Status struct {
	Running         bool       `json:"running"`
	IntervalMinutes float64    `json:"interval_minutes"`
	AutoReconcile   bool       `json:"auto_reconcile"`
	MinConfidence   float64    `json:"min_confidence"`
	NextRun         *time.Time `json:"next_run,omitempty"`
	LastSync        *time.Time `json:"last_sync,omitempty"`
	LastSyncSuccess *bool      `json:"last_sync_success,omitempty"`
	Current         *Progress  `json:"current,omitempty"`
}

// SyncService owns the sync schedule. Cycles never overlap: a trigger that
// arrives while a cycle is running joins it and receives its summary.
type SyncService struct {
	cfg        Config
	runner     CycleRunner
	reconciler Reconciler
	runs       storage.SyncRunRepository
	notifier   notify.Notifier
	logger     *slog.Logger

	group singleflight.Group

	mu         sync.RWMutex
	running    bool
	nextRun    *time.Time
	lastResult *appsync.Summary
	current    *Progress

	stop chan struct{}
	done chan struct{}
}

// NewSyncService creates a sync service. reconciler may be nil when no
// accounting backend is configured; notifier may be nil to disable
// announcements.
func NewSyncService(
	cfg Config,
	runner CycleRunner,
	reconciler Reconciler,
	runs storage.SyncRunRepository,
	notifier notify.Notifier,
	logger *slog.Logger,
) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}

	s := &SyncService{
		cfg:        cfg,
		runner:     runner,
		reconciler: reconciler,
		runs:       runs,
		notifier:   notifier,
		logger:     logger,
	}
	if p, ok := runner.(interface {
		SetProgressCallback(appsync.ProgressCallback)
	}); ok {
		p.SetProgressCallback(s.recordProgress)
	}
	return s
}

// Start launches the schedule: one cycle after the initial delay, then one
// every interval until Stop.
func (s *SyncService) Start() error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("invalid sync interval: %v", s.cfg.Interval)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.setNextRunLocked(time.Now().Add(s.cfg.InitialDelay))
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go s.loop(stop, done)

	s.logger.Info("Background scheduler started",
		"interval", s.cfg.Interval,
		"initial_delay", s.cfg.InitialDelay,
		"auto_reconcile", s.cfg.AutoReconcile)
	return nil
}

// Stop halts the schedule and waits for a cycle in flight to finish.
func (s *SyncService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.nextRun = nil
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	s.logger.Info("Background scheduler stopped")
}

func (s *SyncService) loop(stop, done chan struct{}) {
	defer close(done)

	initial := time.NewTimer(s.cfg.InitialDelay)
	defer initial.Stop()

	select {
	case <-stop:
		return
	case <-initial.C:
	}

	s.logger.Info("Running initial sync")
	s.tick()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *SyncService) tick() {
	s.RunNow(context.Background(), storage.TriggerTimer)

	s.mu.Lock()
	if s.running {
		s.setNextRunLocked(time.Now().Add(s.cfg.Interval))
	}
	s.mu.Unlock()
}

// RunNow runs a cycle, or joins the one already running. shared reports
// whether the summary came from a cycle started by another caller. The
// cycle is not cancelled when ctx is; it is bounded by the cycle timeout.
func (s *SyncService) RunNow(ctx context.Context, trigger string) (summary *appsync.Summary, shared bool) {
	v, _, shared := s.group.Do(cycleKey, func() (interface{}, error) {
		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CycleTimeout)
		defer cancel()
		return s.runCycle(cycleCtx, trigger), nil
	})
	summary = v.(*appsync.Summary)
	if shared {
		s.logger.Debug("Joined running sync cycle", "run_id", summary.RunID, "trigger", trigger)
	}
	return summary, shared
}

func (s *SyncService) runCycle(ctx context.Context, trigger string) *appsync.Summary {
	summary := s.runner.RunCycle(ctx, trigger)

	s.mu.Lock()
	s.lastResult = summary
	s.current = nil
	s.mu.Unlock()

	if summary.Success {
		s.notifyCycle(ctx, summary)
	}
	return summary
}

// Reconcile runs a manual reconciliation batch and records it as a run.
func (s *SyncService) Reconcile(ctx context.Context, days int, minConfidence float64) (*reconcile.Summary, error) {
	if s.reconciler == nil {
		return nil, ErrAccountingUnavailable
	}

	runID := uuid.NewString()
	ctx = reconcile.WithRunID(ctx, runID)
	if s.runs != nil {
		if err := s.runs.StartSyncRun(ctx, runID, storage.RunKindReconcile, storage.TriggerManual); err != nil {
			s.logger.Warn("Failed to record reconcile run start", "run_id", runID, "error", err)
		}
	}

	summary, err := s.reconciler.AutoReconcileDeposits(ctx, days, minConfidence)

	if s.runs != nil {
		result := storage.SyncRunResult{Failed: err != nil}
		if summary != nil {
			result.Deposits = summary.Processed + summary.Skipped
			result.Matched = summary.Matched
			result.Reconciled = summary.Reconciled
			result.Skipped = summary.Skipped
			result.ErrorCount = len(summary.Errors)
		}
		if err != nil {
			result.ErrorMessage = err.Error()
		}
		if recErr := s.runs.CompleteSyncRun(context.WithoutCancel(ctx), runID, result); recErr != nil {
			s.logger.Warn("Failed to record reconcile run completion", "run_id", runID, "error", recErr)
		}
	}

	if err != nil {
		return summary, fmt.Errorf("reconciliation failed: %w", err)
	}
	return summary, nil
}

// Status reports the schedule, the last result and the cycle in flight.
func (s *SyncService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:         s.running,
		IntervalMinutes: s.cfg.Interval.Minutes(),
		AutoReconcile:   s.cfg.AutoReconcile,
		MinConfidence:   s.cfg.MinConfidence,
	}
	if s.nextRun != nil {
		next := *s.nextRun
		st.NextRun = &next
	}
	if s.lastResult != nil {
		st.LastSync = s.lastResult.CompletedAt
		success := s.lastResult.Success
		st.LastSyncSuccess = &success
	}
	if s.current != nil {
		current := *s.current
		st.Current = &current
	}
	return st
}

// LastResult returns the most recent cycle summary, or nil.
func (s *SyncService) LastResult() *appsync.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// recordProgress is the coordinator's progress callback.
func (s *SyncService) recordProgress(u appsync.ProgressUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &Progress{
		RunID:           u.RunID,
		Phase:           u.Phase,
		Fetched:         u.Fetched,
		NewTransactions: u.NewTransactions,
		Deposits:        u.Deposits,
		Withdrawals:     u.Withdrawals,
		LastUpdate:      time.Now(),
	}
}

func (s *SyncService) setNextRunLocked(t time.Time) {
	s.nextRun = &t
}
