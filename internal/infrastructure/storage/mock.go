package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu             sync.Mutex
	processed      map[string]*ProcessedTransaction
	syncStates     map[string]*SyncState
	reconciliation []ReconciliationEntry
	syncRuns       map[string]*SyncRun
	apiCalls       []APICall
	nextEntryID    int64
	nextCallID     int64

	// Hooks for test assertions
	MarkProcessedCalls     int
	LogReconciliationCalls int
	UpdateSyncStateCalls   int
	LastSyncStateDelta     int

	// Error injection for testing error paths
	IsProcessedErr       error
	IsReconciledErr      error
	MarkProcessedErr     error
	UpdateSyncStateErr   error
	GetSyncStateErr      error
	LogReconciliationErr error
	GetStatsErr          error
	StartSyncRunErr      error
	CompleteSyncRunErr   error
	LogAPICallErr        error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		processed:   make(map[string]*ProcessedTransaction),
		syncStates:  make(map[string]*SyncState),
		syncRuns:    make(map[string]*SyncRun),
		nextEntryID: 1,
		nextCallID:  1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// IsProcessed checks the in-memory map
func (m *MockRepository) IsProcessed(_ context.Context, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IsProcessedErr != nil {
		return false, m.IsProcessedErr
	}
	_, ok := m.processed[transactionID]
	return ok, nil
}

// IsReconciled checks the in-memory map
func (m *MockRepository) IsReconciled(_ context.Context, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IsReconciledErr != nil {
		return false, m.IsReconciledErr
	}
	txn, ok := m.processed[transactionID]
	return ok && txn.Reconciled, nil
}

// MarkProcessed stores the transaction unless it already exists
func (m *MockRepository) MarkProcessed(_ context.Context, txn ProcessedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkProcessedCalls++
	if m.MarkProcessedErr != nil {
		return m.MarkProcessedErr
	}
	m.insertLocked(txn)
	return nil
}

func (m *MockRepository) insertLocked(txn ProcessedTransaction) {
	if _, exists := m.processed[txn.TransactionID]; exists {
		return
	}
	if txn.ProcessedAt.IsZero() {
		txn.ProcessedAt = time.Now().UTC()
	}
	copied := txn
	m.processed[txn.TransactionID] = &copied
}

// GetProcessedTransaction returns a copy of the stored row
func (m *MockRepository) GetProcessedTransaction(_ context.Context, transactionID string) (*ProcessedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.processed[transactionID]
	if !ok {
		return nil, nil
	}
	copied := *txn
	return &copied, nil
}

// UpdateSyncState upserts the in-memory watermark
func (m *MockRepository) UpdateSyncState(_ context.Context, accountID, lastTransactionID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateSyncStateCalls++
	m.LastSyncStateDelta = delta
	if m.UpdateSyncStateErr != nil {
		return m.UpdateSyncStateErr
	}

	now := time.Now().UTC()
	state, ok := m.syncStates[accountID]
	if !ok {
		state = &SyncState{AccountID: accountID, CreatedAt: now}
		m.syncStates[accountID] = state
	}
	state.LastSyncAt = now
	state.UpdatedAt = now
	state.TransactionCount += delta
	if lastTransactionID != "" {
		state.LastTransactionID = lastTransactionID
	}
	return nil
}

// SetSyncState seeds a watermark (test helper)
func (m *MockRepository) SetSyncState(state SyncState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := state
	m.syncStates[state.AccountID] = &copied
}

// GetSyncState returns a copy of the watermark or nil
func (m *MockRepository) GetSyncState(_ context.Context, accountID string) (*SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetSyncStateErr != nil {
		return nil, m.GetSyncStateErr
	}
	state, ok := m.syncStates[accountID]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

// ListSyncStates returns all watermarks ordered by account id
func (m *MockRepository) ListSyncStates(_ context.Context) ([]SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make([]SyncState, 0, len(m.syncStates))
	for _, state := range m.syncStates {
		states = append(states, *state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].AccountID < states[j].AccountID })
	return states, nil
}

// LogReconciliation mirrors the SQLite upsert and monotonic update
func (m *MockRepository) LogReconciliation(_ context.Context, entry ReconciliationEntry, txn ProcessedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LogReconciliationCalls++
	if m.LogReconciliationErr != nil {
		return m.LogReconciliationErr
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	replaced := false
	for i, existing := range m.reconciliation {
		if existing.TransactionID == entry.TransactionID && existing.InvoiceID == entry.InvoiceID {
			entry.ID = existing.ID
			m.reconciliation[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entry.ID = m.nextEntryID
		m.nextEntryID++
		m.reconciliation = append(m.reconciliation, entry)
	}

	txn.TransactionID = entry.TransactionID
	m.insertLocked(txn)
	row := m.processed[entry.TransactionID]
	if !row.Reconciled {
		invoiceID := entry.InvoiceID
		row.Reconciled = true
		row.InvoiceID = &invoiceID
		row.PaymentID = entry.PaymentID
	}
	return nil
}

// GetUnreconciledTransactions filters unreconciled deposits, newest date first
func (m *MockRepository) GetUnreconciledTransactions(_ context.Context, limit int) ([]ProcessedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}

	txns := make([]ProcessedTransaction, 0)
	for _, txn := range m.processed {
		if !txn.Reconciled && txn.Amount.IsPositive() {
			txns = append(txns, *txn)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].TransactionDate > txns[j].TransactionDate })
	if len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

// GetReconciliationHistory returns entries newest first
func (m *MockRepository) GetReconciliationHistory(_ context.Context, limit int, invoiceID int64) ([]ReconciliationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}

	entries := make([]ReconciliationEntry, 0)
	for i := len(m.reconciliation) - 1; i >= 0; i-- {
		entry := m.reconciliation[i]
		if invoiceID > 0 && entry.InvoiceID != invoiceID {
			continue
		}
		entries = append(entries, entry)
		if len(entries) == limit {
			break
		}
	}
	return entries, nil
}

// GetStats computes stats from the in-memory data
func (m *MockRepository) GetStats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetStatsErr != nil {
		return nil, m.GetStatsErr
	}

	stats := &Stats{TotalTransactions: len(m.processed)}
	for _, txn := range m.processed {
		if txn.Reconciled {
			stats.ReconciledCount++
		} else if txn.Amount.IsPositive() {
			stats.UnreconciledDeposits++
		}
	}
	for _, state := range m.syncStates {
		if stats.LastSync == nil || state.LastSyncAt.After(*stats.LastSync) {
			t := state.LastSyncAt
			stats.LastSync = &t
		}
	}
	return stats, nil
}

// Reset clears the ledger maps
func (m *MockRepository) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = make(map[string]*ProcessedTransaction)
	m.syncStates = make(map[string]*SyncState)
	m.reconciliation = nil
	return nil
}

// StartSyncRun records a run in memory
func (m *MockRepository) StartSyncRun(_ context.Context, runID, kind, trigger string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartSyncRunErr != nil {
		return m.StartSyncRunErr
	}
	m.syncRuns[runID] = &SyncRun{
		ID:        runID,
		Kind:      kind,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
		Status:    RunStatusRunning,
	}
	return nil
}

// CompleteSyncRun marks a run as completed
func (m *MockRepository) CompleteSyncRun(_ context.Context, runID string, result SyncRunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CompleteSyncRunErr != nil {
		return m.CompleteSyncRunErr
	}
	run, ok := m.syncRuns[runID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Fetched = result.Fetched
	run.NewTransactions = result.NewTransactions
	run.Deposits = result.Deposits
	run.Withdrawals = result.Withdrawals
	run.Matched = result.Matched
	run.Reconciled = result.Reconciled
	run.Skipped = result.Skipped
	run.ErrorCount = result.ErrorCount
	run.Status = result.Status()
	run.ErrorMessage = result.ErrorMessage
	return nil
}

// ListSyncRuns returns runs newest first
func (m *MockRepository) ListSyncRuns(_ context.Context, limit int) ([]SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]SyncRun, 0, len(m.syncRuns))
	for _, run := range m.syncRuns {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetSyncRun returns a run or nil
func (m *MockRepository) GetSyncRun(_ context.Context, runID string) (*SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.syncRuns[runID]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

// LogAPICall appends to the in-memory slice
func (m *MockRepository) LogAPICall(_ context.Context, call *APICall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LogAPICallErr != nil {
		return m.LogAPICallErr
	}
	copied := *call
	copied.ID = m.nextCallID
	m.nextCallID++
	m.apiCalls = append(m.apiCalls, copied)
	return nil
}

// GetAPICallsByTransactionID filters calls by transaction
func (m *MockRepository) GetAPICallsByTransactionID(_ context.Context, transactionID string) ([]APICall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]APICall, 0)
	for _, call := range m.apiCalls {
		if call.TransactionID == transactionID {
			calls = append(calls, call)
		}
	}
	return calls, nil
}

// GetAPICallsByRunID filters calls by run
func (m *MockRepository) GetAPICallsByRunID(_ context.Context, runID string) ([]APICall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]APICall, 0)
	for _, call := range m.apiCalls {
		if call.RunID == runID {
			calls = append(calls, call)
		}
	}
	return calls, nil
}

// ProcessedCount returns the number of stored transactions (test helper)
func (m *MockRepository) ProcessedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processed)
}

// APICalls returns all logged calls (test helper)
func (m *MockRepository) APICalls() []APICall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]APICall(nil), m.apiCalls...)
}
