package storage

import "context"

// Repository defines the complete storage interface.
// This interface allows swapping implementations and makes testing with
// mocks straightforward.
type Repository interface {
	LedgerRepository
	SyncRunRepository
	APICallRepository
	Close() error
}

// LedgerRepository is the sync ledger: dedup, watermarks and the
// reconciliation audit trail.
type LedgerRepository interface {
	// IsProcessed reports whether a transaction has ever been recorded
	IsProcessed(ctx context.Context, transactionID string) (bool, error)

	// IsReconciled reports whether a recorded transaction has been reconciled
	IsReconciled(ctx context.Context, transactionID string) (bool, error)

	// MarkProcessed inserts the transaction if absent; an existing row is kept as is
	MarkProcessed(ctx context.Context, txn ProcessedTransaction) error

	// GetProcessedTransaction returns nil when the transaction was never recorded
	GetProcessedTransaction(ctx context.Context, transactionID string) (*ProcessedTransaction, error)

	// UpdateSyncState upserts the watermark for accountID. An empty
	// lastTransactionID leaves the stored value unchanged; delta is added to
	// the running count.
	UpdateSyncState(ctx context.Context, accountID, lastTransactionID string, delta int) error

	// GetSyncState returns nil when the account has never synced
	GetSyncState(ctx context.Context, accountID string) (*SyncState, error)

	// ListSyncStates returns all watermarks ordered by account id
	ListSyncStates(ctx context.Context) ([]SyncState, error)

	// LogReconciliation records a settled transaction/invoice pair and marks
	// the transaction reconciled, atomically. txn seeds the processed row if
	// the transaction was never recorded by a sync pass.
	LogReconciliation(ctx context.Context, entry ReconciliationEntry, txn ProcessedTransaction) error

	// GetUnreconciledTransactions returns unreconciled deposits, newest first
	GetUnreconciledTransactions(ctx context.Context, limit int) ([]ProcessedTransaction, error)

	// GetReconciliationHistory returns log entries, newest first. invoiceID 0 means all.
	GetReconciliationHistory(ctx context.Context, limit int, invoiceID int64) ([]ReconciliationEntry, error)

	// GetStats returns aggregate ledger statistics
	GetStats(ctx context.Context) (*Stats, error)

	// Reset clears the ledger tables in one transaction
	Reset(ctx context.Context) error
}

// SyncRunRepository handles sync run tracking
type SyncRunRepository interface {
	// StartSyncRun records the start of a run under the given id
	StartSyncRun(ctx context.Context, runID, kind, trigger string) error

	// CompleteSyncRun records the completion of a run
	CompleteSyncRun(ctx context.Context, runID string, result SyncRunResult) error

	// ListSyncRuns returns recent runs, newest first
	ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error)

	// GetSyncRun returns nil when the run does not exist
	GetSyncRun(ctx context.Context, runID string) (*SyncRun, error)
}

// APICallRepository handles accounting-backend call auditing
type APICallRepository interface {
	LogAPICall(ctx context.Context, call *APICall) error
	GetAPICallsByTransactionID(ctx context.Context, transactionID string) ([]APICall, error)
	GetAPICallsByRunID(ctx context.Context, runID string) ([]APICall, error)
}
