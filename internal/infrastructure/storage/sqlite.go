package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Storage provides SQLite database access for the sync ledger.
// It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	return NewStorageWithLogger(dbPath, nil)
}

// NewStorageWithLogger is NewStorage with an explicit logger for migration output.
func NewStorageWithLogger(dbPath string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, err
	}

	// A single connection serializes writers and keeps pragmas consistent.
	db.SetMaxOpenConns(1)

	s := &Storage{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open ledger %s: %w", dbPath, err)
	}

	// Run all pending migrations
	if err := s.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// dsn adds the pragmas every ledger connection needs.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing on success and rolling back otherwise.
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// IsProcessed reports whether a transaction has ever been recorded
func (s *Storage) IsProcessed(ctx context.Context, transactionID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_transactions WHERE transaction_id = ?)`,
		transactionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check processed %s: %w", transactionID, err)
	}
	return exists == 1, nil
}

// IsReconciled reports whether a recorded transaction has been reconciled
func (s *Storage) IsReconciled(ctx context.Context, transactionID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_transactions WHERE transaction_id = ? AND reconciled = 1)`,
		transactionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reconciled %s: %w", transactionID, err)
	}
	return exists == 1, nil
}

// MarkProcessed inserts the transaction if absent. First write wins.
func (s *Storage) MarkProcessed(ctx context.Context, txn ProcessedTransaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertProcessed(ctx, tx, txn, s.now())
	})
}

func insertProcessed(ctx context.Context, tx *sql.Tx, txn ProcessedTransaction, now time.Time) error {
	processedAt := txn.ProcessedAt
	if processedAt.IsZero() {
		processedAt = now
	}

	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_transactions
		(transaction_id, account_id, amount, transaction_type, description, transaction_date, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		txn.TransactionID,
		txn.AccountID,
		txn.Amount.InexactFloat64(),
		txn.Type,
		txn.Description,
		nullString(txn.TransactionDate),
		processedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s processed: %w", txn.TransactionID, err)
	}
	return nil
}

// UpdateSyncState upserts the watermark for accountID
func (s *Storage) UpdateSyncState(ctx context.Context, accountID, lastTransactionID string, delta int) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_state
			(account_id, last_sync_at, last_transaction_id, transaction_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_id) DO UPDATE SET
				last_sync_at = excluded.last_sync_at,
				last_transaction_id = COALESCE(excluded.last_transaction_id, sync_state.last_transaction_id),
				transaction_count = sync_state.transaction_count + excluded.transaction_count,
				updated_at = excluded.updated_at
		`, accountID, now, nullString(lastTransactionID), delta, now, now)
		if err != nil {
			return fmt.Errorf("failed to update sync state for %s: %w", accountID, err)
		}
		return nil
	})
}

// GetSyncState returns nil when the account has never synced
func (s *Storage) GetSyncState(ctx context.Context, accountID string) (*SyncState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, last_sync_at, last_transaction_id, transaction_count, created_at, updated_at
		FROM sync_state WHERE account_id = ?
	`, accountID)

	state, err := scanSyncState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state for %s: %w", accountID, err)
	}
	return state, nil
}

// ListSyncStates returns all watermarks ordered by account id
func (s *Storage) ListSyncStates(ctx context.Context) ([]SyncState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, last_sync_at, last_transaction_id, transaction_count, created_at, updated_at
		FROM sync_state ORDER BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	states := make([]SyncState, 0)
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSyncState(row rowScanner) (*SyncState, error) {
	var state SyncState
	var lastTxn sql.NullString
	err := row.Scan(
		&state.AccountID,
		&state.LastSyncAt,
		&lastTxn,
		&state.TransactionCount,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	state.LastTransactionID = lastTxn.String
	return &state, nil
}

// LogReconciliation records a settled transaction/invoice pair and flips the
// processed row to reconciled in the same transaction. A row that is already
// reconciled keeps its original invoice and payment.
func (s *Storage) LogReconciliation(ctx context.Context, entry ReconciliationEntry, txn ProcessedTransaction) error {
	now := s.now()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reconciliation_log
			(transaction_id, invoice_id, payment_id, amount, match_type, match_confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(transaction_id, invoice_id) DO UPDATE SET
				payment_id = excluded.payment_id,
				amount = excluded.amount,
				match_type = excluded.match_type,
				match_confidence = excluded.match_confidence,
				created_at = excluded.created_at
		`,
			entry.TransactionID,
			entry.InvoiceID,
			nullInt64(entry.PaymentID),
			entry.Amount.InexactFloat64(),
			entry.MatchType,
			entry.MatchConfidence,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to log reconciliation for %s: %w", entry.TransactionID, err)
		}

		txn.TransactionID = entry.TransactionID
		if err := insertProcessed(ctx, tx, txn, now); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE processed_transactions
			SET reconciled = 1, invoice_id = ?, payment_id = ?
			WHERE transaction_id = ? AND reconciled = 0
		`, entry.InvoiceID, nullInt64(entry.PaymentID), entry.TransactionID)
		if err != nil {
			return fmt.Errorf("failed to mark %s reconciled: %w", entry.TransactionID, err)
		}
		return nil
	})
}

// GetUnreconciledTransactions returns unreconciled deposits, newest first
func (s *Storage) GetUnreconciledTransactions(ctx context.Context, limit int) ([]ProcessedTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, account_id, amount, transaction_type, description,
		       transaction_date, processed_at, reconciled, invoice_id, payment_id
		FROM processed_transactions
		WHERE reconciled = 0 AND amount > 0
		ORDER BY transaction_date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unreconciled transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	txns := make([]ProcessedTransaction, 0)
	for rows.Next() {
		txn, err := scanProcessed(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// GetProcessedTransaction returns nil when the transaction was never recorded.
func (s *Storage) GetProcessedTransaction(ctx context.Context, transactionID string) (*ProcessedTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, account_id, amount, transaction_type, description,
		       transaction_date, processed_at, reconciled, invoice_id, payment_id
		FROM processed_transactions WHERE transaction_id = ?
	`, transactionID)

	txn, err := scanProcessed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction %s: %w", transactionID, err)
	}
	return txn, nil
}

func scanProcessed(row rowScanner) (*ProcessedTransaction, error) {
	var txn ProcessedTransaction
	var amount float64
	var txnDate sql.NullString
	var invoiceID, paymentID sql.NullInt64

	err := row.Scan(
		&txn.TransactionID,
		&txn.AccountID,
		&amount,
		&txn.Type,
		&txn.Description,
		&txnDate,
		&txn.ProcessedAt,
		&txn.Reconciled,
		&invoiceID,
		&paymentID,
	)
	if err != nil {
		return nil, err
	}

	txn.Amount = decimal.NewFromFloat(amount)
	txn.TransactionDate = txnDate.String
	txn.InvoiceID = int64Ptr(invoiceID)
	txn.PaymentID = int64Ptr(paymentID)
	return &txn, nil
}

// GetReconciliationHistory returns log entries, newest first
func (s *Storage) GetReconciliationHistory(ctx context.Context, limit int, invoiceID int64) ([]ReconciliationEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, transaction_id, invoice_id, payment_id, amount, match_type, match_confidence, created_at
		FROM reconciliation_log`
	args := []interface{}{}
	if invoiceID > 0 {
		query += ` WHERE invoice_id = ?`
		args = append(args, invoiceID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]ReconciliationEntry, 0)
	for rows.Next() {
		var entry ReconciliationEntry
		var amount float64
		var paymentID sql.NullInt64
		err := rows.Scan(
			&entry.ID,
			&entry.TransactionID,
			&entry.InvoiceID,
			&paymentID,
			&amount,
			&entry.MatchType,
			&entry.MatchConfidence,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entry.Amount = decimal.NewFromFloat(amount)
		entry.PaymentID = int64Ptr(paymentID)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetStats returns aggregate ledger statistics
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN reconciled = 1 THEN 1 END),
			COUNT(CASE WHEN reconciled = 0 AND amount > 0 THEN 1 END)
		FROM processed_transactions
	`).Scan(&stats.TotalTransactions, &stats.ReconciledCount, &stats.UnreconciledDeposits)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ledger stats: %w", err)
	}

	// Ordering instead of MAX() keeps the column type, so the driver returns a time.Time.
	var lastSync time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT last_sync_at FROM sync_state ORDER BY last_sync_at DESC LIMIT 1`,
	).Scan(&lastSync)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read last sync: %w", err)
	default:
		stats.LastSync = &lastSync
	}

	return stats, nil
}

// Reset clears the ledger tables in one transaction
func (s *Storage) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"reconciliation_log", "processed_transactions", "sync_state"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		s.logger.Warn("ledger reset")
		return nil
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
