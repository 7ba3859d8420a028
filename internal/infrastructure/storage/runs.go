package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StartSyncRun records the start of a run
func (s *Storage) StartSyncRun(ctx context.Context, runID, kind, trigger string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, kind, trigger_source, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, runID, kind, trigger, s.now(), RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to start sync run %s: %w", runID, err)
	}
	return nil
}

// CompleteSyncRun records the completion of a run
func (s *Storage) CompleteSyncRun(ctx context.Context, runID string, result SyncRunResult) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET completed_at = ?,
		    fetched = ?,
		    new_transactions = ?,
		    deposits = ?,
		    withdrawals = ?,
		    matched = ?,
		    reconciled = ?,
		    skipped = ?,
		    error_count = ?,
		    status = ?,
		    error_message = ?
		WHERE id = ?
	`,
		s.now(),
		result.Fetched,
		result.NewTransactions,
		result.Deposits,
		result.Withdrawals,
		result.Matched,
		result.Reconciled,
		result.Skipped,
		result.ErrorCount,
		result.Status(),
		result.ErrorMessage,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete sync run %s: %w", runID, err)
	}
	return nil
}

const syncRunColumns = `id, kind, trigger_source, started_at, completed_at, fetched, new_transactions,
	deposits, withdrawals, matched, reconciled, skipped, error_count, status, error_message`

// ListSyncRuns returns recent runs, newest first
func (s *Storage) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]SyncRun, 0)
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetSyncRun returns nil when the run does not exist
func (s *Storage) GetSyncRun(ctx context.Context, runID string) (*SyncRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`, runID)
	run, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync run %s: %w", runID, err)
	}
	return run, nil
}

func scanSyncRun(row rowScanner) (*SyncRun, error) {
	var run SyncRun
	var completedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Kind,
		&run.Trigger,
		&run.StartedAt,
		&completedAt,
		&run.Fetched,
		&run.NewTransactions,
		&run.Deposits,
		&run.Withdrawals,
		&run.Matched,
		&run.Reconciled,
		&run.Skipped,
		&run.ErrorCount,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

// LogAPICall logs an accounting-backend call
func (s *Storage) LogAPICall(ctx context.Context, call *APICall) error {
	ts := call.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_calls
		(run_id, transaction_id, method, request_json, response_json, error, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		call.RunID,
		call.TransactionID,
		call.Method,
		call.RequestJSON,
		call.ResponseJSON,
		call.Error,
		call.DurationMs,
		ts,
	)
	return err
}

// GetAPICallsByTransactionID retrieves all calls made for one bank transaction
func (s *Storage) GetAPICallsByTransactionID(ctx context.Context, transactionID string) ([]APICall, error) {
	return s.queryAPICalls(ctx, `WHERE transaction_id = ?`, transactionID)
}

// GetAPICallsByRunID retrieves all calls made during one run
func (s *Storage) GetAPICallsByRunID(ctx context.Context, runID string) ([]APICall, error) {
	return s.queryAPICalls(ctx, `WHERE run_id = ?`, runID)
}

func (s *Storage) queryAPICalls(ctx context.Context, where string, arg interface{}) ([]APICall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, transaction_id, method, request_json, response_json, error, duration_ms, timestamp
		FROM api_calls `+where+`
		ORDER BY timestamp ASC, id ASC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	calls := make([]APICall, 0)
	for rows.Next() {
		var call APICall
		err := rows.Scan(
			&call.ID,
			&call.RunID,
			&call.TransactionID,
			&call.Method,
			&call.RequestJSON,
			&call.ResponseJSON,
			&call.Error,
			&call.DurationMs,
			&call.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}

	return calls, rows.Err()
}
