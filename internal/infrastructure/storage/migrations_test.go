package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// latestSchemaVersion tracks the newest file in migrations/.
// Update this when adding new migrations.
const latestSchemaVersion = 3

// TestMigrations_FreshDatabase tests running migrations on a fresh database
func TestMigrations_FreshDatabase(t *testing.T) {
	store, err := NewStorage(createTempDB(t))
	require.NoError(t, err)
	defer store.Close()

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(latestSchemaVersion), version)
}

// TestMigrations_Idempotency tests that reopening an existing ledger is a no-op
func TestMigrations_Idempotency(t *testing.T) {
	path := createTempDB(t)

	store, err := NewStorage(path)
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessed(context.Background(), deposit("txn-1", "10.00", "2025-01-01")))
	require.NoError(t, store.Close())

	store, err = NewStorage(path)
	require.NoError(t, err)
	defer store.Close()

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(latestSchemaVersion), version)

	processed, err := store.IsProcessed(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.True(t, processed, "data must survive a reopen")
}

// TestMigrations_Schema tests that every table and index is created
func TestMigrations_Schema(t *testing.T) {
	store, err := NewStorage(createTempDB(t))
	require.NoError(t, err)
	defer store.Close()

	for _, table := range []string{"sync_state", "processed_transactions", "reconciliation_log", "sync_runs", "api_calls"} {
		err = store.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(new(int))
		assert.NoError(t, err, "%s table should exist", table)
	}

	for _, index := range []string{
		"idx_processed_account",
		"idx_processed_date",
		"idx_processed_reconciled",
		"idx_reconciliation_invoice",
	} {
		var name string
		err = store.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?", index,
		).Scan(&name)
		assert.NoError(t, err, "%s index should exist", index)
	}
}

func TestMigrations_ForeignKeysAndWAL(t *testing.T) {
	store, err := NewStorage(createTempDB(t))
	require.NoError(t, err)
	defer store.Close()

	var fk int
	require.NoError(t, store.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, store.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}
