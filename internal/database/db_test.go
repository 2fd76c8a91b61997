package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesDirectoryAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "frontier.db")

	db, err := New(Config{Path: path, Name: "frontier"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileStandard, db.Profile())
	assert.Equal(t, "frontier", db.Name())
	assert.Equal(t, path, db.Path())

	require.NoError(t, db.Migrate())
	// Schemas are idempotent
	require.NoError(t, db.Migrate())

	var count int
	err = db.Conn().QueryRow("SELECT COUNT(*) FROM optimization_runs").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMigrate_CacheSchema(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "cache.db"), Profile: ProfileCache, Name: "cache"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())

	_, err = db.Conn().Exec(`INSERT INTO price_series (symbol, start_date, end_date, bars, bar_count, fetched_at, expires_at)
		VALUES ('AAPL', '2024-01-01', '2024-12-31', x'90', 0, 1, 2)`)
	require.NoError(t, err)
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "other.db"), Name: "other"})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Migrate())
}

func TestBuildConnectionString(t *testing.T) {
	standard := buildConnectionString("/tmp/x.db", ProfileStandard)
	assert.Contains(t, standard, "/tmp/x.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, standard, "synchronous(NORMAL)")

	cache := buildConnectionString("/tmp/x.db", ProfileCache)
	assert.Contains(t, cache, "synchronous(OFF)")

	uri := buildConnectionString("file:test?mode=memory", ProfileStandard)
	assert.Contains(t, uri, "file:test?mode=memory&_pragma=journal_mode(WAL)")
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "tx.db"), Name: "frontier"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec(`INSERT INTO optimization_runs
			(id, session_id, strategy, tickers, start_date, end_date, risk_free_rate, success, result_json, created_at)
			VALUES ('r1', 's1', 'sharpe', 'A,B', '2024-01-01', '2024-12-31', 0.02, 1, '{}', 1)`)
		require.NoError(t, execErr)
		return assert.AnError
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM optimization_runs").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestGetStats(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "stats.db"), Name: "frontier"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageSize, int64(0))
	assert.NoError(t, db.WALCheckpoint(""))
}
