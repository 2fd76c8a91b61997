package clientdata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBar struct {
	Date  int64
	Close float64
}

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	return NewRepository(db.Conn())
}

var testKey = SeriesKey{Symbol: "AAPL", Start: "2024-01-01", End: "2024-06-30"}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := setupTestRepo(t)
	bars := []testBar{{Date: 1, Close: 101.5}, {Date: 2, Close: 99.25}}

	require.NoError(t, repo.Store(testKey, bars, len(bars), time.Hour))

	var got []testBar
	found, err := repo.GetIfFresh(testKey, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, bars, got)

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetIfFresh_MissingKey(t *testing.T) {
	repo := setupTestRepo(t)

	var got []testBar
	found, err := repo.GetIfFresh(SeriesKey{Symbol: "NOPE"}, &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestExpiredEntryIsStaleButAvailable(t *testing.T) {
	repo := setupTestRepo(t)
	past := time.Now().Add(-2 * time.Hour)
	repo.now = func() time.Time { return past }
	require.NoError(t, repo.Store(testKey, []testBar{{Date: 1, Close: 5}}, 1, time.Hour))
	repo.now = time.Now

	var fresh []testBar
	found, err := repo.GetIfFresh(testKey, &fresh)
	require.NoError(t, err)
	assert.False(t, found, "expired data must not be returned as fresh")

	var stale []testBar
	found, err = repo.Get(testKey, &stale)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 5.0, stale[0].Close)
}

func TestStoreReplacesExisting(t *testing.T) {
	repo := setupTestRepo(t)
	require.NoError(t, repo.Store(testKey, []testBar{{Date: 1, Close: 1}}, 1, time.Hour))
	require.NoError(t, repo.Store(testKey, []testBar{{Date: 1, Close: 2}, {Date: 2, Close: 3}}, 2, time.Hour))

	entries, err := repo.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testKey, entries[0].Key)
	assert.Equal(t, 2, entries[0].Count)
}

func TestDeleteAndDeleteExpired(t *testing.T) {
	repo := setupTestRepo(t)
	other := SeriesKey{Symbol: "MSFT", Start: "2024-01-01", End: "2024-06-30"}

	past := time.Now().Add(-48 * time.Hour)
	repo.now = func() time.Time { return past }
	require.NoError(t, repo.Store(testKey, []testBar{}, 0, time.Hour))
	repo.now = time.Now
	require.NoError(t, repo.Store(other, []testBar{}, 0, time.Hour))

	deleted, err := repo.DeleteExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	require.NoError(t, repo.Delete(other))
	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTTLFor(t *testing.T) {
	now := time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)

	assert.Equal(t, TTLHistoricalSeries, TTLFor(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), now, 0))
	assert.Equal(t, TTLRecentSeries, TTLFor(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), now, 0))
	assert.Equal(t, 30*time.Minute, TTLFor(time.Date(2024, 6, 29, 0, 0, 0, 0, time.UTC), now, 30*time.Minute))
}
