package marketdata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCacheRepo(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return clientdata.NewRepository(db.Conn())
}

func TestCachedFetcher_HitAfterMiss(t *testing.T) {
	upstream := newFakeFetcher()
	upstream.series["AAA"] = []Bar{
		{Date: day("2024-01-02"), Close: 10, AdjClose: 9.9},
		{Date: day("2024-01-03"), Close: 11, AdjClose: 10.9},
	}
	cached := NewCachedFetcher(upstream, setupCacheRepo(t), time.Hour, zerolog.Nop())
	ctx := context.Background()

	first, err := cached.FetchSeries(ctx, "AAA", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	second, err := cached.FetchSeries(ctx, "AAA", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.callCount("AAA"))
	require.Len(t, second, 2)
	assert.True(t, first[0].Date.Equal(second[0].Date))
	assert.Equal(t, 9.9, second[0].AdjClose)

	// A different range is a different key.
	_, err = cached.FetchSeries(ctx, "AAA", day("2024-01-02"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.callCount("AAA"))
}

func TestCachedFetcher_StaleFallback(t *testing.T) {
	upstream := newFakeFetcher()
	upstream.series["AAA"] = []Bar{{Date: day("2024-06-28"), Close: 10}}
	repo := setupCacheRepo(t)

	cached := NewCachedFetcher(upstream, repo, time.Minute, zerolog.Nop())
	// A negative TTL leaves an already expired entry.
	key := seriesKey("AAA", day("2024-06-01"), time.Now())
	require.NoError(t, repo.Store(key, upstream.series["AAA"], 1, -time.Hour))

	upstream.errs["AAA"] = errors.New("upstream down")
	got, err := cached.FetchSeries(context.Background(), "AAA", day("2024-06-01"), time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].Close)
	assert.Equal(t, 1, upstream.callCount("AAA"))
}

func TestCachedFetcher_ErrorWithoutStaleData(t *testing.T) {
	upstream := newFakeFetcher()
	cached := NewCachedFetcher(upstream, setupCacheRepo(t), time.Hour, zerolog.Nop())

	_, err := cached.FetchSeries(context.Background(), "NOPE", day("2024-01-01"), day("2024-01-31"))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCachedFetcher_FetchBatch(t *testing.T) {
	upstream := &batchFetcher{fakeFetcher: newFakeFetcher()}
	upstream.series["AAA"] = []Bar{{Date: day("2024-01-02"), Close: 10}}
	upstream.series["BBB"] = []Bar{{Date: day("2024-01-02"), Close: 20}}
	cached := NewCachedFetcher(upstream, setupCacheRepo(t), time.Hour, zerolog.Nop())
	ctx := context.Background()

	_, err := cached.FetchSeries(ctx, "AAA", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)

	series, failures, err := cached.FetchBatch(ctx, []string{"AAA", "BBB", "CCC"}, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Len(t, series, 2)
	assert.Contains(t, failures, "CCC")
	assert.Equal(t, 1, upstream.batches)
	assert.Equal(t, 1, upstream.callCount("AAA"), "AAA must be served from cache")
	assert.Equal(t, 1, upstream.callCount("BBB"))
}
