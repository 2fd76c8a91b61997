package optimization

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRunRepository(t *testing.T) *RunRepository {
	t.Helper()
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "frontier.db"),
		Name: "frontier",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewRunRepository(db.Conn())
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	repo := setupRunRepository(t)
	target := 0.12
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	run := &Run{
		ID:           "run-1",
		SessionID:    "session-1",
		Strategy:     StrategyTargetReturn,
		Tickers:      []string{"SPY", "TLT"},
		Start:        time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RiskFreeRate: 0.03,
		TargetReturn: &target,
		Result: OptimizationResult{
			Weights:     []float64{0.7, 0.3},
			Return:      0.12,
			Volatility:  0.15,
			SharpeRatio: 0.6,
			Success:     true,
		},
		Duration:  1500 * time.Millisecond,
		CreatedAt: created,
	}
	require.NoError(t, repo.Save(run))

	got, err := repo.Get("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "session-1", got.SessionID)
	assert.Equal(t, StrategyTargetReturn, got.Strategy)
	assert.Equal(t, []string{"SPY", "TLT"}, got.Tickers)
	assert.True(t, run.Start.Equal(got.Start))
	assert.True(t, run.End.Equal(got.End))
	require.NotNil(t, got.TargetReturn)
	assert.Equal(t, 0.12, *got.TargetReturn)
	assert.Equal(t, run.Result, got.Result)
	assert.Equal(t, run.Duration, got.Duration)
	assert.True(t, created.Equal(got.CreatedAt))

	// Duplicate IDs are rejected
	assert.Error(t, repo.Save(run))
}

func TestRunRepository_GetMissing(t *testing.T) {
	repo := setupRunRepository(t)

	got, err := repo.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunRepository_ListNewestFirst(t *testing.T) {
	repo := setupRunRepository(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(&Run{
			ID:        id,
			SessionID: "s",
			Strategy:  StrategyMinVariance,
			Tickers:   []string{"X", "Y"},
			Result:    OptimizationResult{Success: false, Message: msgNotConverged},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := repo.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Nil(t, runs[0].TargetReturn)
	assert.False(t, runs[0].Result.Success)
	assert.Equal(t, msgNotConverged, runs[0].Result.Message)

	all, err := repo.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
