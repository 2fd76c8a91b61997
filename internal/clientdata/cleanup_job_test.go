package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJob_Name(t *testing.T) {
	job := NewCleanupJob(nil, zerolog.Nop())
	assert.Equal(t, "price_cache_cleanup", job.Name())
}

func TestCleanupJob_Run(t *testing.T) {
	repo := setupTestRepo(t)

	past := time.Now().Add(-48 * time.Hour)
	repo.now = func() time.Time { return past }
	require.NoError(t, repo.Store(testKey, []testBar{{Date: 1, Close: 1}}, 1, time.Hour))
	repo.now = time.Now

	job := NewCleanupJob(repo, zerolog.Nop())
	require.NoError(t, job.Run())

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
