package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func entry(i int) ports.HistoryEntry {
	return ports.HistoryEntry{
		CorrelationID: fmt.Sprintf("req-%d", i),
		OSType:        "linux",
		IP:            "10.0.0.5",
		Port:          22,
		Username:      "ops",
		Mode:          "command",
		UseBastion:    true,
		Status:        "success",
		Steps:         1,
		StartedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		DurationMS:    int64(100 + i),
	}
}

func TestRepoSaveAndRecent(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	failed := entry(2)
	failed.Status = "error"
	failed.ErrorCode = "REMOTE_EXECUTION_FAILURE"
	failed.ErrorMessage = "non-zero return code"
	failed.UseBastion = false

	require.NoError(t, repo.SaveBatch(ctx, []ports.HistoryEntry{entry(1), failed}))

	list, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "req-2", list[0].CorrelationID)
	assert.Equal(t, "error", list[0].Status)
	assert.Equal(t, "REMOTE_EXECUTION_FAILURE", list[0].ErrorCode)
	assert.False(t, list[0].UseBastion)
	assert.True(t, list[1].UseBastion)
	assert.Equal(t, int64(101), list[1].DurationMS)
	assert.True(t, list[1].StartedAt.Equal(entry(1).StartedAt))
	assert.NotZero(t, list[0].ID)
}

func TestRepoSaveEmptyBatch(t *testing.T) {
	repo := openTestRepo(t)
	require.NoError(t, repo.SaveBatch(context.Background(), nil))

	list, err := repo.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepoRecentLimit(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	var batch []ports.HistoryEntry
	for i := 0; i < 8; i++ {
		batch = append(batch, entry(i))
	}
	require.NoError(t, repo.SaveBatch(ctx, batch))

	list, err := repo.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "req-7", list[0].CorrelationID)
	assert.Equal(t, "req-5", list[2].CorrelationID)
}

func TestRepoPruneKeepsNewest(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	var batch []ports.HistoryEntry
	for i := 0; i < 10; i++ {
		batch = append(batch, entry(i))
	}
	require.NoError(t, repo.SaveBatch(ctx, batch))

	removed, err := repo.Prune(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), removed)

	list, err := repo.Recent(ctx, 100)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "req-9", list[0].CorrelationID)
	assert.Equal(t, "req-6", list[3].CorrelationID)

	removed, err = repo.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRepoPersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.SaveBatch(ctx, []ports.HistoryEntry{entry(1)}))
	require.NoError(t, repo.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "req-1", list[0].CorrelationID)
}
