package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "crawl_state.json")
	return NewManager(path), path
}

func TestInitializeFresh(t *testing.T) {
	mgr, _ := newTestManager(t)

	s := mgr.Initialize("run-1", true)
	assert.Equal(t, "run-1", s.RunID)
	assert.True(t, s.IsRunning)
	assert.False(t, s.IsCompleted)
	assert.Equal(t, 1, s.Progress.CurrentPage)
	assert.Empty(t, s.CollectedIDs)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	mgr, path := newTestManager(t)

	mgr.Initialize("run-1", false)
	mgr.MarkCollected("A")
	mgr.MarkCollected("B")
	mgr.UpdateProgress(3, 7, 42)
	mgr.RecordRetry()
	mgr.RecordError("detail failed", map[string]string{"bid_notice_id": "C"})
	require.NoError(t, mgr.Save(true))

	loaded := NewManager(path).Load()
	require.NotNil(t, loaded)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.True(t, loaded.IsCollected("A"))
	assert.True(t, loaded.IsCollected("B"))
	assert.False(t, loaded.IsCollected("C"))
	assert.Equal(t, 3, loaded.Progress.CurrentPage)
	assert.Equal(t, 7, loaded.Progress.CurrentIndex)
	assert.Equal(t, 42, loaded.Progress.TotalPages)
	assert.Equal(t, 2, loaded.Statistics.TotalCollected)
	assert.Equal(t, 1, loaded.Statistics.Retries)
	assert.Equal(t, 1, loaded.Statistics.Errors)
	require.Len(t, loaded.FailedItems, 1)
	assert.Equal(t, "C", loaded.FailedItems[0].Info["bid_notice_id"])
	assert.False(t, loaded.StartedAt.After(loaded.LastUpdatedAt))
}

func TestCollectedIDsSerializedAsSortedList(t *testing.T) {
	mgr, path := newTestManager(t)
	mgr.Initialize("run-1", false)
	mgr.MarkCollected("zeta")
	mgr.MarkCollected("alpha")
	require.NoError(t, mgr.Save(true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))

	var ids []string
	require.NoError(t, json.Unmarshal(doc["collected_ids"], &ids))
	assert.Equal(t, []string{"alpha", "zeta"}, ids)
}

func TestBackupSidecarWrittenAndUsedAsFallback(t *testing.T) {
	mgr, path := newTestManager(t)
	mgr.Initialize("run-1", false)
	mgr.MarkCollected("A")
	require.NoError(t, mgr.Save(true))
	require.NoError(t, mgr.Save(true)) // second save copies the first to .backup

	_, err := os.Stat(path + ".backup")
	require.NoError(t, err)

	// corrupt the primary; load must fall back to the backup
	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0644))

	loaded := NewManager(path).Load()
	require.NotNil(t, loaded)
	assert.True(t, loaded.IsCollected("A"))
}

func TestLoadReturnsNilWhenBothFilesUnusable(t *testing.T) {
	mgr, path := newTestManager(t)
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0644))
	require.NoError(t, os.WriteFile(path+".backup", []byte("also nope"), 0644))
	assert.Nil(t, mgr.Load())
}

func TestMarkCollectedCountsDuplicates(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.Initialize("run-1", false)

	assert.True(t, mgr.MarkCollected("A"))
	assert.False(t, mgr.MarkCollected("A"))
	assert.False(t, mgr.MarkCollected("A"))

	stats := mgr.Statistics()
	assert.Equal(t, 1, stats.TotalCollected)
	assert.Equal(t, 2, stats.SkippedDuplicates)
}

func TestResumeKeepsProgressAndAdoptsNewRunID(t *testing.T) {
	mgr, path := newTestManager(t)
	mgr.Initialize("run-1", false)
	mgr.MarkCollected("A")
	mgr.UpdateProgress(4, 2, 10)
	require.NoError(t, mgr.Save(true))

	resumed := NewManager(path).Initialize("run-2", true)
	assert.Equal(t, "run-2", resumed.RunID)
	assert.True(t, resumed.IsRunning)
	assert.Equal(t, 4, resumed.Progress.CurrentPage)
	assert.Equal(t, 2, resumed.Progress.CurrentIndex)
	assert.Equal(t, 1, resumed.Statistics.TotalCollected)
	assert.True(t, resumed.IsCollected("A"))
}

func TestResumeIgnoresCompletedState(t *testing.T) {
	mgr, path := newTestManager(t)
	mgr.Initialize("run-1", false)
	mgr.MarkCollected("A")
	mgr.MarkCompleted()

	fresh := NewManager(path).Initialize("run-2", true)
	assert.Equal(t, "run-2", fresh.RunID)
	assert.False(t, fresh.IsCollected("A"), "a completed run must not be resumed")
	assert.Equal(t, 0, fresh.Statistics.TotalCollected)
}

func TestResumeDisabledStartsFresh(t *testing.T) {
	mgr, path := newTestManager(t)
	mgr.Initialize("run-1", false)
	mgr.MarkCollected("A")
	require.NoError(t, mgr.Save(true))

	fresh := NewManager(path).Initialize("run-2", false)
	assert.False(t, fresh.IsCollected("A"))
}

func TestCompletePageAdvancesAndAutosaves(t *testing.T) {
	mgr, path := newTestManager(t)
	mgr.Initialize("run-1", false)
	mgr.UpdateProgress(2, 5, -1)
	mgr.CompletePage(2)

	loaded := NewManager(path).Load()
	require.NotNil(t, loaded, "complete_page must autosave")
	assert.Equal(t, 2, loaded.Progress.LastCompletedPage)
	assert.Equal(t, 0, loaded.Progress.CurrentIndex, "index resets on page completion")
}

func TestLastCompletedPageOnlyIncreases(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.Initialize("run-1", false)
	mgr.CompletePage(5)
	mgr.CompletePage(3)
	s := mgr.Snapshot()
	assert.Equal(t, 5, s.Progress.LastCompletedPage)
}

func TestMarkCompletedImpliesNotRunning(t *testing.T) {
	mgr, path := newTestManager(t)
	mgr.Initialize("run-1", false)
	mgr.MarkCompleted()

	loaded := NewManager(path).Load()
	require.NotNil(t, loaded)
	assert.True(t, loaded.IsCompleted)
	assert.False(t, loaded.IsRunning)
}

func TestTotalCollectedMatchesIDSetSize(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.Initialize("run-1", false)
	ids := []string{"A", "B", "C", "B", "A", "D"}
	for _, id := range ids {
		mgr.MarkCollected(id)
	}
	assert.Equal(t, mgr.CollectedCount(), mgr.Statistics().TotalCollected)
}

func TestConcurrentMutations(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.Initialize("run-1", false)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := string(rune('a'+worker)) + "-" + string(rune('0'+i%10))
				mgr.MarkCollected(id)
				mgr.IsCollected(id)
				mgr.RecordRetry()
				mgr.UpdateProgress(-1, i, -1)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, mgr.CollectedCount(), mgr.Statistics().TotalCollected)
	assert.Equal(t, 800, mgr.Statistics().Retries)
}

func TestCleanupRemovesFiles(t *testing.T) {
	mgr, path := newTestManager(t)
	mgr.Initialize("run-1", false)
	require.NoError(t, mgr.Save(true))
	require.NoError(t, mgr.Save(true))

	require.NoError(t, mgr.Cleanup())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path + ".backup")
	assert.True(t, os.IsNotExist(err))
}

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, 100.0, Statistics{}.SuccessRate())
	assert.Equal(t, 100.0, Statistics{TotalCollected: 5}.SuccessRate())
	assert.Equal(t, 50.0, Statistics{TotalCollected: 5, Errors: 5}.SuccessRate())
	assert.Equal(t, 0.0, Statistics{Errors: 3}.SuccessRate())
}
