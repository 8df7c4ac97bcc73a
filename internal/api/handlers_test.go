package api

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurimarket/bidwatch/internal/state"
	"github.com/nurimarket/bidwatch/internal/storage"
	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

func testServer(t *testing.T) (*state.Manager, *storage.MemoryRepository, func(path string) map[string]any) {
	t.Helper()
	stateMgr := state.NewManager(filepath.Join(t.TempDir(), "state.json"))
	repo := storage.NewMemoryRepository()
	app := NewServer(stateMgr, repo)

	get := func(path string) map[string]any {
		req := httptest.NewRequest("GET", path, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.Unmarshal(body, &out))
		return out
	}
	return stateMgr, repo, get
}

func TestHealth(t *testing.T) {
	_, _, get := testServer(t)
	body := get("/health")
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "bidwatch", body["service"])
}

func TestStatusWithoutState(t *testing.T) {
	_, _, get := testServer(t)
	body := get("/api/v1/status")
	assert.Equal(t, "no crawl state", body["error"])
}

func TestStatusAndStats(t *testing.T) {
	stateMgr, repo, get := testServer(t)
	stateMgr.Initialize("run-1", false)
	stateMgr.MarkCollected("A")

	n, err := bidnotice.NewBidNotice("A", "공고")
	require.NoError(t, err)
	_, err = repo.Save(bidnotice.NewDetail(*n))
	require.NoError(t, err)

	status := get("/api/v1/status")
	assert.Equal(t, "run-1", status["run_id"])

	stats := get("/api/v1/stats")
	assert.Equal(t, "run-1", stats["run_id"])
	assert.Equal(t, float64(1), stats["stored_count"])
	assert.Equal(t, float64(100), stats["success_rate"])
}

func TestNotices(t *testing.T) {
	_, repo, get := testServer(t)
	for _, id := range []string{"A", "B", "C"} {
		n, err := bidnotice.NewBidNotice(id, "공고 "+id)
		require.NoError(t, err)
		_, err = repo.Save(bidnotice.NewDetail(*n))
		require.NoError(t, err)
	}

	body := get("/api/v1/notices?limit=2")
	assert.Equal(t, float64(2), body["count"])
}
