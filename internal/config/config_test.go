package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Crawl.MaxWorkers)
	assert.Equal(t, 50, cfg.Crawl.QueueSize)
	assert.Equal(t, time.Second, cfg.Crawl.PageDelay)
	assert.Equal(t, -1, cfg.MaxPages)
	assert.Equal(t, -1, cfg.MaxItems)
	assert.Equal(t, "json", cfg.Storage.OutputFormat)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Crawl.MaxWorkers = 11
	err := cfg.Validate()
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)

	cfg = Default()
	cfg.Storage.OutputFormat = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.BaseURL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Scheduler.Mode = "cron"
	cfg.Scheduler.CronExpression = "0 */6 *"
	assert.Error(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
base_url: "https://example.com"
bid_list_url: "https://example.com/bids?page=1"
max_pages: 5
keyword: "전산"
crawl:
  max_workers: 3
  queue_size: 20
storage:
  output_format: both
  save_interval: 25
scheduler:
  mode: cron
  cron_expression: "0 */2 * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", cfg.BaseURL)
	assert.Equal(t, 5, cfg.MaxPages)
	assert.Equal(t, "전산", cfg.Keyword)
	assert.Equal(t, 3, cfg.Crawl.MaxWorkers)
	assert.Equal(t, 20, cfg.Crawl.QueueSize)
	assert.Equal(t, "both", cfg.Storage.OutputFormat)
	assert.Equal(t, 25, cfg.Storage.SaveInterval)
	assert.Equal(t, "cron", cfg.Scheduler.Mode)

	// fields absent from the file keep their defaults
	assert.Equal(t, -1, cfg.MaxItems)
	assert.Equal(t, time.Second, cfg.Crawl.PageDelay)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_BASE_URL", "https://env.example.com")
	t.Setenv("CRAWLER_MAX_PAGES", "7")
	t.Setenv("CRAWLER_MAX_ITEMS", "100")
	t.Setenv("CRAWLER_KEYWORD", "용역")
	t.Setenv("CRAWLER_LOG_LEVEL", "DEBUG")
	t.Setenv("CRAWLER_SCHEDULER_ENABLED", "true")
	t.Setenv("CRAWLER_SCHEDULER_MODE", "interval")
	t.Setenv("CRAWLER_SCHEDULER_INTERVAL", "30")
	t.Setenv("CRAWLER_ROBOTS_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.BaseURL)
	assert.Equal(t, 7, cfg.MaxPages)
	assert.Equal(t, 100, cfg.MaxItems)
	assert.Equal(t, "용역", cfg.Keyword)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30, cfg.Scheduler.IntervalMinutes)
	assert.False(t, cfg.Robots.Enabled)
}

func TestEnvIgnoresUnparseableNumbers(t *testing.T) {
	t.Setenv("CRAWLER_MAX_PAGES", "many")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.MaxPages)
}

func TestSummary(t *testing.T) {
	cfg := Default()
	cfg.MaxPages = 3
	cfg.Keyword = "물품"
	s := cfg.Summary()
	assert.Contains(t, s, "max_pages=3")
	assert.Contains(t, s, "keyword=물품")
	assert.Contains(t, s, "workers=1")
}

func TestEnsureDirectories(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "nested", "data")
	require.NoError(t, cfg.EnsureDirectories())
	info, err := os.Stat(cfg.Storage.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
