// Package config assembles crawler settings from defaults, an optional YAML
// file and CRAWLER_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nurimarket/bidwatch/internal/browser"
	"github.com/nurimarket/bidwatch/internal/metrics"
	"github.com/nurimarket/bidwatch/internal/retry"
	"github.com/nurimarket/bidwatch/internal/robots"
	"github.com/nurimarket/bidwatch/pkg/logging"
)

// ConfigurationError reports an invalid or missing setting at startup
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// StorageConfig configures the output repositories and the checkpoint file
type StorageConfig struct {
	DataDir         string `json:"data_dir" yaml:"data_dir"`
	StateFile       string `json:"state_file" yaml:"state_file"`
	OutputFormat    string `json:"output_format" yaml:"output_format" validate:"oneof=json csv both"`
	SaveInterval    int    `json:"save_interval" yaml:"save_interval" validate:"gte=1"`
	IndividualFiles bool   `json:"individual_files" yaml:"individual_files"`
}

// SchedulerConfig configures periodic crawl runs
type SchedulerConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	Mode            string `json:"mode" yaml:"mode" validate:"oneof=interval cron"`
	IntervalMinutes int    `json:"interval_minutes" yaml:"interval_minutes" validate:"gte=1"`
	CronExpression  string `json:"cron_expression" yaml:"cron_expression"`
	RunImmediately  bool   `json:"run_immediately" yaml:"run_immediately"`
}

// CrawlConfig configures the orchestrator pipeline
type CrawlConfig struct {
	MaxWorkers int           `json:"max_workers" yaml:"max_workers" validate:"gte=1,lte=10"`
	QueueSize  int           `json:"queue_size" yaml:"queue_size" validate:"gte=1"`
	PageDelay  time.Duration `json:"page_delay" yaml:"page_delay"`
	ItemDelay  time.Duration `json:"item_delay" yaml:"item_delay"`
}

// Config is the full crawler configuration
type Config struct {
	BaseURL    string `json:"base_url" yaml:"base_url" validate:"required,url"`
	BidListURL string `json:"bid_list_url" yaml:"bid_list_url" validate:"required,url"`

	// MaxPages / MaxItems bound the crawl; negative means unlimited
	MaxPages int `json:"max_pages" yaml:"max_pages"`
	MaxItems int `json:"max_items" yaml:"max_items"`

	Keyword string `json:"keyword" yaml:"keyword"`
	BidType string `json:"bid_type" yaml:"bid_type"`

	SelectorsFile string `json:"selectors_file" yaml:"selectors_file"`

	Crawl      CrawlConfig         `json:"crawl" yaml:"crawl"`
	Browser    *browser.HTTPConfig `json:"browser" yaml:"browser"`
	Retry      *retry.Policy       `json:"retry" yaml:"retry"`
	Storage    StorageConfig       `json:"storage" yaml:"storage"`
	Scheduler  SchedulerConfig     `json:"scheduler" yaml:"scheduler"`
	Logging    *logging.LogConfig  `json:"logging" yaml:"logging"`
	Robots     *robots.Config      `json:"robots" yaml:"robots"`
	Monitoring *metrics.Config     `json:"monitoring" yaml:"monitoring"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		BaseURL:    "https://www.g2b.go.kr",
		BidListURL: "https://www.g2b.go.kr/pt/bid/list.do?page=1",
		MaxPages:   -1,
		MaxItems:   -1,
		Crawl: CrawlConfig{
			MaxWorkers: 1,
			QueueSize:  50,
			PageDelay:  time.Second,
		},
		Browser: browser.DefaultHTTPConfig(),
		Retry:   retry.DefaultPolicy(),
		Storage: StorageConfig{
			DataDir:      "data",
			StateFile:    "data/crawl_state.json",
			OutputFormat: "json",
			SaveInterval: 10,
		},
		Scheduler: SchedulerConfig{
			Mode:            "interval",
			IntervalMinutes: 60,
			CronExpression:  "0 */6 * * *",
			RunImmediately:  true,
		},
		Logging:    logging.DefaultLogConfig(),
		Robots:     robots.DefaultConfig(),
		Monitoring: metrics.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, then an optional YAML file,
// then the environment
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, &ConfigurationError{Setting: "config_file", Err: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigurationError{Setting: "config_file", Err: err}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays CRAWLER_* environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("CRAWLER_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("CRAWLER_LIST_URL"); v != "" {
		c.BidListURL = v
	}
	if v, ok := envInt("CRAWLER_MAX_PAGES"); ok {
		c.MaxPages = v
	}
	if v, ok := envInt("CRAWLER_MAX_ITEMS"); ok {
		c.MaxItems = v
	}
	if v := os.Getenv("CRAWLER_KEYWORD"); v != "" {
		c.Keyword = v
	}
	if v, ok := envBool("CRAWLER_HEADLESS"); ok {
		c.Browser.Headless = v
	}
	if v := os.Getenv("CRAWLER_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CRAWLER_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("CRAWLER_OUTPUT_FORMAT"); v != "" {
		c.Storage.OutputFormat = v
	}
	if v, ok := envBool("CRAWLER_SCHEDULER_ENABLED"); ok {
		c.Scheduler.Enabled = v
	}
	if v := os.Getenv("CRAWLER_SCHEDULER_MODE"); v != "" {
		c.Scheduler.Mode = v
	}
	if v, ok := envInt("CRAWLER_SCHEDULER_INTERVAL"); ok {
		c.Scheduler.IntervalMinutes = v
	}
	if v := os.Getenv("CRAWLER_SCHEDULER_CRON"); v != "" {
		c.Scheduler.CronExpression = v
	}
	if v, ok := envBool("CRAWLER_ROBOTS_ENABLED"); ok {
		c.Robots.Enabled = v
	}
	if v, ok := envBool("CRAWLER_METRICS_ENABLED"); ok {
		c.Monitoring.Enabled = v
	}
	if v, ok := envInt("CRAWLER_METRICS_PORT"); ok {
		c.Monitoring.Port = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return false, false
	}
	return v == "true" || v == "1" || v == "yes", true
}

// Validate checks the configuration; failures are fatal at startup
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return &ConfigurationError{Setting: "config", Err: err}
	}
	if c.Scheduler.Mode == "cron" {
		if fields := strings.Fields(c.Scheduler.CronExpression); len(fields) != 5 {
			return &ConfigurationError{
				Setting: "scheduler.cron_expression",
				Err:     fmt.Errorf("expected 5 fields (minute hour day month weekday), got %d", len(fields)),
			}
		}
	}
	return nil
}

// EnsureDirectories creates the data directory. The log file's directory is
// created by logging.SetupLogger.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0755); err != nil {
		return &ConfigurationError{Setting: "storage.data_dir", Err: err}
	}
	return nil
}

// Summary returns a one-line description for run logs
func (c *Config) Summary() string {
	parts := []string{fmt.Sprintf("url=%s", c.BaseURL)}
	if c.MaxPages >= 0 {
		parts = append(parts, fmt.Sprintf("max_pages=%d", c.MaxPages))
	}
	if c.MaxItems >= 0 {
		parts = append(parts, fmt.Sprintf("max_items=%d", c.MaxItems))
	}
	if c.Keyword != "" {
		parts = append(parts, fmt.Sprintf("keyword=%s", c.Keyword))
	}
	parts = append(parts, fmt.Sprintf("workers=%d", c.Crawl.MaxWorkers))
	return strings.Join(parts, ", ")
}
