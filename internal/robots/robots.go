// Package robots consults robots.txt before the crawler touches a host.
// Parsed files are cached per host; a missing or unreadable robots.txt
// allows everything.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
)

// Config configures robots.txt handling
type Config struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	UserAgent    string        `json:"user_agent" yaml:"user_agent"`
	CacheTTL     time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
}

// DefaultConfig returns robots checking defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		UserAgent:    "bidwatch",
		CacheTTL:     24 * time.Hour,
		FetchTimeout: 10 * time.Second,
	}
}

type cacheEntry struct {
	data      *robotstxt.RobotsData // nil means "no robots.txt, allow all"
	fetchedAt time.Time
}

// Checker answers whether a URL may be fetched and which crawl delay the
// host requests
type Checker struct {
	mu     sync.Mutex
	cache  map[string]*cacheEntry
	client *http.Client
	config *Config
}

// NewChecker creates a robots.txt checker
func NewChecker(config *Config) *Checker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Checker{
		cache:  make(map[string]*cacheEntry),
		client: &http.Client{Timeout: config.FetchTimeout},
		config: config,
	}
}

// Allowed reports whether the configured agent may fetch the URL
func (c *Checker) Allowed(ctx context.Context, rawURL string) bool {
	if !c.config.Enabled {
		return true
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	entry := c.entry(ctx, parsed)
	if entry.data == nil {
		return true
	}
	return entry.data.TestAgent(parsed.Path, c.config.UserAgent)
}

// CrawlDelay returns the host's requested delay between fetches, or zero
func (c *Checker) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	if !c.config.Enabled {
		return 0
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}

	entry := c.entry(ctx, parsed)
	if entry.data == nil {
		return 0
	}
	group := entry.data.FindGroup(c.config.UserAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (c *Checker) entry(ctx context.Context, parsed *url.URL) *cacheEntry {
	host := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.cache[host]; ok && time.Since(entry.fetchedAt) < c.config.CacheTTL {
		return entry
	}

	entry := &cacheEntry{fetchedAt: time.Now()}
	entry.data = c.fetch(ctx, host+"/robots.txt")
	c.cache[host] = entry
	return entry
}

// fetch returns nil (allow all) for any fetch or parse failure
func (c *Checker) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", robotsURL).Msg("robots.txt unreachable, allowing")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		log.Debug().Err(err).Str("url", robotsURL).Msg("robots.txt unparseable, allowing")
		return nil
	}
	return data
}
