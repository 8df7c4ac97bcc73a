// Package metrics exposes crawl telemetry as Prometheus collectors. The
// registry is injected so callers control exposition; the crawler treats the
// whole surface as optional.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Config configures the metrics endpoint
type Config struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Port      int    `json:"port" yaml:"port" validate:"omitempty,gte=1024,lte=65535"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultConfig returns monitoring defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:   false,
		Port:      8000,
		Namespace: "bid_crawler",
	}
}

// CrawlerMetrics bundles every collector the crawler updates
type CrawlerMetrics struct {
	ItemsTotal   *prometheus.CounterVec
	PagesTotal   prometheus.Counter
	RetriesTotal *prometheus.CounterVec
	ErrorsTotal  *prometheus.CounterVec

	CurrentPage    prometheus.Gauge
	TotalPages     prometheus.Gauge
	ItemsCollected prometheus.Gauge
	ActiveWorkers  prometheus.Gauge
	QueueSize      prometheus.Gauge
	CrawlRunning   prometheus.Gauge

	RequestDuration        *prometheus.HistogramVec
	ItemProcessingDuration prometheus.Histogram

	registry *prometheus.Registry
	config   *Config
	server   *http.Server
}

// New registers the crawler collectors on a fresh registry
func New(config *Config) *CrawlerMetrics {
	if config == nil {
		config = DefaultConfig()
	}
	ns := config.Namespace

	m := &CrawlerMetrics{
		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "items_total",
			Help: "Collected items by final status",
		}, []string{"status"}),
		PagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "pages_total",
			Help: "List pages processed",
		}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "retries_total",
			Help: "Retry attempts by reason",
		}, []string{"reason"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "errors_total",
			Help: "Errors by type",
		}, []string{"type"}),

		CurrentPage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "current_page",
			Help: "Page currently being scanned",
		}),
		TotalPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "total_pages",
			Help: "Total pages reported by the list",
		}),
		ItemsCollected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "items_collected",
			Help: "Items collected in the current run",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "active_workers",
			Help: "Consumer workers currently running",
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "queue_size",
			Help: "Tasks waiting in the queue",
		}),
		CrawlRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "crawl_running",
			Help: "1 while a crawl run is active",
		}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "request_duration_seconds",
			Help:    "Page request duration by request type",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		ItemProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "item_processing_duration_seconds",
			Help:    "End-to-end item processing duration",
			Buckets: prometheus.DefBuckets,
		}),

		registry: prometheus.NewRegistry(),
		config:   config,
	}

	m.registry.MustRegister(
		m.ItemsTotal, m.PagesTotal, m.RetriesTotal, m.ErrorsTotal,
		m.CurrentPage, m.TotalPages, m.ItemsCollected, m.ActiveWorkers,
		m.QueueSize, m.CrawlRunning,
		m.RequestDuration, m.ItemProcessingDuration,
	)
	return m
}

// Registry returns the backing registry for external exposition
func (m *CrawlerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartCrawl flips the running gauge on and resets per-run gauges
func (m *CrawlerMetrics) StartCrawl() {
	m.CrawlRunning.Set(1)
	m.ItemsCollected.Set(0)
	m.CurrentPage.Set(0)
	m.QueueSize.Set(0)
}

// EndCrawl flips the running gauge off
func (m *CrawlerMetrics) EndCrawl() {
	m.CrawlRunning.Set(0)
	m.ActiveWorkers.Set(0)
}

// RecordItem counts one processed item
func (m *CrawlerMetrics) RecordItem(status string) {
	m.ItemsTotal.WithLabelValues(status).Inc()
	m.ItemsCollected.Inc()
}

// RecordPage counts a page and moves the page gauges
func (m *CrawlerMetrics) RecordPage(pageNum, totalPages int) {
	m.PagesTotal.Inc()
	m.CurrentPage.Set(float64(pageNum))
	if totalPages > 0 {
		m.TotalPages.Set(float64(totalPages))
	}
}

// RecordRetry counts one retry
func (m *CrawlerMetrics) RecordRetry(reason string) {
	m.RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordError counts one error
func (m *CrawlerMetrics) RecordError(errType string) {
	m.ErrorsTotal.WithLabelValues(errType).Inc()
}

// ObserveRequest records a page request duration
func (m *CrawlerMetrics) ObserveRequest(requestType string, d time.Duration) {
	m.RequestDuration.WithLabelValues(requestType).Observe(d.Seconds())
}

// ObserveItemProcessing records an item processing duration
func (m *CrawlerMetrics) ObserveItemProcessing(d time.Duration) {
	m.ItemProcessingDuration.Observe(d.Seconds())
}

// Serve exposes /metrics until the context is cancelled
func (m *CrawlerMetrics) Serve(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", m.config.Port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.server.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", m.config.Port).Msg("Metrics server listening")
	if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
