package crawler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nurimarket/bidwatch/internal/browser"
	"github.com/nurimarket/bidwatch/internal/config"
	"github.com/nurimarket/bidwatch/internal/metrics"
	"github.com/nurimarket/bidwatch/internal/robots"
	"github.com/nurimarket/bidwatch/internal/scraper"
	"github.com/nurimarket/bidwatch/internal/state"
	"github.com/nurimarket/bidwatch/internal/storage"
)

// RunStatus is the orchestrator lifecycle state
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusStarting  RunStatus = "starting"
	StatusRunning   RunStatus = "running"
	StatusDraining  RunStatus = "draining"
	StatusCompleted RunStatus = "completed"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
)

// taskGrace bounds the run time of each task, counted from the task's start.
// Tasks run on a context detached from run cancellation, so after an
// interrupt an in-flight task still ends within taskGrace of its start.
const taskGrace = 60 * time.Second

// Orchestrator owns one crawl run: it opens the browser session, starts the
// producer and the worker pool over a bounded queue, and guarantees the
// shutdown path (flush, force-save, browser close) on every terminal path.
type Orchestrator struct {
	config  *config.Config
	session browser.Session
	list    scraper.ListScraper
	detail  scraper.DetailScraper
	repo    storage.Repository
	state   *state.Manager
	metrics *metrics.CrawlerMetrics
	robots  *robots.Checker

	mu           sync.Mutex
	status       RunStatus
	sharedPageMu sync.Mutex
}

// NewOrchestrator wires the crawl pipeline. metrics and robots may be nil.
func NewOrchestrator(
	cfg *config.Config,
	session browser.Session,
	list scraper.ListScraper,
	detail scraper.DetailScraper,
	repo storage.Repository,
	stateMgr *state.Manager,
	m *metrics.CrawlerMetrics,
	checker *robots.Checker,
) *Orchestrator {
	return &Orchestrator{
		config:  cfg,
		session: session,
		list:    list,
		detail:  detail,
		repo:    repo,
		state:   stateMgr,
		metrics: m,
		robots:  checker,
		status:  StatusIdle,
	}
}

// Status returns the current lifecycle state
func (o *Orchestrator) Status() RunStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *Orchestrator) setStatus(s RunStatus) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
}

// Run executes one crawl. Cancelling ctx starts the draining path: the
// producer stops, workers finish their current task, and the checkpoint is
// force-saved. The returned state is a snapshot of the final checkpoint.
func (o *Orchestrator) Run(ctx context.Context, resume bool) (*state.CrawlState, error) {
	o.mu.Lock()
	if o.status == StatusStarting || o.status == StatusRunning || o.status == StatusDraining {
		o.mu.Unlock()
		return nil, fmt.Errorf("crawl already running")
	}
	o.status = StatusStarting
	o.mu.Unlock()

	runID := time.Now().Format("20060102_150405")
	logger := log.With().Str("run_id", runID).Logger()

	o.state.Initialize(runID, resume)

	// a zero limit means "collect nothing": complete immediately
	if o.config.MaxPages == 0 || o.config.MaxItems == 0 {
		o.state.MarkCompleted()
		o.setStatus(StatusCompleted)
		logger.Info().Msg("Zero-limit run, nothing to do")
		return o.state.Snapshot(), nil
	}

	if o.metrics != nil {
		o.metrics.StartCrawl()
	}

	if err := o.session.Start(ctx); err != nil {
		o.failRun(fmt.Errorf("browser start: %w", err))
		return o.state.Snapshot(), err
	}

	producerPage, err := o.session.NewPage()
	if err != nil {
		o.session.Stop()
		o.failRun(fmt.Errorf("open page: %w", err))
		return o.state.Snapshot(), err
	}

	if err := producerPage.Goto(ctx, o.config.BidListURL, browser.WaitNetworkIdle); err != nil {
		o.session.Stop()
		o.failRun(fmt.Errorf("open list page: %w", err))
		return o.state.Snapshot(), err
	}

	startPage, startIndex := o.state.ResumePoint()
	if startPage > 1 {
		if err := o.list.GoToPage(ctx, producerPage, startPage); err != nil {
			logger.Warn().Err(err).Int("page", startPage).Msg("Resume jump failed, restarting from page 1")
			startPage, startIndex = 1, 0
		}
	}

	processor := NewItemProcessor(
		o.detail, o.repo, o.state, o.config.Retry, o.metrics, o.robots, o.config.BaseURL,
	)

	// one page per worker when the session supports it; otherwise every
	// worker shares the producer page behind a mutex and returns it to the
	// list view after each detail fetch
	workerPages, sharedMode := o.acquireWorkerPages()
	if sharedMode {
		processor.SetReturnToList(true)
	}

	o.setStatus(StatusRunning)
	logger.Info().
		Int("start_page", startPage).
		Int("start_index", startIndex).
		Int("workers", o.config.Crawl.MaxWorkers).
		Bool("shared_page", sharedMode).
		Str("config", o.config.Summary()).
		Msg("Crawl started")

	queue := make(chan Task, o.config.Crawl.QueueSize)

	var savedCount atomic.Int64
	processor.SetOnSaved(func() {
		n := savedCount.Add(1)
		if int(n)%o.config.Storage.SaveInterval == 0 {
			if err := o.repo.Flush(); err != nil {
				logger.Error().Err(err).Msg("Interval flush failed")
			}
			if err := o.state.Save(false); err != nil {
				logger.Error().Err(err).Msg("Interval state save failed")
			}
		}
	})

	navigator := NewPageNavigator(
		o.list, o.state, o.config.Retry, o.metrics,
		o.config.MaxPages, o.config.MaxItems, o.config.Crawl.PageDelay,
	)

	// in-flight tasks outlive cancellation, bounded by taskGrace
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	var trackedPage atomic.Int64
	trackedPage.Store(int64(startPage))

	for i := 0; i < o.config.Crawl.MaxWorkers; i++ {
		page := producerPage
		var pageMu *sync.Mutex
		if sharedMode {
			pageMu = &o.sharedPageMu
		} else {
			page = workerPages[i]
		}

		wg.Add(1)
		go func(workerID int, page browser.Page, pageMu *sync.Mutex) {
			defer wg.Done()
			o.runWorker(ctx, workCtx, workerID, queue, processor, page, pageMu, &trackedPage)
		}(i, page, pageMu)
	}
	if o.metrics != nil {
		o.metrics.ActiveWorkers.Set(float64(o.config.Crawl.MaxWorkers))
	}

	// single producer; closing the queue is the sentinel for every worker
	go func() {
		defer close(queue)
		navigator.Produce(ctx, producerPage, startPage, startIndex, queue)
	}()

	wg.Wait()

	for _, p := range workerPages {
		if p != nil {
			p.Close()
		}
	}
	producerPage.Close()

	cancelled := ctx.Err() != nil
	if cancelled {
		o.setStatus(StatusDraining)
		logger.Info().Msg("Crawl cancelled, queue drained")
	}

	return o.finish(logger, cancelled)
}

// acquireWorkerPages opens one page per worker, falling back to shared-page
// mode when the session only yields a single tab
func (o *Orchestrator) acquireWorkerPages() ([]browser.Page, bool) {
	pages := make([]browser.Page, o.config.Crawl.MaxWorkers)
	for i := range pages {
		p, err := o.session.NewPage()
		if err != nil || p == nil {
			for _, opened := range pages {
				if opened != nil {
					opened.Close()
				}
			}
			return nil, true
		}
		pages[i] = p
	}
	return pages, false
}

// runWorker consumes tasks until the queue closes or the run is cancelled.
// The current task always completes: processing uses workCtx, which survives
// cancellation of ctx.
func (o *Orchestrator) runWorker(
	ctx, workCtx context.Context,
	workerID int,
	queue <-chan Task,
	processor *ItemProcessor,
	page browser.Page,
	pageMu *sync.Mutex,
	trackedPage *atomic.Int64,
) {
	for {
		// between tasks, cancellation wins over more work
		if ctx.Err() != nil {
			log.Debug().Int("worker_id", workerID).Msg("Worker stopping: cancelled")
			return
		}

		select {
		case task, ok := <-queue:
			if !ok {
				return
			}
			if o.metrics != nil {
				o.metrics.QueueSize.Set(float64(len(queue)))
			}

			if prev := trackedPage.Swap(int64(task.PageNum)); prev != int64(task.PageNum) {
				log.Info().
					Int("worker_id", workerID).
					Int("page", task.PageNum).
					Msg("Page progress")
			}

			taskCtx, cancel := context.WithTimeout(workCtx, taskGrace)
			if pageMu != nil {
				pageMu.Lock()
			}
			_, err := processor.Process(taskCtx, page, task)
			if pageMu != nil {
				pageMu.Unlock()
			}
			cancel()
			if err != nil {
				log.Error().
					Err(err).
					Int("worker_id", workerID).
					Str("bid_notice_id", task.Notice.BidNoticeID).
					Msg("Item processing failed")
			}

		case <-ctx.Done():
			return
		}
	}
}

// finish runs the unconditional shutdown path and reports the summary
func (o *Orchestrator) finish(logger zerolog.Logger, cancelled bool) (*state.CrawlState, error) {
	var shutdownErr error

	if err := o.repo.Flush(); err != nil {
		logger.Error().Err(err).Msg("Final repository flush failed")
		shutdownErr = err
	}

	if cancelled {
		o.state.SetLastError("cancelled")
		if err := o.state.Save(true); err != nil {
			logger.Error().Err(err).Msg("Final state save failed")
		}
		o.setStatus(StatusCancelled)
	} else {
		o.state.MarkCompleted()
		o.setStatus(StatusCompleted)
	}

	if err := o.session.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Browser stop failed")
	}
	if o.metrics != nil {
		o.metrics.EndCrawl()
	}

	stats := o.state.Statistics()
	logger.Info().
		Int("total_collected", stats.TotalCollected).
		Int("list_collected", stats.ListCollected).
		Int("detail_collected", stats.DetailCollected).
		Int("errors", stats.Errors).
		Int("retries", stats.Retries).
		Int("skipped_duplicates", stats.SkippedDuplicates).
		Float64("success_rate", stats.SuccessRate()).
		Bool("cancelled", cancelled).
		Msg("Crawl finished")

	return o.state.Snapshot(), shutdownErr
}

// failRun records a startup failure and finalizes the checkpoint
func (o *Orchestrator) failRun(err error) {
	o.state.SetLastError(err.Error())
	if saveErr := o.state.Save(true); saveErr != nil {
		log.Error().Err(saveErr).Msg("State save after failure failed")
	}
	if o.metrics != nil {
		o.metrics.EndCrawl()
	}
	o.setStatus(StatusFailed)
	log.Error().Err(err).Msg("Crawl failed to start")
}
