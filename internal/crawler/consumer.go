package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nurimarket/bidwatch/internal/browser"
	"github.com/nurimarket/bidwatch/internal/metrics"
	"github.com/nurimarket/bidwatch/internal/retry"
	"github.com/nurimarket/bidwatch/internal/robots"
	"github.com/nurimarket/bidwatch/internal/scraper"
	"github.com/nurimarket/bidwatch/internal/state"
	"github.com/nurimarket/bidwatch/internal/storage"
	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

// ItemProcessor fetches a task's detail page and persists the result. A
// permanently failing detail scrape still produces a durable partial record
// so the id never re-enters the work set.
type ItemProcessor struct {
	detail  scraper.DetailScraper
	repo    storage.Repository
	state   *state.Manager
	policy  *retry.Policy
	metrics *metrics.CrawlerMetrics
	robots  *robots.Checker

	baseURL string

	// returnToList sends the page back after the detail fetch when workers
	// share one browser tab with the producer
	returnToList bool

	// onSaved fires after every successful repository write
	onSaved func()
}

// NewItemProcessor creates the consumer-side processor
func NewItemProcessor(
	detail scraper.DetailScraper,
	repo storage.Repository,
	stateMgr *state.Manager,
	policy *retry.Policy,
	m *metrics.CrawlerMetrics,
	checker *robots.Checker,
	baseURL string,
) *ItemProcessor {
	return &ItemProcessor{
		detail:  detail,
		repo:    repo,
		state:   stateMgr,
		policy:  policy,
		metrics: m,
		robots:  checker,
		baseURL: baseURL,
	}
}

// SetReturnToList enables the single-tab navigation discipline
func (ip *ItemProcessor) SetReturnToList(enabled bool) {
	ip.returnToList = enabled
}

// SetOnSaved registers the post-save hook the orchestrator uses for
// interval flushes
func (ip *ItemProcessor) SetOnSaved(fn func()) {
	ip.onSaved = fn
}

// Process handles one task. It returns the stored detail, or nil for a
// duplicate. Failures are contained: they are recorded and a partial record
// is stored, and only repository errors surface in the return.
func (ip *ItemProcessor) Process(ctx context.Context, page browser.Page, task Task) (*bidnotice.BidNoticeDetail, error) {
	start := time.Now()
	id := task.Notice.BidNoticeID

	if ip.state.IsCollected(id) {
		// count the duplicate but do no work
		ip.state.MarkCollected(id)
		if ip.metrics != nil {
			ip.metrics.RecordItem("duplicate")
		}
		log.Debug().Str("bid_notice_id", id).Msg("Skipping already-collected item")
		return nil, nil
	}

	ip.state.UpdateProgress(-1, task.IndexInPage, -1)

	detailURL := scraper.NormalizeURL(task.Notice.DetailURL, ip.baseURL)

	var detail *bidnotice.BidNoticeDetail
	scrapeErr := ip.scrape(ctx, page, detailURL, task, &detail)

	if ip.returnToList {
		if err := page.GoBack(ctx); err != nil {
			log.Warn().Err(err).Str("bid_notice_id", id).Msg("Return to list view failed")
		}
	}

	if scrapeErr != nil {
		detail = bidnotice.NewFailedDetail(*task.Notice, scrapeErr)
		ip.state.RecordError(scrapeErr.Error(), task.Info())
		if ip.metrics != nil {
			ip.metrics.RecordError("detail_scrape")
		}
		log.Warn().
			Err(scrapeErr).
			Str("bid_notice_id", id).
			Str("url", detailURL).
			Msg("Detail scrape failed permanently, storing partial record")
	}

	if err := ip.save(detail, id, scrapeErr == nil); err != nil {
		return nil, err
	}

	if ip.metrics != nil {
		ip.metrics.ObserveItemProcessing(time.Since(start))
	}
	return detail, nil
}

func (ip *ItemProcessor) scrape(ctx context.Context, page browser.Page, detailURL string, task Task, out **bidnotice.BidNoticeDetail) error {
	if detailURL == "" {
		return &scraper.ScrapeError{Message: "notice has no detail url"}
	}
	if ip.robots != nil {
		if !ip.robots.Allowed(ctx, detailURL) {
			return &scraper.ScrapeError{Message: "blocked by robots.txt", URL: detailURL}
		}
		if delay := ip.robots.CrawlDelay(ctx, detailURL); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	start := time.Now()
	detail, err := retry.DoWithResult(ctx, ip.detailPolicy(), func(ctx context.Context) (*bidnotice.BidNoticeDetail, error) {
		return ip.detail.ScrapeFromURL(ctx, page, detailURL, task.Notice)
	})
	if ip.metrics != nil {
		ip.metrics.ObserveRequest("detail_page", time.Since(start))
	}
	if err != nil {
		return err
	}
	*out = detail
	return nil
}

// save persists the record and marks the id collected. A repository failure
// is fatal to the item, not the run.
func (ip *ItemProcessor) save(detail *bidnotice.BidNoticeDetail, id string, success bool) error {
	written, err := ip.repo.Save(detail)
	if err != nil {
		var dup *storage.DuplicateError
		if errors.As(err, &dup) {
			ip.state.MarkCollected(id)
			return nil
		}
		ip.state.RecordError(err.Error(), map[string]string{"bid_notice_id": id})
		if ip.metrics != nil {
			ip.metrics.RecordError("repository")
		}
		return err
	}

	ip.state.MarkCollected(id)
	if success {
		ip.state.RecordDetailCollected()
		if ip.metrics != nil {
			ip.metrics.RecordItem("success")
		}
	} else if ip.metrics != nil {
		ip.metrics.RecordItem("failed")
	}

	if written && ip.onSaved != nil {
		ip.onSaved()
	}
	return nil
}

// detailPolicy clones the policy with retry bookkeeping attached
func (ip *ItemProcessor) detailPolicy() *retry.Policy {
	policy := *ip.policy
	prev := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		ip.state.RecordRetry()
		if ip.metrics != nil {
			ip.metrics.RecordRetry("detail_scrape")
		}
		if prev != nil {
			prev(attempt, err)
		}
	}
	return &policy
}
