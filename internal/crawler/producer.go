package crawler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nurimarket/bidwatch/internal/browser"
	"github.com/nurimarket/bidwatch/internal/metrics"
	"github.com/nurimarket/bidwatch/internal/retry"
	"github.com/nurimarket/bidwatch/internal/scraper"
	"github.com/nurimarket/bidwatch/internal/state"
	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

// PageNavigator walks the paginated list and emits one task per notice. It
// is the single writer of page-level progress: CompletePage fires after a
// page's items are enqueued, not after they are processed.
type PageNavigator struct {
	list    scraper.ListScraper
	state   *state.Manager
	policy  *retry.Policy
	metrics *metrics.CrawlerMetrics

	maxPages  int
	maxItems  int
	pageDelay time.Duration
}

// NewPageNavigator creates the producer. maxPages/maxItems bound the crawl;
// negative values mean unlimited.
func NewPageNavigator(
	list scraper.ListScraper,
	stateMgr *state.Manager,
	policy *retry.Policy,
	m *metrics.CrawlerMetrics,
	maxPages, maxItems int,
	pageDelay time.Duration,
) *PageNavigator {
	return &PageNavigator{
		list:      list,
		state:     stateMgr,
		policy:    policy,
		metrics:   m,
		maxPages:  maxPages,
		maxItems:  maxItems,
		pageDelay: pageDelay,
	}
}

// Produce scans pages starting at (startPage, startIndex) and sends tasks to
// out in page-then-index order. Scrape failures after retries are recorded
// and end production gracefully; no error escapes.
func (p *PageNavigator) Produce(ctx context.Context, page browser.Page, startPage, startIndex int, out chan<- Task) {
	pageNum := startPage

	for {
		if ctx.Err() != nil {
			log.Info().Int("page", pageNum).Msg("Producer stopping: cancelled")
			return
		}
		if p.maxPages >= 0 && pageNum > p.maxPages {
			log.Info().Int("max_pages", p.maxPages).Msg("Producer stopping: page limit")
			return
		}
		if p.itemLimitReached() {
			log.Info().Int("max_items", p.maxItems).Msg("Producer stopping: item limit")
			return
		}

		list, err := p.scrapePage(ctx, page)
		if err != nil {
			p.state.RecordError(err.Error(), nil)
			if p.metrics != nil {
				p.metrics.RecordError("list_scrape")
			}
			log.Error().Err(err).Int("page", pageNum).Msg("List scrape failed, stopping producer")
			return
		}

		p.state.UpdateProgress(pageNum, -1, list.TotalPages)
		p.state.RecordListCollected(len(list.Items))
		if p.metrics != nil {
			p.metrics.RecordPage(pageNum, list.TotalPages)
		}

		items := list.Items
		offset := 0
		if pageNum == startPage && startIndex > 0 {
			offset = startIndex
			if startIndex >= len(items) {
				items = nil
			} else {
				items = items[startIndex:]
			}
		}

		if !p.emit(ctx, out, items, pageNum, offset) {
			return
		}
		p.state.CompletePage(pageNum)

		if len(list.Items) == 0 {
			log.Info().Int("page", pageNum).Msg("Producer stopping: empty page")
			return
		}
		if !list.HasNext {
			log.Info().Int("page", pageNum).Msg("Producer stopping: last page")
			return
		}

		select {
		case <-time.After(p.pageDelay):
		case <-ctx.Done():
			return
		}

		if err := p.nextPage(ctx, page); err != nil {
			p.state.RecordError(err.Error(), nil)
			if p.metrics != nil {
				p.metrics.RecordError("navigation")
			}
			log.Error().Err(err).Int("page", pageNum).Msg("Next-page navigation failed, stopping producer")
			return
		}
		pageNum++
	}
}

// emit sends tasks for one page; false means production should stop
func (p *PageNavigator) emit(ctx context.Context, out chan<- Task, items []*bidnotice.BidNotice, pageNum, offset int) bool {
	for i, item := range items {
		if p.itemLimitReached() {
			log.Info().Int("max_items", p.maxItems).Msg("Producer stopping: item limit")
			return false
		}
		select {
		case out <- Task{Notice: item, PageNum: pageNum, IndexInPage: offset + i}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (p *PageNavigator) itemLimitReached() bool {
	return p.maxItems >= 0 && p.state.CollectedCount() >= p.maxItems
}

func (p *PageNavigator) scrapePage(ctx context.Context, page browser.Page) (*bidnotice.NoticeList, error) {
	return retry.DoWithResult(ctx, p.listPolicy(), func(ctx context.Context) (*bidnotice.NoticeList, error) {
		return p.list.Scrape(ctx, page)
	})
}

func (p *PageNavigator) nextPage(ctx context.Context, page browser.Page) error {
	return p.listPolicy().Do(ctx, func(ctx context.Context) error {
		return p.list.NextPage(ctx, page)
	})
}

// listPolicy clones the policy with retry bookkeeping attached
func (p *PageNavigator) listPolicy() *retry.Policy {
	policy := *p.policy
	prev := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		p.state.RecordRetry()
		if p.metrics != nil {
			p.metrics.RecordRetry("list_scrape")
		}
		if prev != nil {
			prev(attempt, err)
		}
	}
	return &policy
}
