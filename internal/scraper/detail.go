package scraper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nurimarket/bidwatch/internal/browser"
	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

// G2BDetailScraper reads one bid-notice detail page
type G2BDetailScraper struct {
	selectors *Selectors
}

// NewG2BDetailScraper creates a detail scraper
func NewG2BDetailScraper(selectors *Selectors) *G2BDetailScraper {
	if selectors == nil {
		selectors = DefaultSelectors()
	}
	return &G2BDetailScraper{selectors: selectors}
}

// ScrapeFromURL navigates to url and extends the list entry with detail
// fields. Missing optional fields are left empty; a page without the title
// element is treated as a scrape failure.
func (s *G2BDetailScraper) ScrapeFromURL(ctx context.Context, page browser.Page, url string, notice *bidnotice.BidNotice) (*bidnotice.BidNoticeDetail, error) {
	if err := page.Goto(ctx, url, browser.WaitNetworkIdle); err != nil {
		return nil, NewNavigationError("detail page load failed", url, err)
	}

	sel := s.selectors.Detail

	title, found := s.text(ctx, page, sel.Title)
	if !found {
		return nil, &ScrapeError{Message: "detail page missing title", Selector: sel.Title, URL: url}
	}

	detail := bidnotice.NewDetail(*notice)
	if title != "" {
		detail.Title = title
	}

	if org, ok := s.text(ctx, page, sel.Organization); ok && org != "" {
		detail.Organization = org
	}
	detail.BidMethod, _ = s.text(ctx, page, sel.BidMethod)
	detail.ContractMethod, _ = s.text(ctx, page, sel.ContractMethod)
	detail.Qualification, _ = s.text(ctx, page, sel.Qualification)
	detail.Region, _ = s.text(ctx, page, sel.Region)
	detail.DeliveryLocation, _ = s.text(ctx, page, sel.DeliveryLocation)
	detail.ContactDepartment, _ = s.text(ctx, page, sel.ContactDepartment)
	detail.ContactPerson, _ = s.text(ctx, page, sel.ContactPerson)
	detail.ContactPhone, _ = s.text(ctx, page, sel.ContactPhone)
	detail.ContactEmail, _ = s.text(ctx, page, sel.ContactEmail)
	detail.ReferenceNo, _ = s.text(ctx, page, sel.ReferenceNo)

	if text, ok := s.text(ctx, page, sel.Deadline); ok {
		if deadline, parsed := ParseDateTime(text); parsed {
			detail.Deadline = &deadline
		}
	}
	if text, ok := s.text(ctx, page, sel.EstimatedPrice); ok {
		if price, parsed := ParseKoreanPrice(text); parsed {
			detail.EstimatedPrice = &price
		}
	}
	if text, ok := s.text(ctx, page, sel.BasePrice); ok {
		if price, parsed := ParseKoreanPrice(text); parsed {
			detail.BasePrice = &price
		}
	}

	detail.Attachments = s.attachments(page)

	now := time.Now()
	detail.DetailCrawledAt = &now
	detail.CrawlSuccess = true

	log.Debug().
		Str("bid_notice_id", detail.BidNoticeID).
		Str("url", url).
		Int("attachments", len(detail.Attachments)).
		Msg("Detail page scraped")
	return detail, nil
}

func (s *G2BDetailScraper) text(ctx context.Context, page browser.Page, selector string) (string, bool) {
	if selector == "" {
		return "", false
	}
	el, err := page.WaitForSelector(ctx, selector, 5*time.Second)
	if err != nil || el == nil {
		return "", false
	}
	text, err := el.TextContent()
	if err != nil {
		return "", false
	}
	return CleanText(text), true
}

func (s *G2BDetailScraper) attachments(page browser.Page) []string {
	els, err := page.QuerySelectorAll(s.selectors.Detail.Attachments)
	if err != nil {
		return nil
	}
	var out []string
	for _, el := range els {
		text, err := el.TextContent()
		if err != nil {
			continue
		}
		if name := CleanText(text); name != "" {
			out = append(out, name)
		}
	}
	return out
}
