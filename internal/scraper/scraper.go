// Package scraper extracts bid notices from list and detail pages. Which
// elements to read comes entirely from a selector document; the crawler core
// only depends on the ListScraper and DetailScraper contracts.
package scraper

import (
	"context"
	"fmt"

	"github.com/nurimarket/bidwatch/internal/browser"
	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

// ListScraper extracts one page of notice summaries plus pagination state
type ListScraper interface {
	// Scrape reads the currently loaded list page.
	Scrape(ctx context.Context, page browser.Page) (*bidnotice.NoticeList, error)
	// GoToPage navigates the list to page n (1-based).
	GoToPage(ctx context.Context, page browser.Page, n int) error
	// NextPage advances the list one page.
	NextPage(ctx context.Context, page browser.Page) error
}

// DetailScraper extracts a full notice record from a detail page. It must be
// idempotent for the same url and notice.
type DetailScraper interface {
	ScrapeFromURL(ctx context.Context, page browser.Page, url string, notice *bidnotice.BidNotice) (*bidnotice.BidNoticeDetail, error)
}

// ScrapeError reports a page that did not produce the expected structure
type ScrapeError struct {
	Message  string
	Selector string
	URL      string
}

func (e *ScrapeError) Error() string {
	msg := "scrape: " + e.Message
	if e.Selector != "" {
		msg += fmt.Sprintf(" (selector %q)", e.Selector)
	}
	if e.URL != "" {
		msg += fmt.Sprintf(" (url %s)", e.URL)
	}
	return msg
}

// NavigationError reports a page-movement failure
type NavigationError struct {
	ScrapeError
}

func NewNavigationError(message, url string, cause error) *NavigationError {
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &NavigationError{ScrapeError{Message: message, URL: url}}
}

// ParseError reports raw text that could not be coerced to a typed value
type ParseError struct {
	Raw      string
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: cannot interpret %q as %s", e.Raw, e.Expected)
}
