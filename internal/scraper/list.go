package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nurimarket/bidwatch/internal/browser"
	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

// G2BListScraper reads the nara-jangteo bid list. All element locations come
// from the selector document; a keyword filter is applied client-side.
type G2BListScraper struct {
	selectors   *Selectors
	baseURL     string
	keyword     string
	currentPage int
}

// NewG2BListScraper creates a list scraper
func NewG2BListScraper(selectors *Selectors, baseURL, keyword string) *G2BListScraper {
	if selectors == nil {
		selectors = DefaultSelectors()
	}
	return &G2BListScraper{
		selectors:   selectors,
		baseURL:     baseURL,
		keyword:     keyword,
		currentPage: 1,
	}
}

// Scrape extracts the loaded list page into a NoticeList
func (s *G2BListScraper) Scrape(ctx context.Context, page browser.Page) (*bidnotice.NoticeList, error) {
	sel := s.selectors.List

	rows, err := page.QuerySelectorAll(sel.Row)
	if err != nil {
		return nil, &ScrapeError{Message: err.Error(), Selector: sel.Row, URL: page.URL()}
	}

	result := &bidnotice.NoticeList{
		CurrentPage: s.currentPage,
	}

	for _, row := range rows {
		notice, err := s.scrapeRow(ctx, page, row)
		if err != nil {
			log.Warn().Err(err).Str("url", page.URL()).Msg("Skipping unreadable list row")
			continue
		}
		if s.keyword != "" && !strings.Contains(notice.Title, s.keyword) {
			continue
		}
		result.Items = append(result.Items, notice)
	}

	result.TotalCount = s.scrapeTotalCount(ctx, page)
	result.TotalPages = s.scrapeTotalPages(ctx, page)
	result.HasNext = s.hasNext(ctx, page, result.TotalPages)

	log.Debug().
		Int("page", s.currentPage).
		Int("items", len(result.Items)).
		Int("total_pages", result.TotalPages).
		Bool("has_next", result.HasNext).
		Msg("List page scraped")
	return result, nil
}

func (s *G2BListScraper) scrapeRow(ctx context.Context, page browser.Page, row browser.Element) (*bidnotice.BidNotice, error) {
	// row-scoped selects are not in the Element contract, so each field
	// selector is matched against the whole page
	cellText := func(field string) string {
		if field == "" {
			return ""
		}
		els, err := page.QuerySelectorAll(field)
		if err != nil || len(els) == 0 {
			return ""
		}
		// the n-th matching cell belongs to the n-th row; fall back to the
		// first cell when counts do not line up
		idx := s.rowIndex(row, page)
		if idx < 0 || idx >= len(els) {
			idx = 0
		}
		text, err := els[idx].TextContent()
		if err != nil {
			return ""
		}
		return CleanText(text)
	}

	idText := cellText(s.selectors.List.ID)
	id := ExtractBidID(idText)
	if id == "" {
		return nil, &ScrapeError{Message: "row has no notice id", Selector: s.selectors.List.ID, URL: page.URL()}
	}

	title := cellText(s.selectors.List.Title)
	notice, err := bidnotice.NewBidNotice(id, title)
	if err != nil {
		return nil, err
	}

	notice.BidType = ParseBidType(cellText(s.selectors.List.Type))
	notice.Status = ParseBidStatus(cellText(s.selectors.List.Status))
	notice.Organization = cellText(s.selectors.List.Organization)

	if deadline, ok := ParseDateTime(cellText(s.selectors.List.Deadline)); ok {
		notice.Deadline = &deadline
	}
	if price, ok := ParseKoreanPrice(cellText(s.selectors.List.Price)); ok {
		notice.EstimatedPrice = &price
	}
	notice.DetailURL = s.rowDetailURL(row, page)

	return notice, nil
}

// rowIndex finds the position of row among its page's row set
func (s *G2BListScraper) rowIndex(row browser.Element, page browser.Page) int {
	rows, err := page.QuerySelectorAll(s.selectors.List.Row)
	if err != nil {
		return -1
	}
	rowText, _ := row.TextContent()
	for i, r := range rows {
		text, _ := r.TextContent()
		if text == rowText {
			return i
		}
	}
	return -1
}

func (s *G2BListScraper) rowDetailURL(row browser.Element, page browser.Page) string {
	links, err := page.QuerySelectorAll(s.selectors.List.TitleLink)
	if err != nil || len(links) == 0 {
		return ""
	}
	idx := s.rowIndex(row, page)
	if idx < 0 || idx >= len(links) {
		idx = 0
	}
	href, ok := links[idx].GetAttribute("href")
	if !ok {
		return ""
	}
	return NormalizeURL(href, s.baseURL)
}

func (s *G2BListScraper) scrapeTotalCount(ctx context.Context, page browser.Page) int {
	el, err := page.WaitForSelector(ctx, s.selectors.List.TotalCount, 3*time.Second)
	if err != nil || el == nil {
		return 0
	}
	text, err := el.TextContent()
	if err != nil {
		return 0
	}
	if n, ok := ParsePrice(text); ok {
		return int(n.IntPart())
	}
	return 0
}

func (s *G2BListScraper) scrapeTotalPages(ctx context.Context, page browser.Page) int {
	els, err := page.QuerySelectorAll(s.selectors.List.Pagination)
	if err != nil || len(els) == 0 {
		return 0
	}
	max := 0
	for _, el := range els {
		text, err := el.TextContent()
		if err != nil {
			continue
		}
		if n, err := strconv.Atoi(CleanText(text)); err == nil && n > max {
			max = n
		}
	}
	return max
}

func (s *G2BListScraper) hasNext(ctx context.Context, page browser.Page, totalPages int) bool {
	if totalPages > 0 {
		return s.currentPage < totalPages
	}
	el, err := page.WaitForSelector(ctx, s.selectors.List.NextButton, time.Second)
	return err == nil && el != nil
}

// GoToPage navigates the list directly to page n
func (s *G2BListScraper) GoToPage(ctx context.Context, page browser.Page, n int) error {
	if n < 1 {
		return NewNavigationError(fmt.Sprintf("invalid page %d", n), "", nil)
	}
	target := fmt.Sprintf(s.selectors.List.PageURL, n)
	if err := page.Goto(ctx, target, browser.WaitNetworkIdle); err != nil {
		return NewNavigationError("go to page failed", target, err)
	}
	s.currentPage = n
	return nil
}

// NextPage advances the list one page
func (s *G2BListScraper) NextPage(ctx context.Context, page browser.Page) error {
	return s.GoToPage(ctx, page, s.currentPage+1)
}
