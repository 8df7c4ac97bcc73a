// Package browser abstracts the headless-browser surface the crawler drives.
// The crawler core only sees Session, Page and Element; the reference
// implementation fetches pages over HTTP and parses them with goquery.
package browser

import (
	"context"
	"time"
)

// WaitMode controls what a navigation waits for before returning
type WaitMode string

const (
	WaitLoad        WaitMode = "load"
	WaitDOMContent  WaitMode = "domcontentloaded"
	WaitNetworkIdle WaitMode = "networkidle"
)

// Session owns browser resources and hands out pages. Implementations state
// whether NewPage may be called more than once; workers each acquire their
// own page when the session supports it.
type Session interface {
	Start(ctx context.Context) error
	Stop() error
	NewPage() (Page, error)
}

// Page is one navigable browser tab
type Page interface {
	Goto(ctx context.Context, url string, wait WaitMode) error
	GoBack(ctx context.Context) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	QuerySelectorAll(selector string) ([]Element, error)
	URL() string
	Close() error
}

// Element is a DOM node handle
type Element interface {
	TextContent() (string, error)
	GetAttribute(name string) (string, bool)
	Click(ctx context.Context) error
}
