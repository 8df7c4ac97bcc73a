package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// HTTPConfig configures the HTTP-backed browser session. Headless has no
// effect on the HTTP fetcher; it is carried for sessions that drive a real
// browser.
type HTTPConfig struct {
	UserAgent   string        `json:"user_agent" yaml:"user_agent"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	MaxBodySize int64         `json:"max_body_size" yaml:"max_body_size"`
	Headless    bool          `json:"headless" yaml:"headless"`
}

// DefaultHTTPConfig returns the HTTP session defaults
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		UserAgent:   "bidwatch/1.0 (+https://github.com/nurimarket/bidwatch)",
		Timeout:     30 * time.Second,
		MaxBodySize: 10 * 1024 * 1024,
		Headless:    true,
	}
}

// HTTPSession fetches pages with net/http and parses them with goquery.
// Each NewPage call returns an independent page, so workers never contend
// for a shared tab.
type HTTPSession struct {
	client  *http.Client
	config  *HTTPConfig
	started bool
}

// NewHTTPSession creates an HTTP-backed browser session
func NewHTTPSession(config *HTTPConfig) *HTTPSession {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	return &HTTPSession{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
	}
}

func (s *HTTPSession) Start(ctx context.Context) error {
	s.started = true
	log.Debug().Dur("timeout", s.config.Timeout).Msg("HTTP browser session started")
	return nil
}

func (s *HTTPSession) Stop() error {
	s.started = false
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSession) NewPage() (Page, error) {
	if !s.started {
		return nil, fmt.Errorf("session not started")
	}
	return &httpPage{session: s}, nil
}

// httpPage holds the currently loaded document and a small history stack
type httpPage struct {
	session *HTTPSession
	doc     *goquery.Document
	url     string
	history []string
}

func (p *httpPage) Goto(ctx context.Context, pageURL string, wait WaitMode) error {
	doc, err := p.fetch(ctx, pageURL)
	if err != nil {
		return err
	}
	if p.url != "" {
		p.history = append(p.history, p.url)
	}
	p.doc = doc
	p.url = pageURL
	return nil
}

func (p *httpPage) GoBack(ctx context.Context) error {
	if len(p.history) == 0 {
		return fmt.Errorf("no history to go back to")
	}
	prev := p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]

	doc, err := p.fetch(ctx, prev)
	if err != nil {
		return err
	}
	p.doc = doc
	p.url = prev
	return nil
}

func (p *httpPage) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if _, err := url.Parse(pageURL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", pageURL, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.session.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.session.config.UserAgent)

	resp, err := p.session.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, p.session.config.MaxBodySize)
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}

// WaitForSelector returns the first match. A static document has nothing to
// wait for, so absence within the already-fetched DOM is an immediate miss.
func (p *httpPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	return &httpElement{page: p, sel: sel}, nil
}

func (p *httpPage) QuerySelectorAll(selector string) ([]Element, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	var out []Element
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &httpElement{page: p, sel: s})
	})
	return out, nil
}

func (p *httpPage) URL() string {
	return p.url
}

func (p *httpPage) Close() error {
	p.doc = nil
	p.history = nil
	return nil
}

type httpElement struct {
	page *httpPage
	sel  *goquery.Selection
}

func (e *httpElement) TextContent() (string, error) {
	return e.sel.Text(), nil
}

func (e *httpElement) GetAttribute(name string) (string, bool) {
	return e.sel.Attr(name)
}

// Click follows the element's href when it is a link; other elements have no
// click semantics in a static document.
func (e *httpElement) Click(ctx context.Context) error {
	href, ok := e.sel.Attr("href")
	if !ok || href == "" {
		return fmt.Errorf("element is not clickable")
	}
	target := href
	if base, err := url.Parse(e.page.url); err == nil {
		if ref, err := url.Parse(href); err == nil {
			target = base.ResolveReference(ref).String()
		}
	}
	return e.page.Goto(ctx, target, WaitLoad)
}
