// Package fetch downloads unit pages and isolates their content area.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultTimeout bounds one page request
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent identifies the planner to course sites
	DefaultUserAgent = "Mozilla/5.0 (compatible; UnitPlanner/1.0)"
	// DefaultMaxBytes caps how much of a page is read
	DefaultMaxBytes int64 = 4 << 20
)

// Result is a downloaded page.
type Result struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
}

// Error describes a page that could not be downloaded.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures page downloads.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	MaxBytes  int64
}

// DefaultOptions returns the options the CLI uses.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
		MaxBytes:  DefaultMaxBytes,
	}
}

// URL downloads a page. A non-2xx response returns both the result and an Error.
func URL(ctx context.Context, rawURL string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	limit := opts.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, &Error{URL: rawURL, Message: "invalid URL", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := (&http.Client{Timeout: opts.Timeout}).Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "failed to read response body", Cause: err}
	}
	if int64(len(body)) > limit {
		return nil, &Error{URL: rawURL, Message: fmt.Sprintf("page larger than %d bytes", limit)}
	}

	result := &Result{
		URL:         rawURL,
		HTML:        string(body),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &Error{URL: rawURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	return result, nil
}

// noiseSelector matches page chrome that never holds unit or lesson names.
// Headers stay because course sites often put the unit h1 there.
const noiseSelector = "nav, footer, script, style, noscript, .sidebar, .ad, .advertisement, .ads, .cookie-banner, .popup"

// contentSelectors are tried in order to find a page's content area
var contentSelectors = []string{
	".lesson-content",
	".unit-content",
	"#lesson",
	"main",
	"article",
	".content",
	"#content",
}

// Page is a parsed page with its navigation and script noise removed
type Page struct {
	doc *goquery.Document
}

// ParsePage parses html and strips noise elements.
func ParsePage(html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find(noiseSelector).Remove()
	return &Page{doc: doc}, nil
}

// Find searches the whole page
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// Content returns the first content area that matches, or the body when none does.
func (p *Page) Content() *goquery.Selection {
	for _, selector := range contentSelectors {
		if selection := p.doc.Find(selector); selection.Length() > 0 {
			return selection.First()
		}
	}
	return p.doc.Find("body")
}
