package static

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// Page holds the last document loaded into it. Navigations swap the document
// atomically; element handles keep pointing at the document they came from.
type Page struct {
	base *colly.Collector

	mu     sync.RWMutex
	doc    *goquery.Document
	url    *url.URL
	closed bool
}

var _ crawler.Page = (*Page)(nil)

func newPage(base *colly.Collector) *Page {
	return &Page{base: base}
}

// URL returns the address of the current document, or "" before navigation.
func (p *Page) URL(context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.url == nil {
		return "", nil
	}
	return p.url.String(), nil
}

// Navigate loads rawURL. Both wait strategies behave the same because the
// whole document is parsed before Navigate returns.
func (p *Page) Navigate(ctx context.Context, rawURL string, _ crawler.WaitStrategy, timeout time.Duration) error {
	return p.load(ctx, http.MethodGet, rawURL, nil, timeout)
}

// QuerySelector returns the first match for selector.
func (p *Page) QuerySelector(_ context.Context, selector string) (crawler.Element, error) {
	s, err := p.find(selector)
	if err != nil {
		return nil, err
	}
	first := s.First()
	if first.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrNoElement, selector)
	}
	return &Element{page: p, sel: first}, nil
}

// QuerySelectorAll returns every match for selector in document order.
func (p *Page) QuerySelectorAll(_ context.Context, selector string) ([]crawler.Element, error) {
	s, err := p.find(selector)
	if err != nil {
		return nil, err
	}
	return p.wrap(s), nil
}

// Fill sets the value of an input or textarea.
func (p *Page) Fill(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	field, err := p.firstLocked(selector)
	if err != nil {
		return err
	}
	if goquery.NodeName(field) == "textarea" {
		field.SetText(value)
		return nil
	}
	field.SetAttr("value", value)
	return nil
}

// SelectOption marks the option whose value (or text) equals value as selected.
func (p *Page) SelectOption(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	field, err := p.firstLocked(selector)
	if err != nil {
		return err
	}
	options := field.Find("option")
	match := options.FilterFunction(func(_ int, opt *goquery.Selection) bool {
		return optionValue(opt) == value
	}).First()
	if match.Length() == 0 {
		return fmt.Errorf("select %s: no option %q", selector, value)
	}
	options.RemoveAttr("selected")
	match.SetAttr("selected", "selected")
	return nil
}

// Press supports Enter, which submits the form enclosing selector.
func (p *Page) Press(ctx context.Context, selector, key string) error {
	if key != crawler.KeyEnter {
		return fmt.Errorf("press %s: unsupported key %q", selector, key)
	}
	p.mu.RLock()
	field, err := p.firstLocked(selector)
	var form *goquery.Selection
	if err == nil {
		form = field.Closest("form")
	}
	p.mu.RUnlock()
	if err != nil {
		return err
	}
	if form.Length() == 0 {
		return fmt.Errorf("press %s: %w: enclosing form", selector, crawler.ErrNoElement)
	}
	return p.submit(ctx, form, nil)
}

// WaitForSelector checks the current document once; a static document never
// changes while waiting.
func (p *Page) WaitForSelector(_ context.Context, selector string, state crawler.ElementState, _ time.Duration) error {
	s, err := p.find(selector)
	if err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	found := false
	s.EachWithBreak(func(_ int, candidate *goquery.Selection) bool {
		if state != crawler.StateVisible || visible(candidate) {
			found = true
		}
		return !found
	})
	if !found {
		return fmt.Errorf("wait for %s (%s): %w", selector, state, crawler.ErrNoElement)
	}
	return nil
}

// Close releases the document.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.doc = nil
	return nil
}

func (p *Page) find(selector string) (*goquery.Selection, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, errClosed
	}
	if p.doc == nil {
		return nil, fmt.Errorf("%w: %s (no document loaded)", crawler.ErrNoElement, selector)
	}
	return p.doc.Find(selector), nil
}

func (p *Page) firstLocked(selector string) (*goquery.Selection, error) {
	if p.closed {
		return nil, errClosed
	}
	if p.doc == nil {
		return nil, fmt.Errorf("%w: %s (no document loaded)", crawler.ErrNoElement, selector)
	}
	s := p.doc.Find(selector).First()
	if s.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrNoElement, selector)
	}
	return s, nil
}

func (p *Page) wrap(s *goquery.Selection) []crawler.Element {
	out := make([]crawler.Element, 0, s.Length())
	s.Each(func(_ int, one *goquery.Selection) {
		out = append(out, &Element{page: p, sel: one})
	})
	return out
}

// click follows anchors and submits forms through their submit buttons.
func (p *Page) click(ctx context.Context, target *goquery.Selection) error {
	p.mu.RLock()
	var (
		href   string
		follow bool
		form   *goquery.Selection
	)
	switch {
	case target.Is("a"):
		href, follow = target.Attr("href")
		follow = follow && navigable(href)
	case target.Is("button, input[type=submit]"):
		if t := strings.ToLower(target.AttrOr("type", "submit")); t == "submit" {
			form = target.Closest("form")
		}
	}
	base := p.url
	p.mu.RUnlock()

	if follow {
		dest, err := resolve(base, href)
		if err != nil {
			return err
		}
		return p.load(ctx, http.MethodGet, dest, nil, 0)
	}
	if form != nil && form.Length() > 0 {
		return p.submit(ctx, form, target)
	}
	return nil
}

func (p *Page) submit(ctx context.Context, form, submitter *goquery.Selection) error {
	p.mu.RLock()
	values := serializeForm(form, submitter)
	method, action, err := formTarget(form, p.url)
	p.mu.RUnlock()
	if err != nil {
		return err
	}
	if method == http.MethodGet {
		action.RawQuery = values.Encode()
		return p.load(ctx, http.MethodGet, action.String(), nil, 0)
	}
	return p.load(ctx, method, action.String(), strings.NewReader(values.Encode()), 0)
}

func (p *Page) load(ctx context.Context, method, target string, body io.Reader, timeout time.Duration) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return errClosed
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	collector := p.base.Clone()
	collector.Context = ctx
	var resp *colly.Response
	collector.OnResponse(func(r *colly.Response) {
		resp = r
	})

	var err error
	if method == http.MethodGet {
		err = collector.Visit(target)
	} else {
		hdr := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
		if p.base.Headers != nil {
			for k, v := range *p.base.Headers {
				hdr[k] = append([]string(nil), v...)
			}
		}
		err = collector.Request(method, target, body, nil, hdr)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("navigate %s: %w", target, ctxErr)
		}
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	if resp == nil {
		return fmt.Errorf("navigate %s: no response", target)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", target, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}
	p.doc = doc
	p.url = resp.Request.URL
	return nil
}

func navigable(href string) bool {
	h := strings.TrimSpace(href)
	return h != "" && !strings.HasPrefix(h, "#") && !strings.HasPrefix(strings.ToLower(h), "javascript:")
}

func resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String(), nil
}
