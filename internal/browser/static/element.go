package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// Element wraps a single goquery node.
type Element struct {
	page *Page
	sel  *goquery.Selection
}

var _ crawler.Element = (*Element)(nil)

// Text returns the node text with whitespace runs collapsed.
func (e *Element) Text(_ context.Context) (string, error) {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

// Attribute returns the raw attribute value.
func (e *Element) Attribute(_ context.Context, name string) (string, bool, error) {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

// Click follows links and submits forms; anything else is a no-op.
func (e *Element) Click(ctx context.Context) error {
	return e.page.click(ctx, e.sel)
}

// QuerySelector searches below the element.
func (e *Element) QuerySelector(_ context.Context, selector string) (crawler.Element, error) {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	s := e.sel.Find(selector).First()
	if s.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrNoElement, selector)
	}
	return &Element{page: e.page, sel: s}, nil
}

// QuerySelectorAll searches below the element.
func (e *Element) QuerySelectorAll(_ context.Context, selector string) ([]crawler.Element, error) {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	return e.page.wrap(e.sel.Find(selector)), nil
}
