// Package drivertest provides an in-memory page driver whose documents are
// declared as selector tables. It records how many pages are open at once so
// concurrency bounds can be asserted.
package drivertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// Node is a fake DOM element.
type Node struct {
	Text     string
	Attrs    map[string]string
	Children map[string][]*Node
	// Panic makes reading the node's text panic with this value.
	Panic any
}

// Document maps selectors to the nodes they match.
type Document map[string][]*Node

// Behavior scripts what happens when a URL is opened.
type Behavior struct {
	Doc Document
	// Delay stalls navigation; a delay beyond the navigation timeout fails it.
	Delay time.Duration
	Err   error
	// Panic makes navigation panic with this value.
	Panic any
}

// Driver is a Launcher, Browser and Session at once.
type Driver struct {
	mu    sync.Mutex
	sites map[string]Behavior

	launches  atomic.Int64
	sessions  atomic.Int64
	navs      atomic.Int64
	openPages atomic.Int64
	peakPages atomic.Int64
	closed    atomic.Int64
}

var (
	_ crawler.Launcher = (*Driver)(nil)
	_ crawler.Browser  = (*Driver)(nil)
	_ crawler.Session  = (*Driver)(nil)
)

// New returns an empty driver.
func New() *Driver {
	return &Driver{sites: make(map[string]Behavior)}
}

// Serve registers the behavior for url.
func (d *Driver) Serve(url string, b Behavior) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sites[url] = b
}

// Launches counts Launch calls.
func (d *Driver) Launches() int64 { return d.launches.Load() }

// Sessions counts OpenSession calls.
func (d *Driver) Sessions() int64 { return d.sessions.Load() }

// Navigations counts Navigate calls.
func (d *Driver) Navigations() int64 { return d.navs.Load() }

// OpenPages is the number of pages not yet closed.
func (d *Driver) OpenPages() int64 { return d.openPages.Load() }

// PeakPages is the largest number of pages open at once.
func (d *Driver) PeakPages() int64 { return d.peakPages.Load() }

// ClosedPages counts Page.Close calls.
func (d *Driver) ClosedPages() int64 { return d.closed.Load() }

// Launch returns the driver itself.
func (d *Driver) Launch(context.Context) (crawler.Browser, error) {
	d.launches.Add(1)
	return d, nil
}

// OpenSession returns the driver itself.
func (d *Driver) OpenSession(context.Context, crawler.SessionOptions) (crawler.Session, error) {
	d.sessions.Add(1)
	return d, nil
}

// NewPage opens a blank page.
func (d *Driver) NewPage(ctx context.Context) (crawler.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := d.openPages.Add(1)
	for {
		peak := d.peakPages.Load()
		if n <= peak || d.peakPages.CompareAndSwap(peak, n) {
			break
		}
	}
	return &Page{driver: d}, nil
}

// Close is a no-op.
func (d *Driver) Close() error { return nil }

func (d *Driver) behavior(url string) (Behavior, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.sites[url]
	return b, ok
}

// Page is a fake tab.
type Page struct {
	driver *Driver
	once   sync.Once

	mu  sync.Mutex
	doc Document
	url string
}

// Navigate applies the registered behavior for url.
func (p *Page) Navigate(ctx context.Context, url string, _ crawler.WaitStrategy, timeout time.Duration) error {
	p.driver.navs.Add(1)
	b, ok := p.driver.behavior(url)
	if !ok {
		return fmt.Errorf("navigate %s: 404", url)
	}
	if b.Panic != nil {
		panic(b.Panic)
	}
	if b.Delay > 0 {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		timer := time.NewTimer(b.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("navigate %s: %w", url, ctx.Err())
		case <-timer.C:
		}
	}
	if b.Err != nil {
		return b.Err
	}
	p.mu.Lock()
	p.doc = b.Doc
	p.url = url
	p.mu.Unlock()
	return nil
}

// URL returns the last address navigated to.
func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// QuerySelector returns the first node registered for selector.
func (p *Page) QuerySelector(ctx context.Context, selector string) (crawler.Element, error) {
	all, _ := p.QuerySelectorAll(ctx, selector)
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrNoElement, selector)
	}
	return all[0], nil
}

// QuerySelectorAll returns every node registered for selector.
func (p *Page) QuerySelectorAll(_ context.Context, selector string) ([]crawler.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return wrap(p.doc[selector]), nil
}

// Fill is a no-op.
func (p *Page) Fill(context.Context, string, string) error { return nil }

// SelectOption is a no-op.
func (p *Page) SelectOption(context.Context, string, string) error { return nil }

// Press is a no-op.
func (p *Page) Press(context.Context, string, string) error { return nil }

// WaitForSelector succeeds when selector has nodes.
func (p *Page) WaitForSelector(ctx context.Context, selector string, _ crawler.ElementState, _ time.Duration) error {
	_, err := p.QuerySelector(ctx, selector)
	return err
}

// Close releases the page once.
func (p *Page) Close() error {
	p.once.Do(func() {
		p.driver.openPages.Add(-1)
		p.driver.closed.Add(1)
	})
	return nil
}

// Element wraps a Node.
type Element struct {
	node *Node
}

// Text returns the node text.
func (e *Element) Text(context.Context) (string, error) {
	if e.node.Panic != nil {
		panic(e.node.Panic)
	}
	return e.node.Text, nil
}

// Attribute returns an attribute.
func (e *Element) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.node.Attrs[name]
	return v, ok, nil
}

// Click is a no-op.
func (e *Element) Click(context.Context) error { return nil }

// QuerySelector returns the first child registered for selector.
func (e *Element) QuerySelector(_ context.Context, selector string) (crawler.Element, error) {
	nodes := e.node.Children[selector]
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrNoElement, selector)
	}
	return &Element{node: nodes[0]}, nil
}

// QuerySelectorAll returns every child registered for selector.
func (e *Element) QuerySelectorAll(_ context.Context, selector string) ([]crawler.Element, error) {
	return wrap(e.node.Children[selector]), nil
}

func wrap(nodes []*Node) []crawler.Element {
	out := make([]crawler.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{node: n})
	}
	return out
}

// Text builds a leaf node.
func Text(s string) *Node { return &Node{Text: s} }

// DetailDocument builds a complete detail page for the default selectors.
func DetailDocument(fields map[crawler.Field]string, parties []crawler.Party, movements []crawler.MovementEntry) Document {
	sel := crawler.DefaultDetailSelectors()
	doc := Document{}
	for _, loc := range sel.Fields {
		if v, ok := fields[loc.Field]; ok {
			doc[loc.Selector] = []*Node{Text(v)}
		}
	}
	for _, p := range parties {
		doc[sel.PrimaryPartiesRows] = append(doc[sel.PrimaryPartiesRows], &Node{Children: map[string][]*Node{
			sel.PartyRole: {Text(p.Role)},
			sel.PartyName: {Text(p.Name)},
		}})
	}
	for _, m := range movements {
		doc[sel.MovementRows] = append(doc[sel.MovementRows], &Node{Children: map[string][]*Node{
			sel.MovementDate:        {Text(m.Date)},
			sel.MovementDescription: {Text(m.Description)},
		}})
	}
	return doc
}
