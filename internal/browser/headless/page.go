package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// Page is a Chrome tab.
type Page struct {
	ctx           context.Context
	cancel        context.CancelFunc
	actionTimeout time.Duration

	once sync.Once
}

var _ crawler.Page = (*Page)(nil)

// navigateResult mirrors the Page.navigate reply.
type navigateResult struct {
	FrameID   cdp.FrameID  `json:"frameId"`
	LoaderID  cdp.LoaderID `json:"loaderId"`
	ErrorText string       `json:"errorText"`
}

// Navigate loads url. WaitLoad waits for the load event; WaitDOMContentLoaded
// returns once the body is parsed.
func (p *Page) Navigate(ctx context.Context, url string, wait crawler.WaitStrategy, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.actionTimeout
	}
	var action chromedp.Action
	if wait == crawler.WaitDOMContentLoaded {
		action = chromedp.Tasks{
			chromedp.ActionFunc(func(ctx context.Context) error {
				var res navigateResult
				if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
					return err
				}
				if res.ErrorText != "" {
					return fmt.Errorf("page load error %s", res.ErrorText)
				}
				return nil
			}),
			chromedp.WaitReady("body", chromedp.ByQuery),
		}
	} else {
		action = chromedp.Navigate(url)
	}
	if err := run(ctx, p.ctx, timeout, action); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// URL reports the tab's current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := run(ctx, p.ctx, p.actionTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// QuerySelector returns the first match without waiting.
func (p *Page) QuerySelector(ctx context.Context, selector string) (crawler.Element, error) {
	nodes, err := p.nodes(ctx, selector, nil)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrNoElement, selector)
	}
	return &Element{page: p, node: nodes[0]}, nil
}

// QuerySelectorAll returns all matches without waiting.
func (p *Page) QuerySelectorAll(ctx context.Context, selector string) ([]crawler.Element, error) {
	nodes, err := p.nodes(ctx, selector, nil)
	if err != nil {
		return nil, err
	}
	return p.wrap(nodes), nil
}

// Fill sets an input value and fires the events listeners expect.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	el, err := p.QuerySelector(ctx, selector)
	if err != nil {
		return err
	}
	return el.(*Element).call(ctx, `function(){
		this.focus();
		this.value = `+jsString(value)+`;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`, nil)
}

// SelectOption picks the option with the given value and fires change.
func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	el, err := p.QuerySelector(ctx, selector)
	if err != nil {
		return err
	}
	var ok bool
	if err := el.(*Element).call(ctx, `function(){
		const want = `+jsString(value)+`;
		const opt = Array.from(this.options || []).find(o => o.value === want || o.text.trim() === want);
		if (!opt) { return false; }
		this.value = opt.value;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	}`, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("select %s: no option %q", selector, value)
	}
	return nil
}

// Press focuses selector and types key. Only Enter is supported.
func (p *Page) Press(ctx context.Context, selector, key string) error {
	if key != crawler.KeyEnter {
		return fmt.Errorf("press %s: unsupported key %q", selector, key)
	}
	if err := run(ctx, p.ctx, p.actionTimeout, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("press %s: %w", selector, err)
	}
	return nil
}

// WaitForSelector polls until selector reaches state or timeout elapses.
func (p *Page) WaitForSelector(ctx context.Context, selector string, state crawler.ElementState, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.actionTimeout
	}
	action := chromedp.WaitReady(selector, chromedp.ByQuery)
	if state == crawler.StateVisible {
		action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	}
	if err := run(ctx, p.ctx, timeout, action); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("wait for %s: %w", selector, err)
		}
		return fmt.Errorf("wait for %s (%s): %w: %w", selector, state, crawler.ErrNoElement, err)
	}
	return nil
}

// Close closes the tab.
func (p *Page) Close() error {
	p.once.Do(p.cancel)
	return nil
}

func (p *Page) nodes(ctx context.Context, selector string, from *cdp.Node) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if from != nil {
		opts = append(opts, chromedp.FromNode(from))
	}
	if err := run(ctx, p.ctx, p.actionTimeout, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	return nodes, nil
}

func (p *Page) wrap(nodes []*cdp.Node) []crawler.Element {
	out := make([]crawler.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{page: p, node: n})
	}
	return out
}

// Element is a DOM node handle.
type Element struct {
	page *Page
	node *cdp.Node
}

var _ crawler.Element = (*Element)(nil)

// Text returns innerText.
func (e *Element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.call(ctx, `function(){ return this.innerText || this.textContent || ""; }`, &text); err != nil {
		return "", err
	}
	return text, nil
}

// Attribute reads a live attribute value.
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var value *string
	fn := `function(){ const n = ` + jsString(name) + `; return this.hasAttribute(n) ? this.getAttribute(n) : null; }`
	if err := e.call(ctx, fn, &value); err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

// Click dispatches a DOM click.
func (e *Element) Click(ctx context.Context) error {
	return e.call(ctx, `function(){ this.click(); }`, nil)
}

// QuerySelector searches below the element.
func (e *Element) QuerySelector(ctx context.Context, selector string) (crawler.Element, error) {
	nodes, err := e.page.nodes(ctx, selector, e.node)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrNoElement, selector)
	}
	return &Element{page: e.page, node: nodes[0]}, nil
}

// QuerySelectorAll searches below the element.
func (e *Element) QuerySelectorAll(ctx context.Context, selector string) ([]crawler.Element, error) {
	nodes, err := e.page.nodes(ctx, selector, e.node)
	if err != nil {
		return nil, err
	}
	return e.page.wrap(nodes), nil
}

// call runs fn with this bound to the element and decodes the returned value
// into out when out is non-nil.
func (e *Element) call(ctx context.Context, fn string, out any) error {
	action := chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve node: %w", err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("call function: %w", err)
		}
		if exc != nil {
			return fmt.Errorf("call function: %s", exc.Text)
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		if err := json.Unmarshal([]byte(res.Value), out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return nil
	})
	return run(ctx, e.page.ctx, e.page.actionTimeout, action)
}

// fingerprintAction applies the session's locale, timezone, user agent and
// init script to a fresh tab.
func fingerprintAction(opts crawler.SessionOptions) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if opts.Locale != "" {
			if err := emulation.SetLocaleOverride().WithLocale(opts.Locale).Do(ctx); err != nil {
				return fmt.Errorf("set locale: %w", err)
			}
		}
		if opts.TimezoneID != "" {
			if err := emulation.SetTimezoneOverride(opts.TimezoneID).Do(ctx); err != nil {
				return fmt.Errorf("set timezone: %w", err)
			}
		}
		if opts.UserAgent != "" {
			ua := emulation.SetUserAgentOverride(opts.UserAgent)
			if opts.Locale != "" {
				ua = ua.WithAcceptLanguage(opts.Locale)
			}
			if err := ua.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if opts.InitScript != "" {
			if _, err := page.AddScriptToEvaluateOnNewDocument(opts.InitScript).Do(ctx); err != nil {
				return fmt.Errorf("add init script: %w", err)
			}
		}
		return nil
	})
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
