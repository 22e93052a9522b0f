// Package headless implements the crawler page-driver contract on top of
// headless Chrome through chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// DefaultInitScript hides the most common automation fingerprints.
const DefaultInitScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.navigator.chrome = { runtime: {} };
Object.defineProperty(navigator, 'languages', { get: () => ['pt-BR', 'pt', 'en-US', 'en'] });`

var errClosed = errors.New("headless driver: closed")

// Config controls how Chrome is started.
type Config struct {
	// ExecPath overrides Chrome discovery.
	ExecPath string
	Headless bool
	// ActionTimeout bounds DOM operations that take no explicit timeout.
	ActionTimeout time.Duration
	WindowWidth   int
	WindowHeight  int
}

// Launcher starts one Chrome process per pool slot.
type Launcher struct {
	cfg Config
}

var _ crawler.Launcher = (*Launcher)(nil)

// NewLauncher builds a Launcher.
func NewLauncher(cfg Config) *Launcher {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 15 * time.Second
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1366, 768
	}
	return &Launcher{cfg: cfg}
}

// Launch starts Chrome. The process outlives ctx and stops on Browser.Close.
func (l *Launcher) Launch(ctx context.Context) (crawler.Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	stop := func() {
		browserCancel()
		allocCancel()
	}
	// Chrome is slow to boot on cold containers; only the caller bounds it.
	if err := start(ctx, browserCtx, stop, 0); err != nil {
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &Browser{
		cfg:           l.cfg,
		ctx:           browserCtx,
		cancel:        browserCancel,
		cancelAlloc:   allocCancel,
		sessionCancel: make(map[*Session]context.CancelFunc),
	}, nil
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-zygote", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(l.cfg.WindowWidth, l.cfg.WindowHeight),
	)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Browser is one Chrome process.
type Browser struct {
	cfg         Config
	ctx         context.Context
	cancel      context.CancelFunc
	cancelAlloc context.CancelFunc

	mu            sync.Mutex
	closed        bool
	sessionCancel map[*Session]context.CancelFunc
}

// OpenSession creates an incognito-like browser context.
func (b *Browser) OpenSession(ctx context.Context, opts crawler.SessionOptions) (crawler.Session, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errClosed
	}
	sessCtx, sessCancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	s := &Session{browser: b, ctx: sessCtx, cancel: sessCancel, opts: opts, actionTimeout: b.cfg.ActionTimeout}
	b.sessionCancel[s] = sessCancel
	b.mu.Unlock()

	// Materialize the browser context so pages inherit its id.
	if err := start(ctx, sessCtx, func() { _ = s.Close() }, b.cfg.ActionTimeout); err != nil {
		return nil, fmt.Errorf("open browser context: %w", err)
	}
	return s, nil
}

// Close stops Chrome and every session on it.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancels := make([]context.CancelFunc, 0, len(b.sessionCancel))
	for _, c := range b.sessionCancel {
		cancels = append(cancels, c)
	}
	b.sessionCancel = nil
	b.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	b.cancel()
	b.cancelAlloc()
	return nil
}

func (b *Browser) forget(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessionCancel, s)
}

// Session is a Chrome browser context.
type Session struct {
	browser       *Browser
	ctx           context.Context
	cancel        context.CancelFunc
	opts          crawler.SessionOptions
	actionTimeout time.Duration

	once sync.Once
	mu   sync.Mutex
	done bool
}

// NewPage opens a tab with the session fingerprint applied.
func (s *Session) NewPage(ctx context.Context) (crawler.Page, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, errClosed
	}
	tabCtx, tabCancel := chromedp.NewContext(s.ctx)
	s.mu.Unlock()

	p := &Page{ctx: tabCtx, cancel: tabCancel, actionTimeout: s.actionTimeout}
	if err := start(ctx, tabCtx, func() { _ = p.Close() }, s.actionTimeout, fingerprintAction(s.opts)); err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

// Close disposes the browser context and its tabs.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
		s.cancel()
		s.browser.forget(s)
	})
	return nil
}

// start performs the first Run on target. chromedp binds the lifetime of the
// tab or browser to the context of that first Run, so it cannot carry a
// deadline; the caller and timeout are enforced from outside and abort calls
// abandon.
func start(caller, target context.Context, abort func(), timeout time.Duration, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(target, actions...)
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case err := <-done:
		if err != nil {
			abort()
		}
		return err
	case <-caller.Done():
		abort()
		return caller.Err()
	case <-expired:
		abort()
		return context.DeadlineExceeded
	}
}

// run executes actions on target with a timeout, aborting early when caller
// is done.
func run(caller, target context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := caller.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(target, timeout)
	defer cancel()
	stop := forwardCancel(caller, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if callerErr := caller.Err(); callerErr != nil {
			return callerErr
		}
		return err
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
