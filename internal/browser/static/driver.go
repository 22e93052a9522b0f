package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// errClosed is returned when a closed browser, session or page is used.
var errClosed = errors.New("static driver: closed")

// Config controls the HTTP side of the static driver.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// Transport overrides the pooled HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// Launcher creates static browsers that share one connection pool.
type Launcher struct {
	cfg       Config
	transport http.RoundTripper
}

var _ crawler.Launcher = (*Launcher)(nil)

// NewLauncher builds a Launcher.
func NewLauncher(cfg Config) *Launcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	if cfg.RespectRobots {
		transport = &robotsTransport{base: transport}
	}
	return &Launcher{cfg: cfg, transport: transport}
}

// Launch returns a new pool slot.
func (l *Launcher) Launch(ctx context.Context) (crawler.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch static browser: %w", err)
	}
	return &Browser{cfg: l.cfg, transport: l.transport}, nil
}

// Browser is a pool slot. Sessions opened from it have independent cookies.
type Browser struct {
	cfg       Config
	transport http.RoundTripper

	mu     sync.Mutex
	closed bool
}

// OpenSession creates a session with its own collector and cookie jar.
func (b *Browser) OpenSession(ctx context.Context, opts crawler.SessionOptions) (crawler.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open static session: %w", err)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = b.cfg.UserAgent
	}
	options := []colly.CollectorOption{colly.AllowURLRevisit()}
	if ua != "" {
		options = append(options, colly.UserAgent(ua))
	}
	if opts.Locale != "" {
		options = append(options, colly.Headers(map[string]string{
			"Accept-Language": acceptLanguage(opts.Locale),
		}))
	}
	collector := colly.NewCollector(options...)
	collector.WithTransport(b.transport)
	collector.SetRequestTimeout(b.cfg.Timeout)
	collector.IgnoreRobotsTxt = !b.cfg.RespectRobots

	return &Session{collector: collector}, nil
}

// Close marks the browser closed.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Session is an isolated cookie context.
type Session struct {
	collector *colly.Collector

	mu     sync.Mutex
	closed bool
}

// NewPage opens an empty page bound to the session's cookies.
func (s *Session) NewPage(ctx context.Context) (crawler.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("new static page: %w", err)
	}
	return newPage(s.collector), nil
}

// Close marks the session closed; pages already open keep working until closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// acceptLanguage turns "pt-BR" into "pt-BR,pt;q=0.9".
func acceptLanguage(locale string) string {
	for i, r := range locale {
		if r == '-' || r == '_' {
			return locale + "," + locale[:i] + ";q=0.9"
		}
	}
	return locale
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
