// Package discovery runs the per-source paginated search that produces the
// light records fed into enrichment.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/jitter"
	"github.com/JakeFAU/docket-crawler/internal/policy/ratelimit"
)

// Default timeouts.
const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultResultTimeout  = 15 * time.Second
)

// Config controls discovery.
type Config struct {
	Selectors crawler.SearchSelectors
	// RequestTimeout bounds the search form navigation.
	RequestTimeout time.Duration
	// PageTimeout bounds pagination navigations. Zero means RequestTimeout.
	PageTimeout time.Duration
	// ResultTimeout bounds waiting for the result listing.
	ResultTimeout time.Duration
	// MaxPages caps pages per source; zero means unlimited.
	MaxPages   int
	UserAgent  string
	InitScript string
}

// SourceReport summarizes one source's discovery.
type SourceReport struct {
	Source  string
	Records int
	Pages   int
	// Err is nil on success. Records may be non-zero alongside Err when
	// pagination failed part way through.
	Err error
}

// Result is the combined discovery output.
type Result struct {
	// Records concatenates every source's records in source order.
	Records []crawler.LightRecord
	Sources []SourceReport
}

// Orchestrator runs discovery across sources.
type Orchestrator struct {
	cfg     Config
	jitter  *jitter.Jitter
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithJitter sets the politeness delay policy.
func WithJitter(j *jitter.Jitter) Option {
	return func(o *Orchestrator) { o.jitter = j }
}

// WithRateLimiter paces navigations per host.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New builds an Orchestrator, filling zero config values with defaults.
func New(cfg Config, opts ...Option) *Orchestrator {
	if cfg.Selectors == (crawler.SearchSelectors{}) {
		cfg.Selectors = crawler.DefaultSearchSelectors()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = cfg.RequestTimeout
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = DefaultResultTimeout
	}
	o := &Orchestrator{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("discovery")
	return o
}

// Discover searches every source for query concurrently. Per-source failures
// are reported in Result.Sources and never fail the call; only an invalid
// query, a missing pool or a cancelled ctx return an error.
func (o *Orchestrator) Discover(ctx context.Context, query string, sources []crawler.SourceEndpoint, pool *Pool) (Result, error) {
	q, err := crawler.NormalizeQuery(query)
	if err != nil {
		return Result{}, err
	}
	if pool.Size() == 0 {
		return Result{}, errors.New("discovery: empty browser pool")
	}

	perSource := make([][]crawler.LightRecord, len(sources))
	reports := make([]SourceReport, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src crawler.SourceEndpoint) {
			defer wg.Done()
			records, report := o.runSource(ctx, i, q, src, pool)
			perSource[i] = records
			reports[i] = report
		}(i, src)
	}
	wg.Wait()

	out := Result{Sources: reports}
	for _, records := range perSource {
		out.Records = append(out.Records, records...)
	}
	if out.Records == nil {
		out.Records = []crawler.LightRecord{}
	}
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("discovery: %w", err)
	}
	return out, nil
}

func (o *Orchestrator) runSource(ctx context.Context, i int, query string, src crawler.SourceEndpoint, pool *Pool) ([]crawler.LightRecord, SourceReport) {
	report := SourceReport{Source: src.Tag()}
	logger := o.logger.With(zap.String("source", report.Source))

	browser, release, err := pool.acquire(ctx, i)
	if err != nil {
		report.Err = err
		return nil, report
	}
	defer release()

	start := time.Now()
	records, pages, err := o.crawlSource(ctx, browser, query, src, logger)
	report.Records = len(records)
	report.Pages = pages
	report.Err = err
	switch {
	case err == nil:
		logger.Info("source done",
			zap.Int("records", len(records)),
			zap.Int("pages", pages),
			zap.Duration("elapsed", time.Since(start)),
		)
	case errors.Is(err, crawler.ErrSourceUnavailable):
		logger.Warn("no results", zap.String("query", query), zap.Error(err))
	default:
		logger.Error("source failed",
			zap.Int("records_kept", len(records)),
			zap.Int("pages", pages),
			zap.Error(err),
		)
	}
	return records, report
}

func (o *Orchestrator) crawlSource(
	ctx context.Context,
	browser crawler.Browser,
	query string,
	src crawler.SourceEndpoint,
	logger *zap.Logger,
) ([]crawler.LightRecord, int, error) {
	sel := o.cfg.Selectors
	session, err := browser.OpenSession(ctx, crawler.SessionOptions{
		Locale:     src.Locale,
		TimezoneID: src.TimezoneID,
		UserAgent:  o.cfg.UserAgent,
		InitScript: o.cfg.InitScript,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("open session: %w", err)
	}
	defer closeQuietly(session, logger)

	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("open page: %w", err)
	}
	defer closeQuietly(page, logger)

	searchURL := src.Tag() + sel.SearchPath
	if err := o.limiter.Wait(ctx, searchURL); err != nil {
		return nil, 0, err
	}
	if err := page.Navigate(ctx, searchURL, crawler.WaitLoad, o.cfg.RequestTimeout); err != nil {
		return nil, 0, fmt.Errorf("open search form: %w", err)
	}
	if err := o.jitter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	if err := page.SelectOption(ctx, sel.ModeSelect, sel.ModeValue); err != nil {
		return nil, 0, fmt.Errorf("select search mode: %w", err)
	}
	if err := page.Fill(ctx, sel.QueryInput, query); err != nil {
		return nil, 0, fmt.Errorf("fill query: %w", err)
	}
	if err := page.Press(ctx, sel.QueryInput, crawler.KeyEnter); err != nil {
		return nil, 0, fmt.Errorf("submit query: %w", err)
	}
	if err := o.jitter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	if err := o.awaitResults(ctx, page); err != nil {
		return nil, 0, err
	}

	var records []crawler.LightRecord
	for pages := 1; ; pages++ {
		if err := page.WaitForSelector(ctx, sel.ResultLink, crawler.StateAttached, o.cfg.ResultTimeout); err != nil {
			return records, pages - 1, fmt.Errorf("page %d: %w", pages, err)
		}
		batch, err := o.extractPage(ctx, page, src)
		if err != nil {
			return records, pages - 1, fmt.Errorf("page %d: %w", pages, err)
		}
		records = append(records, batch...)
		logger.Debug("page extracted", zap.Int("page", pages), zap.Int("records", len(batch)))

		if o.cfg.MaxPages > 0 && pages >= o.cfg.MaxPages {
			return records, pages, nil
		}
		next, ok := o.nextPage(ctx, page, src)
		if !ok {
			return records, pages, nil
		}
		if err := o.limiter.Wait(ctx, next); err != nil {
			return records, pages, err
		}
		if err := page.Navigate(ctx, next, crawler.WaitLoad, o.cfg.PageTimeout); err != nil {
			return records, pages, fmt.Errorf("page %d: %w", pages+1, err)
		}
		if err := o.jitter.Wait(ctx); err != nil {
			return records, pages, err
		}
	}
}

// awaitResults races the result link against the error indicator. The
// indicator wins whenever it is on the page, even if result links are too.
func (o *Orchestrator) awaitResults(ctx context.Context, page crawler.Page) error {
	sel := o.cfg.Selectors
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		results bool
		err     error
	}
	ch := make(chan outcome, 2)
	go func() {
		err := page.WaitForSelector(waitCtx, sel.ResultLink, crawler.StateAttached, o.cfg.ResultTimeout)
		ch <- outcome{results: true, err: err}
	}()
	go func() {
		err := page.WaitForSelector(waitCtx, sel.ErrorIndicator, crawler.StateAttached, o.cfg.ResultTimeout)
		ch <- outcome{results: false, err: err}
	}()

	for i := 0; i < 2; i++ {
		res := <-ch
		if res.err != nil {
			continue
		}
		if res.results {
			if _, err := page.QuerySelector(ctx, sel.ErrorIndicator); err == nil {
				return fmt.Errorf("%w: source reported no matches", crawler.ErrSourceUnavailable)
			}
			return nil
		}
		return fmt.Errorf("%w: source reported no matches", crawler.ErrSourceUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: no result listing", crawler.ErrSourceUnavailable)
}

type closer interface {
	Close() error
}

func closeQuietly(c closer, logger *zap.Logger) {
	if err := c.Close(); err != nil {
		logger.Debug("close failed", zap.Error(err))
	}
}

func trimRole(role string) string {
	return strings.TrimSpace(strings.ReplaceAll(role, ":", ""))
}
