package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/admission"
	"github.com/JakeFAU/docket-crawler/internal/aggregate"
	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/enrichment"
	"github.com/JakeFAU/docket-crawler/internal/export"
	"github.com/JakeFAU/docket-crawler/internal/progress"
	"github.com/JakeFAU/docket-crawler/internal/telemetry"
)

// ErrNoSources is returned when a run has nothing to search.
var ErrNoSources = errors.New("pipeline: no sources configured")

// DefaultConcurrency is the admission capacity used when none is configured.
const DefaultConcurrency = 5

// Config describes what a run searches and how.
type Config struct {
	Sources []crawler.SourceEndpoint
	// PoolSize caps discovery browsers; a run launches min(PoolSize, sources).
	// Zero means one browser per source.
	PoolSize int
	// Concurrency is the admission capacity when no limiter is supplied.
	Concurrency int
	Discovery   discovery.Config
	Enrichment  enrichment.Config
	// EnrichmentSession configures the session shared by all detail pages.
	EnrichmentSession crawler.SessionOptions
	// Topic receives the run summary when a publisher is set.
	Topic string
}

// Runner executes crawl runs.
type Runner struct {
	cfg       Config
	launcher  crawler.Launcher
	limiter   *admission.Limiter
	discovery *discovery.Orchestrator
	scheduler *enrichment.Scheduler

	discoveryOpts []discovery.Option
	exporter      *export.Exporter
	records       crawler.RecordStore
	publisher     crawler.Publisher
	events        progress.Emitter
	tracer        trace.Tracer
	logger        *zap.Logger
	now           func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLimiter shares an admission limiter, typically one per process.
func WithLimiter(l *admission.Limiter) Option {
	return func(r *Runner) { r.limiter = l }
}

// WithDiscoveryOptions forwards options (jitter, rate limiter) to discovery.
func WithDiscoveryOptions(opts ...discovery.Option) Option {
	return func(r *Runner) { r.discoveryOpts = append(r.discoveryOpts, opts...) }
}

// WithExporter writes CSV files after each successful run.
func WithExporter(e *export.Exporter) Option {
	return func(r *Runner) { r.exporter = e }
}

// WithRecordStore persists final records after each successful run.
func WithRecordStore(s crawler.RecordStore) Option {
	return func(r *Runner) { r.records = s }
}

// WithPublisher announces each successful run on Config.Topic.
func WithPublisher(p crawler.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithProgress receives run, source and detail milestones.
func WithProgress(e progress.Emitter) Option {
	return func(r *Runner) {
		if e != nil {
			r.events = e
		}
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New builds a Runner that launches browsers through launcher.
func New(cfg Config, launcher crawler.Launcher, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		launcher: launcher,
		events:   progress.Discard,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.limiter == nil {
		capacity := cfg.Concurrency
		if capacity <= 0 {
			capacity = DefaultConcurrency
		}
		r.limiter = admission.New(capacity)
	}
	if r.tracer == nil {
		r.tracer = telemetry.Tracer()
	}
	r.logger = r.logger.Named("pipeline")
	r.discovery = discovery.New(cfg.Discovery, append([]discovery.Option{discovery.WithLogger(r.logger)}, r.discoveryOpts...)...)
	r.scheduler = enrichment.NewScheduler(enrichment.NewEnricher(cfg.Enrichment, r.logger), r.limiter, r.logger)
	return r
}

// Limiter exposes the admission limiter for metrics.
func (r *Runner) Limiter() *admission.Limiter {
	return r.limiter
}

// Run crawls query across every configured source. An invalid query returns
// a *crawler.ValidationError before any browser is launched. When the run
// fails after discovery the returned Run still carries what was gathered.
func (r *Runner) Run(ctx context.Context, query string) (*Run, error) {
	q, err := crawler.NormalizeQuery(query)
	if err != nil {
		return nil, err
	}
	if len(r.cfg.Sources) == 0 {
		return nil, ErrNoSources
	}

	run := &Run{ID: newRunID(), Query: q, StartedAt: r.now().UTC()}
	ctx, span := r.tracer.Start(ctx, "crawl.run", trace.WithAttributes(
		attribute.String("run.id", run.ID.String()),
		attribute.String("crawl.query", q),
		attribute.Int("crawl.sources", len(r.cfg.Sources)),
	))
	defer span.End()

	logger := r.logger.With(zap.String("run_id", run.ID.String()), zap.String("query", q))
	logger.Info("run started", zap.Int("sources", len(r.cfg.Sources)))
	r.emit(progress.Event{RunID: run.ID, Stage: progress.StageRunStart, Query: q})

	err = r.execute(ctx, run, logger)
	run.FinishedAt = r.now().UTC()
	elapsed := run.FinishedAt.Sub(run.StartedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.emit(progress.Event{RunID: run.ID, Stage: progress.StageRunError, Dur: elapsed, Note: err.Error()})
		logger.Error("run failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return run, err
	}

	r.announce(ctx, run, logger)
	span.SetAttributes(attribute.Int("crawl.records", len(run.Records)))
	r.emit(progress.Event{RunID: run.ID, Stage: progress.StageRunDone, Records: int64(len(run.Records)), Dur: elapsed})
	logger.Info("run finished",
		zap.Int("total_records", len(run.Records)),
		zap.Int("failed", run.Stats.Failed),
		zap.Int("degraded", run.Stats.Degraded),
		zap.Duration("elapsed", elapsed),
	)
	return run, nil
}

func (r *Runner) execute(ctx context.Context, run *Run, logger *zap.Logger) error {
	found, err := r.discover(ctx, run, logger)
	if err != nil {
		return err
	}

	results, err := r.enrich(ctx, run, found, logger)
	if err != nil {
		return err
	}

	run.Records, err = aggregate.Merge(results)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	run.Stats = aggregate.Summarize(results)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	return r.deliver(ctx, run, found)
}

func (r *Runner) discover(ctx context.Context, run *Run, logger *zap.Logger) ([]crawler.LightRecord, error) {
	ctx, span := r.tracer.Start(ctx, "crawl.discovery")
	defer span.End()

	size := r.cfg.PoolSize
	if size <= 0 || size > len(r.cfg.Sources) {
		size = len(r.cfg.Sources)
	}
	pool, err := discovery.LaunchPool(ctx, r.launcher, size)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("launch discovery pool: %w", err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Warn("close discovery pool", zap.Error(err))
		}
	}()

	res, err := r.discovery.Discover(ctx, run.Query, r.cfg.Sources, pool)
	for _, rep := range res.Sources {
		run.Sources = append(run.Sources, newSourceSummary(rep))
		evt := progress.Event{
			RunID:   run.ID,
			Stage:   progress.StageSourceDone,
			Source:  rep.Source,
			Records: int64(rep.Records),
			Pages:   int64(rep.Pages),
		}
		if rep.Err != nil {
			evt.Note = rep.Err.Error()
		}
		r.emit(evt)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("crawl.discovered", len(res.Records)))
	logger.Info("discovery finished", zap.Int("records", len(res.Records)))
	return res.Records, nil
}

func (r *Runner) enrich(ctx context.Context, run *Run, found []crawler.LightRecord, logger *zap.Logger) ([]enrichment.Result, error) {
	if len(found) == 0 {
		return []enrichment.Result{}, nil
	}
	ctx, span := r.tracer.Start(ctx, "crawl.enrichment", trace.WithAttributes(attribute.Int("crawl.details", len(found))))
	defer span.End()

	browser, err := r.launcher.Launch(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("launch enrichment browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warn("close enrichment browser", zap.Error(err))
		}
	}()

	opts := r.cfg.EnrichmentSession
	if opts.Locale == "" {
		opts.Locale = r.cfg.Sources[0].Locale
	}
	if opts.TimezoneID == "" {
		opts.TimezoneID = r.cfg.Sources[0].TimezoneID
	}
	session, err := browser.OpenSession(ctx, opts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("open enrichment session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("close enrichment session", zap.Error(err))
		}
	}()

	results := r.scheduler.Run(ctx, session, found, func(completed, total int, res enrichment.Result) {
		logger.Info(fmt.Sprintf("[%d/%d] processed", completed, total), zap.String("link", res.Light.DetailLink))
		r.emit(progress.Event{
			RunID:   run.ID,
			Stage:   progress.StageDetailDone,
			Source:  res.Light.SourceTag,
			URL:     res.Light.DetailLink,
			Outcome: outcomeOf(res.Report),
			Dur:     res.Report.Duration,
		})
	})
	return results, nil
}

func (r *Runner) deliver(ctx context.Context, run *Run, found []crawler.LightRecord) error {
	if r.exporter != nil {
		m, err := r.exporter.Export(ctx, run.Query, run.Records, found)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		run.Export = &m
	}
	if r.records != nil {
		if err := r.records.SaveRecords(ctx, run.ID.String(), run.Query, run.Records); err != nil {
			return fmt.Errorf("save records: %w", err)
		}
	}
	return nil
}

// announce publishes the run summary. Failures are logged only: the run's
// data is already exported and stored.
func (r *Runner) announce(ctx context.Context, run *Run, logger *zap.Logger) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	id, err := r.publisher.Publish(ctx, r.cfg.Topic, run.Summary())
	if err != nil {
		logger.Warn("publish run summary", zap.String("topic", r.cfg.Topic), zap.Error(err))
		return
	}
	run.MessageID = id
}

func (r *Runner) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = r.now().UTC()
	}
	r.events.Emit(evt)
}

func outcomeOf(rep enrichment.Report) progress.Outcome {
	switch {
	case rep.Failed():
		return progress.OutcomeFailed
	case len(rep.Faults()) > 0:
		return progress.OutcomeDegraded
	default:
		return progress.OutcomeOK
	}
}

func newRunID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
