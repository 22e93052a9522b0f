// Package server wires configuration into a running docket crawler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/admission"
	"github.com/JakeFAU/docket-crawler/internal/api"
	"github.com/JakeFAU/docket-crawler/internal/browser/headless"
	"github.com/JakeFAU/docket-crawler/internal/browser/static"
	"github.com/JakeFAU/docket-crawler/internal/config"
	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/enrichment"
	"github.com/JakeFAU/docket-crawler/internal/export"
	"github.com/JakeFAU/docket-crawler/internal/jitter"
	"github.com/JakeFAU/docket-crawler/internal/logging"
	"github.com/JakeFAU/docket-crawler/internal/metrics"
	"github.com/JakeFAU/docket-crawler/internal/pipeline"
	"github.com/JakeFAU/docket-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/docket-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/docket-crawler/internal/progress/sinks"
	natspublisher "github.com/JakeFAU/docket-crawler/internal/publisher/nats"
	gcppublisher "github.com/JakeFAU/docket-crawler/internal/publisher/pubsub"
	azurestorage "github.com/JakeFAU/docket-crawler/internal/storage/azure"
	gcsstorage "github.com/JakeFAU/docket-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/docket-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/docket-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/docket-crawler/internal/storage/postgres"
	"github.com/JakeFAU/docket-crawler/internal/store"
	"github.com/JakeFAU/docket-crawler/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	runner  *pipeline.Runner
	api     *api.Server

	launcher    crawler.Launcher
	blobs       crawler.BlobStore
	gcs         *gcsstorage.BlobStore
	pool        *pgxpool.Pool
	records     crawler.RecordStore
	runs        store.RunRepository
	publisher   crawler.Publisher
	topic       string
	pubsub      *pubsub.Client
	pubsubTopic *gcppublisher.Publisher
	natsConn    *nats.Conn
	progressHub *progress.Hub
	tracer      *sdktrace.TracerProvider
}

// Option customizes Build.
type Option func(*App)

// WithLogger replaces the logger built from configuration.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithLauncher replaces the configured browser driver.
func WithLauncher(l crawler.Launcher) Option {
	return func(a *App) { a.launcher = l }
}

// WithBlobStore replaces the configured export backend.
func WithBlobStore(s crawler.BlobStore) Option {
	return func(a *App) { a.blobs = s }
}

// WithPublisher replaces the configured run notification publisher.
func WithPublisher(p crawler.Publisher, topic string) Option {
	return func(a *App) {
		a.publisher = p
		a.topic = topic
	}
}

// Build creates the application's dependencies. Close must be called on the
// returned App even when Run is never called.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	app := &App{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger, err = logging.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(app.logger)
	}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
			app.closeObservability(context.Background())
		}
	}()

	app.tracer, err = telemetry.InitTracerProvider(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.metrics, err = metrics.New()
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("browser_driver", cfg.Browser.Driver),
		zap.Int("sources", len(cfg.Sources)),
	)
	if app.launcher == nil {
		app.launcher = setupLauncher(app)
	}
	if err = setupStorage(ctx, app); err != nil {
		return nil, err
	}
	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}
	if err = setupPublisher(ctx, app); err != nil {
		return nil, err
	}
	progressEmitter, err := setupProgress(app)
	if err != nil {
		return nil, err
	}
	if app.runner, err = setupRunner(app, progressEmitter); err != nil {
		return nil, err
	}

	apiCfg := api.Config{RequestTimeout: cfg.Server.RequestTimeout}
	if cfg.Auth.Enabled {
		apiCfg.APIKey = cfg.Auth.APIKey
	}
	app.api = api.NewServer(app.runner, apiCfg,
		api.WithRunRepository(app.runs),
		api.WithMetrics(app.metrics.Handler(), app.metrics.Middleware),
		api.WithLogger(app.logger),
	)
	return app, nil
}

// Handler exposes the HTTP routes.
func (a *App) Handler() http.Handler {
	return a.api.Handler()
}

// Runner exposes the crawl pipeline.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}

// Runs exposes the run history repository.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case serveErr = <-errCh:
		a.logger.Error("http server error", zap.Error(serveErr))
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("serve http: %w", serveErr)
	}
	return nil
}

// RunOnce performs a single crawl outside the HTTP server.
func (a *App) RunOnce(ctx context.Context, query string) (*pipeline.Run, error) {
	return a.runner.Run(ctx, query)
}

// Close flushes progress, releases connections and stops telemetry.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.progressHub = nil
	}
	if a.pubsubTopic != nil {
		a.pubsubTopic.Close()
		a.pubsubTopic = nil
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsub = nil
	}
	if a.natsConn != nil {
		if err := natspublisher.Close(a.natsConn); err != nil {
			a.logger.Warn("nats drain failed", zap.Error(err))
		}
		a.natsConn = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracer = nil
	}
	// Sync fails on console sinks; nothing to do about it.
	_ = a.logger.Sync()
}

func setupLauncher(app *App) crawler.Launcher {
	cfg := app.cfg.Browser
	if cfg.Driver == "static" {
		app.logger.Info("using static browser driver", zap.String("user_agent", cfg.UserAgent))
		return static.NewLauncher(static.Config{
			UserAgent:     cfg.UserAgent,
			RespectRobots: cfg.RespectRobots,
			Timeout:       cfg.HTTPTimeout,
		})
	}
	app.logger.Info("using headless browser driver", zap.Bool("headless", cfg.Headless))
	return headless.NewLauncher(headless.Config{
		ExecPath:      cfg.ExecPath,
		Headless:      cfg.Headless,
		ActionTimeout: cfg.ActionTimeout,
		WindowWidth:   cfg.WindowWidth,
		WindowHeight:  cfg.WindowHeight,
	})
}

func setupStorage(ctx context.Context, app *App) error {
	if app.blobs != nil {
		return nil
	}
	cfg := app.cfg.Export
	switch cfg.Backend {
	case "gcs":
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.gcs = store
		app.blobs = store
		app.logger.Info("using GCS export backend", zap.String("bucket", cfg.Bucket))
	case "azure":
		store, err := azurestorage.New(cfg.Azure)
		if err != nil {
			return fmt.Errorf("azure blob store init failed: %w", err)
		}
		app.blobs = store
		app.logger.Info("using Azure export backend", zap.String("container", cfg.Azure.Container))
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		app.blobs = store
		app.logger.Info("using local export backend", zap.String("path", cfg.BaseDir))
	case "memory":
		app.blobs = memorystorage.NewBlobStore()
		app.logger.Info("using in-memory export backend")
	default:
		app.logger.Info("csv export disabled")
	}
	return nil
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("no database DSN configured, keeping run history in memory")
		app.runs = memorystorage.NewRunStore()
		return nil
	}
	pool, err := pgstore.Connect(ctx, app.cfg.DB)
	if err != nil {
		return err
	}
	app.pool = pool
	if app.records, err = pgstore.NewRecordStore(pool, app.cfg.DB.RecordsTable); err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	if app.runs, err = pgstore.NewRunStore(pool); err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	app.logger.Info("postgres stores initialized", zap.String("records_table", app.cfg.DB.RecordsTable))
	return nil
}

func setupPublisher(ctx context.Context, app *App) error {
	if app.publisher != nil {
		return nil
	}
	switch {
	case app.cfg.PubSub.TopicName != "":
		client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsub = client
		app.pubsubTopic = gcppublisher.New(client)
		app.publisher = app.pubsubTopic
		app.topic = app.cfg.PubSub.TopicName
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.topic),
		)
	case app.cfg.NATS.URL != "":
		logger := app.logger.Named("nats")
		conn, err := natspublisher.Connect(ctx, app.cfg.NATS.Config, logger)
		if err != nil {
			return err
		}
		app.natsConn = conn
		js, err := conn.JetStream()
		if err != nil {
			return fmt.Errorf("nats jetstream init failed: %w", err)
		}
		app.publisher = natspublisher.New(js, app.cfg.NATS.Config, logger)
		app.topic = app.cfg.NATS.Subject
		app.logger.Info("NATS publisher initialized", zap.String("subject", app.topic))
	default:
		app.logger.Info("no run notification publisher configured")
	}
	return nil
}

func setupProgress(app *App) (progress.Emitter, error) {
	if !app.cfg.Progress.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(app.metrics.Registry())
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(app.logger.Named("progress_log")),
		promSink,
		progresssinks.NewStoreSink(app.runs, app.logger.Named("progress_store")),
	}
	hubCfg := app.cfg.Progress.Config
	hubCfg.Logger = app.logger.Named("progress_hub")
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.progressHub, nil
}

func setupRunner(app *App, events progress.Emitter) (*pipeline.Runner, error) {
	cfg := app.cfg
	detail, err := cfg.DetailSelectors()
	if err != nil {
		return nil, err
	}
	pause, err := jitter.New(cfg.Jitter.Min, cfg.Jitter.Max)
	if err != nil {
		return nil, fmt.Errorf("jitter init failed: %w", err)
	}
	limiter := admission.New(cfg.Enrichment.Concurrency)
	if err := app.metrics.RegisterGate(limiter); err != nil {
		return nil, fmt.Errorf("admission metrics init failed: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithLimiter(limiter),
		pipeline.WithDiscoveryOptions(
			discovery.WithJitter(pause),
			discovery.WithRateLimiter(ratelimit.New(cfg.RateLimit, app.metrics.ObserveRateLimitDelay)),
		),
		pipeline.WithProgress(events),
		pipeline.WithLogger(app.logger),
	}
	if app.blobs != nil {
		opts = append(opts, pipeline.WithExporter(
			export.New(app.blobs, export.Config{Prefix: cfg.Export.Prefix}, app.logger.Named("export")),
		))
	}
	if app.records != nil {
		opts = append(opts, pipeline.WithRecordStore(app.records))
	}
	if app.publisher != nil {
		opts = append(opts, pipeline.WithPublisher(app.publisher))
	}
	if cfg.RateLimit.RPS > 0 {
		app.logger.Info("rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}

	return pipeline.New(pipeline.Config{
		Sources:     cfg.Sources,
		PoolSize:    cfg.Discovery.PoolSize,
		Concurrency: cfg.Enrichment.Concurrency,
		Discovery: discovery.Config{
			Selectors:      cfg.Selectors.Search,
			RequestTimeout: cfg.Discovery.RequestTimeout,
			PageTimeout:    cfg.Discovery.PageTimeout,
			ResultTimeout:  cfg.Discovery.ResultTimeout,
			MaxPages:       cfg.Discovery.MaxPages,
			UserAgent:      cfg.Browser.UserAgent,
			InitScript:     cfg.Browser.InitScript,
		},
		Enrichment: enrichment.Config{
			Selectors:     detail,
			DetailTimeout: cfg.Enrichment.DetailTimeout,
		},
		EnrichmentSession: cfg.SessionOptions(),
		Topic:             app.topic,
	}, app.launcher, opts...), nil
}
