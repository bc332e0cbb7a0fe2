package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"sitbrief/internal/classify"
	"sitbrief/internal/config"
	"sitbrief/internal/httpapi"
	"sitbrief/internal/infrastructure/llm"
	"sitbrief/internal/infrastructure/objectstore"
	"sitbrief/internal/infrastructure/parser"
	"sitbrief/internal/infrastructure/scheduler"
	"sitbrief/internal/infrastructure/storage"
	"sitbrief/internal/infrastructure/telegram"
	"sitbrief/internal/logging"
	"sitbrief/internal/metrics"
	"sitbrief/internal/ports"
	"sitbrief/internal/scanner"
	"sitbrief/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	repo    *storage.Repository
	metrics *metrics.Metrics

	local  *objectstore.DirStore
	remote ports.ObjectStore

	Analysis  *usecase.AnalysisService
	Exporter  *usecase.Exporter
	Syncer    *usecase.Syncer
	Publisher *usecase.Publisher
	Headlines *usecase.HeadlineCollector
}

// New opens the database and builds every use case. Close releases the database.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	policy, err := classify.ParsePolicy(cfg.Classifier.UnknownTopicPolicy)
	if err != nil {
		return nil, err
	}
	classifier, err := llm.New(ctx, cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	var remote ports.ObjectStore
	if cfg.ObjectStore.Enabled() {
		s3, err := objectstore.NewS3Store(cfg.ObjectStore)
		if err != nil {
			return nil, fmt.Errorf("build object store: %w", err)
		}
		remote = s3
	}

	repo, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	local := objectstore.NewDirStore(cfg.Export.OutputDir)

	analysis := usecase.NewAnalysisService(usecase.AnalysisDeps{
		Articles:   repo,
		Topics:     repo,
		Analyses:   repo,
		Links:      repo,
		Classifier: classifier,
		Policy:     policy,
		Timeout:    cfg.Classifier.Timeout,
		Metrics:    m,
		Logger:     baseLogger,
	})

	exporter := usecase.NewExporter(usecase.ExportDeps{
		Articles: repo,
		Topics:   repo,
		Analyses: repo,
		Links:    repo,
		Writer:   local,
		LockDir:  cfg.Export.OutputDir,
		PageSize: cfg.Export.PageSize,
		Metrics:  m,
		Logger:   baseLogger,
	})

	var syncer *usecase.Syncer
	if remote != nil {
		syncer = usecase.NewSyncer(usecase.SyncDeps{
			Local:   local,
			Remote:  remote,
			Prefix:  cfg.Export.Prefix,
			Metrics: m,
			Logger:  baseLogger,
		})
	}

	registry := scanner.NewRegistry(
		parser.NewRSSScanner(nil, baseLogger.With("component", "scanner.rss")),
		parser.NewWebScanner(nil, baseLogger.With("component", "scanner.web")),
	)
	sourceNames := make([]string, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sourceNames = append(sourceNames, s.Name)
	}
	aggregator := parser.NewAggregator(registry, cfg.Sources, baseLogger.With("component", "aggregator"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		repo:      repo,
		metrics:   m,
		local:     local,
		remote:    remote,
		Analysis:  analysis,
		Exporter:  exporter,
		Syncer:    syncer,
		Publisher: usecase.NewPublisher(exporter, syncer),
		Headlines: usecase.NewHeadlineCollector(aggregator, local, sourceNames, baseLogger),
	}, nil
}

// Close releases the database connection.
func (a *Application) Close() error {
	return a.repo.Close()
}

// Repository exposes the storage adapter for article and topic management.
func (a *Application) Repository() *storage.Repository {
	return a.repo
}

// Config returns the loaded configuration.
func (a *Application) Config() config.Config {
	return a.cfg
}

// ServeAdmin runs the admin API and, when a cron expression is configured,
// the publish scheduler until ctx is cancelled.
func (a *Application) ServeAdmin(ctx context.Context) error {
	api := httpapi.NewAdminAPI(httpapi.AdminDeps{
		Articles:  a.repo,
		Topics:    a.repo,
		Analyzer:  a.Analysis,
		Publisher: a.Publisher,
		Auth:      httpapi.NewAuthenticator(a.cfg.Admin),
		Metrics:   a.metrics,
		Logger:    a.logger,
	})

	sched := usecase.NewScheduler(
		scheduler.NewCronScheduler(a.cfg.Scheduler.PublishCron, a.cfg.Scheduler.Location()),
		a.Publisher,
		a.logger,
	)
	if a.cfg.Notify.Enabled() {
		sched.WithNotifier(telegram.NewNotifier(a.cfg.Notify))
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if a.cfg.Scheduler.PublishCron != "" {
		a.logger.Info("publish scheduler started", "cron", a.cfg.Scheduler.PublishCron, "timezone", a.cfg.Scheduler.Timezone)
	}
	defer func() {
		if err := sched.Stop(context.Background()); err != nil {
			a.logger.Warn("scheduler stop failed", "error", err)
		}
	}()

	return httpapi.Serve(ctx, a.cfg.Admin.Addr, api.Router(), a.logger)
}

// GatewayHandler builds the public read-only API. Without a configured
// bucket it serves the local export directory.
func (a *Application) GatewayHandler() http.Handler {
	var (
		store  httpapi.ObjectReader = a.local
		prefix string
	)
	if a.remote != nil {
		store, prefix = a.remote, a.cfg.Export.Prefix
	}
	return httpapi.NewGateway(store, prefix, a.cfg.Gateway, a.metrics, a.logger).Router()
}

// ServeGateway runs the public API until ctx is cancelled.
func (a *Application) ServeGateway(ctx context.Context) error {
	return httpapi.Serve(ctx, a.cfg.Gateway.Addr, a.GatewayHandler(), a.logger)
}

// ServeAll runs the admin API and the gateway side by side.
func (a *Application) ServeAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.ServeAdmin(gctx) })
	g.Go(func() error { return a.ServeGateway(gctx) })
	return g.Wait()
}
