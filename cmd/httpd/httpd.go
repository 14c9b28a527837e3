// Package httpd boots the crawler service: configuration, logger,
// database, browser, scheduler, and the HTTP API, then runs until
// interrupted.
package httpd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mbeckner/civicrawl/internal/api"
	"github.com/mbeckner/civicrawl/internal/browser"
	"github.com/mbeckner/civicrawl/internal/config"
	"github.com/mbeckner/civicrawl/internal/crawl"
	"github.com/mbeckner/civicrawl/internal/domain"
	"github.com/mbeckner/civicrawl/internal/enrich"
	"github.com/mbeckner/civicrawl/internal/fetch"
	"github.com/mbeckner/civicrawl/internal/logger"
	"github.com/mbeckner/civicrawl/internal/progress"
	"github.com/mbeckner/civicrawl/internal/scheduler"
	"github.com/mbeckner/civicrawl/internal/store"
)

const (
	errorChannelBufferSize = 1
	defaultShutdownTimeout = 30 * time.Second
)

// Start boots the service and runs until SIGINT or SIGTERM.
func Start() error {
	// Phase 1: configuration
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Phase 2: logger
	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	log.Info("starting civicrawl", "environment", cfg.App.Environment)

	// Phase 3: database and schema
	db, err := store.NewPostgresConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := store.EnsureSchema(db); err != nil {
		return err
	}

	// Phase 4: browser
	ctx := context.Background()
	mgr := browser.NewManager(cfg.Browser, log)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() { _ = mgr.Close() }()

	// Phase 5: crawl engine, sources, scheduler
	hub := progress.NewHub()
	sched, err := buildScheduler(ctx, cfg, db, mgr, hub, log)
	if err != nil {
		return err
	}
	defer sched.Stop()

	// Phase 6: HTTP server
	server := api.NewServer(api.Params{
		Config:     cfg.Server,
		Logger:     log,
		Modules:    store.NewModuleRepository(db),
		Runs:       store.NewRunRepository(db),
		Hub:        hub,
		Scheduler:  sched,
		Production: cfg.App.Environment != "development",
	})

	errChan := make(chan error, errorChannelBufferSize)
	go func() {
		if serveErr := server.Start(); serveErr != nil {
			errChan <- serveErr
		}
	}()

	// Phase 7: run until interrupted
	return waitForShutdown(log, server, errChan)
}

func newLogger(cfg *config.Config) (logger.Interface, error) {
	return logger.New(&logger.Config{
		Level:       logger.Level(cfg.Logger.Level),
		Development: cfg.Logger.Development,
		Encoding:    cfg.Logger.Encoding,
		OutputPaths: cfg.Logger.OutputPaths,
	})
}

// buildScheduler wires repositories, the crawl engine, and the three
// source runners, then starts the periodic tick.
func buildScheduler(
	ctx context.Context,
	cfg *config.Config,
	db *sqlx.DB,
	mgr *browser.Manager,
	hub *progress.Hub,
	log logger.Interface,
) (*scheduler.Scheduler, error) {
	moduleRepo := store.NewModuleRepository(db)
	runRepo := store.NewRunRepository(db)

	loader := fetch.NewPageFetcher(mgr, log, cfg.Crawler.RetryUnit)
	engine := crawl.NewEngine(cfg.Crawler, runRepo, hub, log)

	var enrichClient *enrich.Client
	if cfg.Enrichment.Enabled {
		enrichClient = enrich.NewClient(cfg.Enrichment, log)
	}

	ideaRepo := store.NewIdeaRepository(db)
	issueRepo := store.NewIssueRepository(db)
	eventRepo := store.NewEventRepository(db)

	if enrichClient != nil {
		engine.SetCorpusHook(corpusSummaryHook(enrichClient, ideaRepo, issueRepo, eventRepo, log))
	}

	sources := []crawl.Source{
		crawl.NewIdeasSource(loader, ideaRepo, cfg.Sources.IdeasURL, log),
		crawl.NewIssuesSource(loader, issueRepo, cfg.Sources.IssuesURL, log),
		crawl.NewEventsSource(loader, eventRepo, cfg.Sources.EventsURL, enrichClient, log),
	}

	sched := scheduler.New(cfg.Scheduler, moduleRepo, runRepo, log)
	for _, src := range sources {
		src := src
		sched.Register(src.Key, func(ctx context.Context) (*domain.ScraperRun, error) {
			return engine.Run(ctx, src)
		})
	}

	if err := sched.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}
	return sched, nil
}

// corpusMinChanged is the smallest batch worth summarizing.
const corpusMinChanged = 3

// corpusSummaryHook summarizes the titles a crawl added or changed and
// logs the result. Best effort: any failure just skips the summary.
func corpusSummaryHook(
	client *enrich.Client,
	ideas *store.IdeaRepository,
	issues *store.IssueRepository,
	events *store.EventRepository,
	log logger.Interface,
) crawl.CorpusHook {
	return func(ctx context.Context, run *domain.ScraperRun) {
		var titles []string
		var err error
		switch run.ModuleKey {
		case domain.ModuleIdeas:
			titles, err = ideas.TitlesSince(ctx, run.StartedAt)
		case domain.ModuleIssues:
			titles, err = issues.TitlesSince(ctx, run.StartedAt)
		case domain.ModuleEvents:
			titles, err = events.TitlesSince(ctx, run.StartedAt)
		}
		if err != nil || len(titles) < corpusMinChanged {
			return
		}

		summary, err := client.Summarize(ctx, titles)
		if err != nil || summary == "" {
			return
		}
		tags, _ := client.Tags(ctx, titles)
		log.Info("corpus summary", "module", run.ModuleKey, "summary", summary, "tags", tags)
	}
}

// waitForShutdown blocks until a signal arrives or the server fails,
// then shuts everything down gracefully.
func waitForShutdown(log logger.Interface, server *api.Server, errChan chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case serveErr := <-errChan:
		log.Error("server error", "error", serveErr)
		return serveErr
	case sig := <-sigChan:
		log.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("failed to stop server", "error", err)
		return err
	}

	log.Info("server stopped")
	return nil
}
