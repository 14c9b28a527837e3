package crawl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbeckner/civicrawl/internal/config"
	"github.com/mbeckner/civicrawl/internal/domain"
	"github.com/mbeckner/civicrawl/internal/fetch"
	"github.com/mbeckner/civicrawl/internal/logger"
	"github.com/mbeckner/civicrawl/internal/progress"
	"github.com/mbeckner/civicrawl/internal/store"
)

// CorpusHook runs after a successful crawl that produced changes. Used
// for the optional corpus summary; failures are the hook's problem.
type CorpusHook func(ctx context.Context, run *domain.ScraperRun)

// Engine executes crawls. One engine serves all sources; per-source
// behavior comes in through the Source value.
type Engine struct {
	cfg    config.CrawlerConfig
	runs   store.RunRepositoryInterface
	hub    *progress.Hub
	logger logger.Interface
	hook   CorpusHook
}

// NewEngine creates a crawl engine.
func NewEngine(
	cfg config.CrawlerConfig,
	runs store.RunRepositoryInterface,
	hub *progress.Hub,
	log logger.Interface,
) *Engine {
	return &Engine{
		cfg:    cfg,
		runs:   runs,
		hub:    hub,
		logger: log.WithComponent("crawl"),
	}
}

// SetCorpusHook installs the post-crawl hook.
func (e *Engine) SetCorpusHook(hook CorpusHook) {
	e.hook = hook
}

// Run crawls one source end to end: opens a run row, pages through the
// listing, and finalizes the row with the outcome. Listing-level
// failures abort the crawl and are returned; per-item failures are
// logged and absorbed. The returned run always carries the counters
// accumulated before any failure.
func (e *Engine) Run(ctx context.Context, src Source) (*domain.ScraperRun, error) {
	log := e.logger.With("module", src.Key)

	run, err := e.runs.Start(ctx, src.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to open run: %w", err)
	}
	log.Info("crawl started", "run_id", run.ID)
	e.publish(src.Key, run, domain.ProgressRunning, 0, "starting")

	crawlErr := e.crawl(ctx, src, run, log)

	if crawlErr != nil {
		msg := crawlErr.Error()
		run.Success = false
		run.ErrorMessage = &msg
	} else {
		run.Success = true
	}

	if finishErr := e.runs.Finish(ctx, run); finishErr != nil {
		log.Error("failed to finalize run", "run_id", run.ID, "error", finishErr)
	}

	if crawlErr != nil {
		log.Error("crawl failed", "run_id", run.ID, "error", crawlErr)
		e.publish(src.Key, run, domain.ProgressError, 0, crawlErr.Error())
		return run, crawlErr
	}

	log.Info("crawl completed",
		"run_id", run.ID,
		"scraped", run.ItemsScraped,
		"new", run.ItemsNew,
		"updated", run.ItemsUpdated,
		"duration", run.Duration().String(),
	)
	e.publish(src.Key, run, domain.ProgressCompleted, 0, "completed")

	if e.hook != nil && run.ItemsNew+run.ItemsUpdated > 0 {
		e.hook(ctx, run)
	}
	return run, nil
}

func (e *Engine) crawl(ctx context.Context, src Source, run *domain.ScraperRun, log logger.Interface) error {
	lp, err := src.Nav.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open listing: %w", err)
	}
	defer lp.Close()

	noNewStreak := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		summaries, err := lp.Summaries()
		if err != nil {
			return fmt.Errorf("failed to read listing page %d: %w", lp.Page(), err)
		}

		valid := summaries[:0]
		for _, sum := range summaries {
			if sum.Valid() {
				valid = append(valid, sum)
			}
		}
		if dropped := len(summaries) - len(valid); dropped > 0 {
			log.Warn("discarded malformed listing rows", "page", lp.Page(), "count", dropped)
		}

		newOnPage := e.processPage(ctx, src, valid, run, log)
		e.publish(src.Key, run, domain.ProgressRunning, lp.Page(),
			fmt.Sprintf("page %d processed", lp.Page()))

		if newOnPage == 0 {
			noNewStreak++
		} else {
			noNewStreak = 0
		}
		if noNewStreak >= e.cfg.NoNewPageLimit {
			log.Info("caught up, stopping early", "page", lp.Page(), "quiet_pages", noNewStreak)
			return nil
		}
		if lp.Page() >= e.cfg.MaxPages {
			log.Info("page cap reached", "page", lp.Page())
			return nil
		}

		more, err := lp.Next(ctx)
		if err != nil {
			return fmt.Errorf("failed to advance past page %d: %w", lp.Page(), err)
		}
		if !more {
			return nil
		}
	}
}

// processPage persists a page's summaries, fetching details in batches
// of DetailConcurrency with a pause in between. Returns how many items
// on the page were previously unseen.
func (e *Engine) processPage(
	ctx context.Context,
	src Source,
	summaries []Summary,
	run *domain.ScraperRun,
	log logger.Interface,
) int {
	newOnPage := 0
	batch := e.cfg.DetailConcurrency
	if batch < 1 {
		batch = 1
	}

	for start := 0; start < len(summaries); start += batch {
		end := start + batch
		if end > len(summaries) {
			end = len(summaries)
		}

		results := make([]store.UpsertResult, end-start)
		errs := make([]error, end-start)

		var wg sync.WaitGroup
		for i, sum := range summaries[start:end] {
			wg.Add(1)
			go func(i int, sum Summary) {
				defer wg.Done()
				results[i], errs[i] = e.processItem(ctx, src, sum)
			}(i, sum)
		}
		wg.Wait()

		for i := range results {
			if errs[i] != nil {
				log.Warn("item skipped", "external_id", summaries[start+i].ExternalID, "error", errs[i])
				continue
			}
			run.ItemsScraped++
			if results[i].IsNew {
				run.ItemsNew++
				newOnPage++
			}
			if results[i].HasChanged {
				run.ItemsUpdated++
			}
		}

		if end < len(summaries) && e.cfg.BatchPause > 0 {
			select {
			case <-time.After(e.cfg.BatchPause):
			case <-ctx.Done():
				return newOnPage
			}
		}
	}
	return newOnPage
}

func (e *Engine) processItem(ctx context.Context, src Source, sum Summary) (store.UpsertResult, error) {
	var det *fetch.DetailFields
	if src.Details != nil {
		var err error
		det, err = src.Details.Fetch(ctx, sum.URL)
		if err != nil {
			return store.UpsertResult{}, fmt.Errorf("detail fetch: %w", err)
		}
	}

	rec := src.Build(sum, det)
	if err := rec.Validate(); err != nil {
		return store.UpsertResult{}, fmt.Errorf("invalid record: %w", err)
	}
	return src.Sink.Persist(ctx, rec)
}

func (e *Engine) publish(key string, run *domain.ScraperRun, status domain.ProgressStatus, page int, msg string) {
	e.hub.Publish(domain.ProgressSnapshot{
		ModuleKey:    key,
		Status:       status,
		ItemsScraped: run.ItemsScraped,
		ItemsNew:     run.ItemsNew,
		ItemsUpdated: run.ItemsUpdated,
		Page:         page,
		Message:      msg,
	})
}
