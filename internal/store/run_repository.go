package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mbeckner/civicrawl/internal/domain"
)

// RunRepository handles scraper-run persistence.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Start opens a run row for a module and returns it.
func (r *RunRepository) Start(ctx context.Context, moduleKey string) (*domain.ScraperRun, error) {
	run := &domain.ScraperRun{
		ID:        uuid.NewString(),
		ModuleKey: moduleKey,
		StartedAt: time.Now().UTC(),
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO scraper_runs (id, module_key, started_at)
		VALUES ($1, $2, $3)`,
		run.ID, run.ModuleKey, run.StartedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to start run for %s: %w", moduleKey, err)
	}
	return run, nil
}

// Finish finalizes a run with its counters and outcome. Sets FinishedAt
// if the caller has not.
func (r *RunRepository) Finish(ctx context.Context, run *domain.ScraperRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	if _, err := r.db.ExecContext(ctx, `
		UPDATE scraper_runs
		SET finished_at = $2, items_scraped = $3, items_new = $4,
		    items_updated = $5, success = $6, error_message = $7
		WHERE id = $1`,
		run.ID, run.FinishedAt, run.ItemsScraped, run.ItemsNew,
		run.ItemsUpdated, run.Success, run.ErrorMessage,
	); err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	return nil
}

// CloseStale finalizes any run left open by a previous process, marking
// it failed. Called once at boot before the scheduler starts.
func (r *RunRepository) CloseStale(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scraper_runs
		SET finished_at = $1, success = FALSE, error_message = $2
		WHERE finished_at IS NULL`,
		time.Now().UTC(), "interrupted by process restart",
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close stale runs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read stale run count: %w", err)
	}
	return int(n), nil
}

// ListRecent returns the most recent runs, newest first. An empty
// moduleKey matches all modules.
func (r *RunRepository) ListRecent(ctx context.Context, moduleKey string, limit int) ([]*domain.ScraperRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var runs []*domain.ScraperRun
	var err error
	if moduleKey == "" {
		err = r.db.SelectContext(ctx, &runs, `
			SELECT id, module_key, started_at, finished_at, items_scraped,
			       items_new, items_updated, success, error_message
			FROM scraper_runs
			ORDER BY started_at DESC
			LIMIT $1`, limit)
	} else {
		err = r.db.SelectContext(ctx, &runs, `
			SELECT id, module_key, started_at, finished_at, items_scraped,
			       items_new, items_updated, success, error_message
			FROM scraper_runs
			WHERE module_key = $1
			ORDER BY started_at DESC
			LIMIT $2`, moduleKey, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
