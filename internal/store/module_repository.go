package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mbeckner/civicrawl/internal/domain"
)

// ModuleRepository handles module-config persistence.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository creates a new module-config repository.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// Seed inserts the default module rows if they are not present. Existing
// rows are left untouched so operator changes survive restarts.
func (r *ModuleRepository) Seed(ctx context.Context, defaults []domain.ModuleConfig) error {
	query := `
		INSERT INTO module_configs (key, name, description, enabled, interval_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO NOTHING
	`

	for _, m := range defaults {
		if _, err := r.db.ExecContext(ctx, query,
			m.Key, m.Name, m.Description, m.Enabled, m.IntervalMinutes,
		); err != nil {
			return fmt.Errorf("failed to seed module %s: %w", m.Key, err)
		}
	}
	return nil
}

// List returns all module configs ordered by key.
func (r *ModuleRepository) List(ctx context.Context) ([]*domain.ModuleConfig, error) {
	var modules []*domain.ModuleConfig
	query := `
		SELECT key, name, description, enabled, interval_minutes, last_run, next_run
		FROM module_configs
		ORDER BY key
	`

	if err := r.db.SelectContext(ctx, &modules, query); err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	return modules, nil
}

// Get returns a single module config by key.
func (r *ModuleRepository) Get(ctx context.Context, key string) (*domain.ModuleConfig, error) {
	var module domain.ModuleConfig
	query := `
		SELECT key, name, description, enabled, interval_minutes, last_run, next_run
		FROM module_configs
		WHERE key = $1
	`

	err := r.db.GetContext(ctx, &module, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get module %s: %w", key, err)
	}
	return &module, nil
}

// SetEnabled toggles a module on or off.
func (r *ModuleRepository) SetEnabled(ctx context.Context, key string, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE module_configs SET enabled = $2 WHERE key = $1`, key, enabled)
	if err != nil {
		return fmt.Errorf("failed to set module %s enabled: %w", key, err)
	}
	return requireRow(res)
}

// SetInterval changes a module's crawl interval. Intervals below
// domain.MinIntervalMinutes are rejected.
func (r *ModuleRepository) SetInterval(ctx context.Context, key string, minutes int) error {
	if minutes < domain.MinIntervalMinutes {
		return fmt.Errorf("%w: %d minutes", ErrIntervalTooShort, minutes)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE module_configs SET interval_minutes = $2 WHERE key = $1`, key, minutes)
	if err != nil {
		return fmt.Errorf("failed to set module %s interval: %w", key, err)
	}
	return requireRow(res)
}

// Due returns the enabled modules whose next_run is unset or has passed.
func (r *ModuleRepository) Due(ctx context.Context, now time.Time) ([]*domain.ModuleConfig, error) {
	var modules []*domain.ModuleConfig
	query := `
		SELECT key, name, description, enabled, interval_minutes, last_run, next_run
		FROM module_configs
		WHERE enabled = TRUE AND (next_run IS NULL OR next_run <= $1)
		ORDER BY key
	`

	if err := r.db.SelectContext(ctx, &modules, query, now); err != nil {
		return nil, fmt.Errorf("failed to list due modules: %w", err)
	}
	return modules, nil
}

// StampRun atomically claims a due module by writing last_run and next_run
// before the crawl starts. The due check is part of the UPDATE predicate,
// so of two concurrent claimants exactly one sees a row affected. Returns
// false when the module was not due (or is disabled).
func (r *ModuleRepository) StampRun(ctx context.Context, key string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE module_configs
		SET last_run = $2, next_run = $2 + (interval_minutes * INTERVAL '1 minute')
		WHERE key = $1 AND enabled = TRUE AND (next_run IS NULL OR next_run <= $2)`,
		key, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to stamp module %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read stamp result for %s: %w", key, err)
	}
	return n > 0, nil
}

// StampForced stamps a module without the due check. Used by manual
// trigger, which respects enablement but not the schedule.
func (r *ModuleRepository) StampForced(ctx context.Context, key string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE module_configs
		SET last_run = $2, next_run = $2 + (interval_minutes * INTERVAL '1 minute')
		WHERE key = $1 AND enabled = TRUE`,
		key, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to force-stamp module %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read stamp result for %s: %w", key, err)
	}
	return n > 0, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
