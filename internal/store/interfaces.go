package store

import (
	"context"
	"time"

	"github.com/mbeckner/civicrawl/internal/domain"
)

// UpsertResult describes the outcome of a record upsert.
type UpsertResult struct {
	// ID is the internal row id of the record.
	ID int64
	// IsNew is true when the record was inserted for the first time.
	IsNew bool
	// HasChanged is true when an existing record's content fields differed
	// and a history snapshot was written.
	HasChanged bool
}

// ModuleRepositoryInterface defines module-config persistence operations.
type ModuleRepositoryInterface interface {
	Seed(ctx context.Context, defaults []domain.ModuleConfig) error
	List(ctx context.Context) ([]*domain.ModuleConfig, error)
	Get(ctx context.Context, key string) (*domain.ModuleConfig, error)
	SetEnabled(ctx context.Context, key string, enabled bool) error
	SetInterval(ctx context.Context, key string, minutes int) error
	Due(ctx context.Context, now time.Time) ([]*domain.ModuleConfig, error)
	StampRun(ctx context.Context, key string, now time.Time) (bool, error)
	StampForced(ctx context.Context, key string, now time.Time) (bool, error)
}

// RunRepositoryInterface defines scraper-run persistence operations.
type RunRepositoryInterface interface {
	Start(ctx context.Context, moduleKey string) (*domain.ScraperRun, error)
	Finish(ctx context.Context, run *domain.ScraperRun) error
	CloseStale(ctx context.Context) (int, error)
	ListRecent(ctx context.Context, moduleKey string, limit int) ([]*domain.ScraperRun, error)
}
