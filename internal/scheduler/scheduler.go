// Package scheduler drives crawls on their configured intervals and
// exposes manual triggers. Exclusivity rests on the stamp: last_run and
// next_run are written atomically with the due check before any crawl
// starts, so a second claimant sees no row affected and backs off.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mbeckner/civicrawl/internal/config"
	"github.com/mbeckner/civicrawl/internal/domain"
	"github.com/mbeckner/civicrawl/internal/logger"
	"github.com/mbeckner/civicrawl/internal/store"
)

var (
	// ErrModuleDisabled is returned when a manual trigger targets a
	// disabled module.
	ErrModuleDisabled = errors.New("module is disabled")
	// ErrModuleRunning is returned when a crawl for the module is
	// already in flight in this process.
	ErrModuleRunning = errors.New("module crawl already running")
	// ErrUnknownModule is returned for keys with no registered runner.
	ErrUnknownModule = errors.New("unknown module")
)

// Runner executes one crawl for a module.
type Runner func(ctx context.Context) (*domain.ScraperRun, error)

// RunResult is the outcome of a manually triggered crawl.
type RunResult struct {
	Success      bool   `json:"success"`
	ItemsScraped int    `json:"items_scraped"`
	ItemsNew     int    `json:"items_new"`
	ItemsUpdated int    `json:"items_updated"`
	DurationMs   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

// Scheduler polls module configs and runs due crawls serially.
type Scheduler struct {
	cfg     config.SchedulerConfig
	modules store.ModuleRepositoryInterface
	runs    store.RunRepositoryInterface
	runners map[string]Runner
	logger  logger.Interface

	cron *cron.Cron

	// tickMu serializes ticks. Cron fires each invocation in its own
	// goroutine, so without it a tick landing mid-crawl would claim the
	// next due module and run it concurrently.
	tickMu sync.Mutex

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a scheduler. Runners are registered per module key.
func New(
	cfg config.SchedulerConfig,
	modules store.ModuleRepositoryInterface,
	runs store.RunRepositoryInterface,
	log logger.Interface,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		modules:  modules,
		runs:     runs,
		runners:  make(map[string]Runner),
		logger:   log.WithComponent("scheduler"),
		inFlight: make(map[string]bool),
	}
}

// Register binds a runner to a module key.
func (s *Scheduler) Register(key string, runner Runner) {
	s.runners[key] = runner
}

// DefaultModules returns the built-in module configs used to seed the
// database on first boot.
func DefaultModules() []domain.ModuleConfig {
	return []domain.ModuleConfig{
		{
			Key:             domain.ModuleIdeas,
			Name:            "Citizen Ideas",
			Description:     "Ideas submitted on the participation portal",
			Enabled:         true,
			IntervalMinutes: 60,
		},
		{
			Key:             domain.ModuleIssues,
			Name:            "Issue Reports",
			Description:     "Infrastructure problems reported by residents",
			Enabled:         true,
			IntervalMinutes: 60,
		},
		{
			Key:             domain.ModuleEvents,
			Name:            "Public Events",
			Description:     "Events published by the municipality",
			Enabled:         true,
			IntervalMinutes: 240,
		},
	}
}

// Start seeds module configs, closes runs left open by a previous
// process, and begins the periodic tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.modules.Seed(ctx, DefaultModules()); err != nil {
		return fmt.Errorf("failed to seed modules: %w", err)
	}

	closed, err := s.runs.CloseStale(ctx)
	if err != nil {
		return fmt.Errorf("failed to close stale runs: %w", err)
	}
	if closed > 0 {
		s.logger.Warn("closed runs left open by previous process", "count", closed)
	}

	tick := s.cfg.TickInterval
	if tick <= 0 {
		tick = time.Minute
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", tick), func() {
		s.Tick(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule tick: %w", err)
	}
	s.cron.Start()

	s.logger.Info("scheduler started", "tick", tick.String())
	return nil
}

// Stop halts the tick. In-flight crawls finish on their own.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Tick crawls every due module, serially. A tick arriving while the
// previous one is still crawling is skipped; the modules it would have
// claimed stay due and the next tick picks them up. Exported so manual
// operation and tests can drive the scheduler without waiting for cron.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		s.logger.Debug("previous tick still running, skipping")
		return
	}
	defer s.tickMu.Unlock()

	now := time.Now().UTC()
	due, err := s.modules.Due(ctx, now)
	if err != nil {
		s.logger.Error("failed to load due modules", "error", err)
		return
	}

	for _, m := range due {
		s.runScheduled(ctx, m.Key, now)
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, key string, now time.Time) {
	runner, ok := s.runners[key]
	if !ok {
		s.logger.Warn("due module has no runner", "module", key)
		return
	}
	if !s.acquire(key) {
		return
	}
	defer s.release(key)

	stamped, err := s.modules.StampRun(ctx, key, now)
	if err != nil {
		s.logger.Error("failed to stamp module", "module", key, "error", err)
		return
	}
	if !stamped {
		// Claimed elsewhere between the due query and the stamp.
		return
	}

	if _, err := runner(ctx); err != nil {
		s.logger.Error("scheduled crawl failed", "module", key, "error", err)
	}
}

// RunNow triggers a crawl immediately, ignoring the schedule but not
// enablement. The crawl runs inline and the result is returned to the
// caller.
func (s *Scheduler) RunNow(ctx context.Context, key string) (*RunResult, error) {
	runner, ok := s.runners[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, key)
	}

	module, err := s.modules.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !module.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrModuleDisabled, key)
	}

	if !s.acquire(key) {
		return nil, fmt.Errorf("%w: %s", ErrModuleRunning, key)
	}
	defer s.release(key)

	stamped, err := s.modules.StampForced(ctx, key, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to stamp module %s: %w", key, err)
	}
	if !stamped {
		return nil, fmt.Errorf("%w: %s", ErrModuleDisabled, key)
	}

	run, runErr := runner(ctx)
	if run == nil {
		if runErr != nil {
			return nil, runErr
		}
		return nil, fmt.Errorf("runner for %s returned no run", key)
	}

	result := &RunResult{
		Success:      run.Success,
		ItemsScraped: run.ItemsScraped,
		ItemsNew:     run.ItemsNew,
		ItemsUpdated: run.ItemsUpdated,
		DurationMs:   run.Duration().Milliseconds(),
	}
	if run.ErrorMessage != nil {
		result.Error = *run.ErrorMessage
	}
	return result, nil
}

func (s *Scheduler) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[key] {
		return false
	}
	s.inFlight[key] = true
	return true
}

func (s *Scheduler) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}
