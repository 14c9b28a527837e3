package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeckner/civicrawl/internal/config"
	"github.com/mbeckner/civicrawl/internal/domain"
	"github.com/mbeckner/civicrawl/internal/logger"
	"github.com/mbeckner/civicrawl/internal/scheduler"
	"github.com/mbeckner/civicrawl/internal/store"
)

// memModules is an in-memory module repository with the same stamp
// semantics as the SQL implementation.
type memModules struct {
	mu      sync.Mutex
	modules map[string]*domain.ModuleConfig
}

func newMemModules() *memModules {
	return &memModules{modules: make(map[string]*domain.ModuleConfig)}
}

func (m *memModules) Seed(_ context.Context, defaults []domain.ModuleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range defaults {
		if _, ok := m.modules[d.Key]; !ok {
			cp := d
			m.modules[d.Key] = &cp
		}
	}
	return nil
}

func (m *memModules) List(context.Context) ([]*domain.ModuleConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.ModuleConfig, 0, len(m.modules))
	for _, mod := range m.modules {
		cp := *mod
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memModules) Get(_ context.Context, key string) (*domain.ModuleConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *mod
	return &cp, nil
}

func (m *memModules) SetEnabled(_ context.Context, key string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[key]
	if !ok {
		return store.ErrNotFound
	}
	mod.Enabled = enabled
	return nil
}

func (m *memModules) SetInterval(_ context.Context, key string, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if minutes < domain.MinIntervalMinutes {
		return store.ErrIntervalTooShort
	}
	mod, ok := m.modules[key]
	if !ok {
		return store.ErrNotFound
	}
	mod.IntervalMinutes = minutes
	return nil
}

func (m *memModules) Due(_ context.Context, now time.Time) ([]*domain.ModuleConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*domain.ModuleConfig
	for _, mod := range m.modules {
		if mod.Due(now) {
			cp := *mod
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (m *memModules) StampRun(_ context.Context, key string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[key]
	if !ok || !mod.Due(now) {
		return false, nil
	}
	m.stampLocked(mod, now)
	return true, nil
}

func (m *memModules) StampForced(_ context.Context, key string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[key]
	if !ok || !mod.Enabled {
		return false, nil
	}
	m.stampLocked(mod, now)
	return true, nil
}

func (m *memModules) stampLocked(mod *domain.ModuleConfig, now time.Time) {
	last := now
	next := now.Add(time.Duration(mod.IntervalMinutes) * time.Minute)
	mod.LastRun = &last
	mod.NextRun = &next
}

type memRuns struct {
	mu     sync.Mutex
	closed int
}

func (r *memRuns) Start(_ context.Context, key string) (*domain.ScraperRun, error) {
	return &domain.ScraperRun{ID: "run", ModuleKey: key, StartedAt: time.Now().UTC()}, nil
}

func (r *memRuns) Finish(context.Context, *domain.ScraperRun) error { return nil }

func (r *memRuns) CloseStale(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return 0, nil
}

func (r *memRuns) ListRecent(context.Context, string, int) ([]*domain.ScraperRun, error) {
	return nil, nil
}

func newTestScheduler(t *testing.T, modules *memModules) (*scheduler.Scheduler, *memRuns) {
	t.Helper()
	runs := &memRuns{}
	s := scheduler.New(config.SchedulerConfig{TickInterval: time.Minute}, modules, runs, logger.NewNoOp())
	return s, runs
}

func successRunner(calls *int) scheduler.Runner {
	return func(context.Context) (*domain.ScraperRun, error) {
		*calls++
		now := time.Now().UTC()
		return &domain.ScraperRun{
			ID: "run", StartedAt: now.Add(-2 * time.Second), FinishedAt: &now,
			ItemsScraped: 7, ItemsNew: 2, ItemsUpdated: 1, Success: true,
		}, nil
	}
}

func TestScheduler_TickRunsDueModules(t *testing.T) {
	t.Parallel()

	modules := newMemModules()
	s, _ := newTestScheduler(t, modules)

	require.NoError(t, modules.Seed(context.Background(), scheduler.DefaultModules()))

	calls := 0
	for _, key := range []string{domain.ModuleIdeas, domain.ModuleIssues, domain.ModuleEvents} {
		s.Register(key, successRunner(&calls))
	}

	s.Tick(context.Background())
	assert.Equal(t, 3, calls)

	// All modules are stamped into the future; nothing is due anymore.
	s.Tick(context.Background())
	assert.Equal(t, 3, calls)
}

func TestScheduler_OverlappingTickIsSkipped(t *testing.T) {
	t.Parallel()

	modules := newMemModules()
	s, _ := newTestScheduler(t, modules)
	require.NoError(t, modules.Seed(context.Background(), scheduler.DefaultModules()))

	ideasBlocked := make(chan struct{})
	release := make(chan struct{})
	s.Register(domain.ModuleIdeas, func(context.Context) (*domain.ScraperRun, error) {
		close(ideasBlocked)
		<-release
		now := time.Now().UTC()
		return &domain.ScraperRun{ID: "run", StartedAt: now, FinishedAt: &now, Success: true}, nil
	})

	var others atomic.Int32
	otherRunner := func(context.Context) (*domain.ScraperRun, error) {
		others.Add(1)
		now := time.Now().UTC()
		return &domain.ScraperRun{ID: "run", StartedAt: now, FinishedAt: &now, Success: true}, nil
	}
	s.Register(domain.ModuleIssues, otherRunner)
	s.Register(domain.ModuleEvents, otherRunner)

	firstDone := make(chan struct{})
	go func() {
		s.Tick(context.Background())
		close(firstDone)
	}()
	<-ideasBlocked

	// A second tick lands while the first is still inside a crawl. It
	// must not claim the remaining due modules and run them alongside.
	before := others.Load()
	s.Tick(context.Background())
	assert.Equal(t, before, others.Load())

	close(release)
	<-firstDone

	// The first tick finished the remaining modules on its own.
	assert.Equal(t, int32(2), others.Load())
}

func TestScheduler_StampIsWrittenBeforeRun(t *testing.T) {
	t.Parallel()

	modules := newMemModules()
	s, _ := newTestScheduler(t, modules)
	require.NoError(t, modules.Seed(context.Background(), scheduler.DefaultModules()))

	s.Register(domain.ModuleIdeas, func(ctx context.Context) (*domain.ScraperRun, error) {
		// By the time the crawl starts the claim must be visible.
		m, err := modules.Get(ctx, domain.ModuleIdeas)
		require.NoError(t, err)
		require.NotNil(t, m.LastRun)
		require.NotNil(t, m.NextRun)
		now := time.Now().UTC()
		return &domain.ScraperRun{ID: "run", StartedAt: now, FinishedAt: &now, Success: true}, nil
	})
	s.Register(domain.ModuleIssues, successRunner(new(int)))
	s.Register(domain.ModuleEvents, successRunner(new(int)))

	s.Tick(context.Background())
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	modules := newMemModules()
	s, _ := newTestScheduler(t, modules)
	require.NoError(t, modules.Seed(context.Background(), scheduler.DefaultModules()))

	calls := 0
	s.Register(domain.ModuleIdeas, successRunner(&calls))

	res, err := s.RunNow(context.Background(), domain.ModuleIdeas)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 7, res.ItemsScraped)
	assert.Equal(t, 2, res.ItemsNew)
	assert.Equal(t, 1, res.ItemsUpdated)
	assert.Equal(t, int64(2000), res.DurationMs)
	assert.Empty(t, res.Error)

	// Manual trigger ignores the schedule: module was just stamped.
	_, err = s.RunNow(context.Background(), domain.ModuleIdeas)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestScheduler_RunNowRejectsDisabled(t *testing.T) {
	t.Parallel()

	modules := newMemModules()
	s, _ := newTestScheduler(t, modules)
	require.NoError(t, modules.Seed(context.Background(), scheduler.DefaultModules()))
	require.NoError(t, modules.SetEnabled(context.Background(), domain.ModuleIdeas, false))

	s.Register(domain.ModuleIdeas, successRunner(new(int)))

	_, err := s.RunNow(context.Background(), domain.ModuleIdeas)
	assert.ErrorIs(t, err, scheduler.ErrModuleDisabled)
}

func TestScheduler_RunNowRejectsUnknown(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t, newMemModules())

	_, err := s.RunNow(context.Background(), "bogus")
	assert.ErrorIs(t, err, scheduler.ErrUnknownModule)
}

func TestScheduler_RunNowRejectsInFlight(t *testing.T) {
	t.Parallel()

	modules := newMemModules()
	s, _ := newTestScheduler(t, modules)
	require.NoError(t, modules.Seed(context.Background(), scheduler.DefaultModules()))

	started := make(chan struct{})
	releaseCh := make(chan struct{})
	s.Register(domain.ModuleIdeas, func(context.Context) (*domain.ScraperRun, error) {
		close(started)
		<-releaseCh
		now := time.Now().UTC()
		return &domain.ScraperRun{ID: "run", StartedAt: now, FinishedAt: &now, Success: true}, nil
	})

	go func() {
		_, _ = s.RunNow(context.Background(), domain.ModuleIdeas)
	}()
	<-started

	_, err := s.RunNow(context.Background(), domain.ModuleIdeas)
	assert.ErrorIs(t, err, scheduler.ErrModuleRunning)
	close(releaseCh)
}

func TestScheduler_RunNowReportsFailedRun(t *testing.T) {
	t.Parallel()

	modules := newMemModules()
	s, _ := newTestScheduler(t, modules)
	require.NoError(t, modules.Seed(context.Background(), scheduler.DefaultModules()))

	s.Register(domain.ModuleEvents, func(context.Context) (*domain.ScraperRun, error) {
		now := time.Now().UTC()
		msg := "failed to read listing page 2"
		return &domain.ScraperRun{
			ID: "run", StartedAt: now, FinishedAt: &now,
			ItemsScraped: 10, Success: false, ErrorMessage: &msg,
		}, nil
	})

	res, err := s.RunNow(context.Background(), domain.ModuleEvents)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 10, res.ItemsScraped)
	assert.Equal(t, "failed to read listing page 2", res.Error)
}

func TestScheduler_StartSeedsAndClosesStale(t *testing.T) {
	t.Parallel()

	modules := newMemModules()
	s, runs := newTestScheduler(t, modules)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, 1, runs.closed)

	list, err := modules.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
