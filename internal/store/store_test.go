package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeckner/civicrawl/internal/domain"
	"github.com/mbeckner/civicrawl/internal/store"
)

// testDB connects to the database named by CIVICRAWL_TEST_DSN, skipping
// the test when unset. Each caller gets a clean slate.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("CIVICRAWL_TEST_DSN")
	if dsn == "" {
		t.Skip("CIVICRAWL_TEST_DSN not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, store.EnsureSchema(db))
	for _, table := range []string{"ideas", "issue_reports", "events", "module_configs", "scraper_runs"} {
		_, err := db.Exec("DELETE FROM " + table)
		require.NoError(t, err)
	}
	return db
}

func sampleIdea(externalID string) *domain.Idea {
	return &domain.Idea{
		ExternalID:     externalID,
		Title:          "More benches in the riverside park",
		Description:    "The park lacks seating along the main path.",
		Author:         "J. Okafor",
		Category:       "parks",
		Status:         "open",
		SupporterCount: 12,
		CommentCount:   3,
		URL:            "https://ideas.example.org/idea/" + externalID,
	}
}

func TestIdeaRepository_Upsert(t *testing.T) {
	db := testDB(t)
	repo := store.NewIdeaRepository(db)
	ctx := context.Background()

	t.Run("first sighting inserts", func(t *testing.T) {
		res, err := repo.Upsert(ctx, sampleIdea("idea-1"))
		require.NoError(t, err)
		assert.True(t, res.IsNew)
		assert.False(t, res.HasChanged)
		assert.NotZero(t, res.ID)

		got, err := repo.GetByExternalID(ctx, "idea-1")
		require.NoError(t, err)
		assert.Nil(t, got.ModifiedAt)
		assert.False(t, got.ScrapedAt.IsZero())
	})

	t.Run("identical content only bumps scraped_at", func(t *testing.T) {
		first, err := repo.Upsert(ctx, sampleIdea("idea-2"))
		require.NoError(t, err)

		before, err := repo.GetByExternalID(ctx, "idea-2")
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		res, err := repo.Upsert(ctx, sampleIdea("idea-2"))
		require.NoError(t, err)
		assert.False(t, res.IsNew)
		assert.False(t, res.HasChanged)
		assert.Equal(t, first.ID, res.ID)

		after, err := repo.GetByExternalID(ctx, "idea-2")
		require.NoError(t, err)
		assert.True(t, after.ScrapedAt.After(before.ScrapedAt))
		assert.Nil(t, after.ModifiedAt)

		history, err := repo.History(ctx, res.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("content change writes history of prior values", func(t *testing.T) {
		res, err := repo.Upsert(ctx, sampleIdea("idea-3"))
		require.NoError(t, err)

		changed := sampleIdea("idea-3")
		changed.SupporterCount = 20
		changed.Status = "under review"

		res2, err := repo.Upsert(ctx, changed)
		require.NoError(t, err)
		assert.False(t, res2.IsNew)
		assert.True(t, res2.HasChanged)
		assert.Equal(t, res.ID, res2.ID)

		got, err := repo.GetByExternalID(ctx, "idea-3")
		require.NoError(t, err)
		assert.Equal(t, 20, got.SupporterCount)
		assert.Equal(t, "under review", got.Status)
		require.NotNil(t, got.ModifiedAt)

		history, err := repo.History(ctx, res.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, 12, history[0].SupporterCount)
		assert.Equal(t, "open", history[0].Status)
	})

	t.Run("delete cascades to history", func(t *testing.T) {
		res, err := repo.Upsert(ctx, sampleIdea("idea-4"))
		require.NoError(t, err)
		changed := sampleIdea("idea-4")
		changed.Title = "Retitled"
		_, err = repo.Upsert(ctx, changed)
		require.NoError(t, err)

		require.NoError(t, repo.DeleteAll(ctx))

		_, err = repo.GetByExternalID(ctx, "idea-4")
		assert.ErrorIs(t, err, store.ErrNotFound)

		var count int
		require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM idea_history WHERE idea_id = $1", res.ID))
		assert.Zero(t, count)
	})
}

func TestModuleRepository(t *testing.T) {
	db := testDB(t)
	repo := store.NewModuleRepository(db)
	ctx := context.Background()

	defaults := []domain.ModuleConfig{
		{Key: domain.ModuleIdeas, Name: "Citizen Ideas", Enabled: true, IntervalMinutes: 60},
		{Key: domain.ModuleIssues, Name: "Issue Reports", Enabled: true, IntervalMinutes: 30},
	}
	require.NoError(t, repo.Seed(ctx, defaults))

	t.Run("seed is idempotent and preserves edits", func(t *testing.T) {
		require.NoError(t, repo.SetInterval(ctx, domain.ModuleIdeas, 120))
		require.NoError(t, repo.Seed(ctx, defaults))

		m, err := repo.Get(ctx, domain.ModuleIdeas)
		require.NoError(t, err)
		assert.Equal(t, 120, m.IntervalMinutes)
	})

	t.Run("interval below minimum rejected", func(t *testing.T) {
		err := repo.SetInterval(ctx, domain.ModuleIdeas, 2)
		assert.ErrorIs(t, err, store.ErrIntervalTooShort)
	})

	t.Run("unknown module returns not found", func(t *testing.T) {
		_, err := repo.Get(ctx, "bogus")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, repo.SetEnabled(ctx, "bogus", false), store.ErrNotFound)
	})

	t.Run("stamp claims a due module exactly once", func(t *testing.T) {
		now := time.Now().UTC()

		ok, err := repo.StampRun(ctx, domain.ModuleIssues, now)
		require.NoError(t, err)
		assert.True(t, ok)

		// Second claim at the same instant: next_run is now in the future.
		ok, err = repo.StampRun(ctx, domain.ModuleIssues, now)
		require.NoError(t, err)
		assert.False(t, ok)

		m, err := repo.Get(ctx, domain.ModuleIssues)
		require.NoError(t, err)
		require.NotNil(t, m.LastRun)
		require.NotNil(t, m.NextRun)
		assert.WithinDuration(t, now.Add(30*time.Minute), *m.NextRun, time.Second)
	})

	t.Run("disabled module cannot be stamped", func(t *testing.T) {
		require.NoError(t, repo.SetEnabled(ctx, domain.ModuleIdeas, false))

		ok, err := repo.StampRun(ctx, domain.ModuleIdeas, time.Now().UTC())
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.StampForced(ctx, domain.ModuleIdeas, time.Now().UTC())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("forced stamp ignores the schedule", func(t *testing.T) {
		now := time.Now().UTC()
		_, err := repo.StampForced(ctx, domain.ModuleIssues, now)
		require.NoError(t, err)

		ok, err := repo.StampForced(ctx, domain.ModuleIssues, now.Add(time.Second))
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRunRepository(t *testing.T) {
	db := testDB(t)
	repo := store.NewRunRepository(db)
	ctx := context.Background()

	t.Run("start and finish round-trip", func(t *testing.T) {
		run, err := repo.Start(ctx, domain.ModuleEvents)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)

		run.ItemsScraped = 5
		run.ItemsNew = 2
		run.ItemsUpdated = 1
		run.Success = true
		require.NoError(t, repo.Finish(ctx, run))

		runs, err := repo.ListRecent(ctx, domain.ModuleEvents, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 5, runs[0].ItemsScraped)
		assert.True(t, runs[0].Success)
		require.NotNil(t, runs[0].FinishedAt)
	})

	t.Run("stale runs closed as failed", func(t *testing.T) {
		_, err := repo.Start(ctx, domain.ModuleIdeas)
		require.NoError(t, err)
		_, err = repo.Start(ctx, domain.ModuleIssues)
		require.NoError(t, err)

		n, err := repo.CloseStale(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		runs, err := repo.ListRecent(ctx, "", 10)
		require.NoError(t, err)
		for _, run := range runs {
			require.NotNil(t, run.FinishedAt)
		}

		closed, err := repo.ListRecent(ctx, domain.ModuleIdeas, 1)
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.False(t, closed[0].Success)
		require.NotNil(t, closed[0].ErrorMessage)
		assert.Equal(t, "interrupted by process restart", *closed[0].ErrorMessage)
	})
}
