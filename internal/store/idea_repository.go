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

// IdeaRepository handles database operations for citizen ideas.
type IdeaRepository struct {
	db *sqlx.DB
}

// NewIdeaRepository creates a new idea repository.
func NewIdeaRepository(db *sqlx.DB) *IdeaRepository {
	return &IdeaRepository{db: db}
}

// GetByExternalID retrieves an idea by its source-assigned id.
func (r *IdeaRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Idea, error) {
	var idea domain.Idea
	query := `
		SELECT id, external_id, title, description, author, category, status,
		       supporter_count, comment_count, url, detail_scraped,
		       scraped_at, modified_at, created_at
		FROM ideas
		WHERE external_id = $1
	`

	err := r.db.GetContext(ctx, &idea, query, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get idea: %w", err)
	}

	return &idea, nil
}

// Upsert inserts or updates an idea keyed by external id.
// On a content change the existing values are snapshotted into
// idea_history before the row is updated; scraped_at is bumped on every
// call regardless of change so "last seen" and "last changed" stay
// distinguishable.
func (r *IdeaRepository) Upsert(ctx context.Context, idea *domain.Idea) (UpsertResult, error) {
	now := time.Now().UTC()

	existing, err := r.GetByExternalID(ctx, idea.ExternalID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return UpsertResult{}, err
	}

	if existing == nil {
		return r.insert(ctx, idea, now)
	}

	if existing.ContentEquals(idea) {
		if touchErr := r.touch(ctx, existing.ID, now); touchErr != nil {
			return UpsertResult{}, touchErr
		}
		return UpsertResult{ID: existing.ID}, nil
	}

	return r.updateChanged(ctx, existing, idea, now)
}

// insert creates a new idea row. modified_at stays unset until the first
// observed content change.
func (r *IdeaRepository) insert(ctx context.Context, idea *domain.Idea, now time.Time) (UpsertResult, error) {
	query := `
		INSERT INTO ideas (external_id, title, description, author, category, status,
		                   supporter_count, comment_count, url, detail_scraped, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx, query,
		idea.ExternalID, idea.Title, idea.Description, idea.Author,
		idea.Category, idea.Status, idea.SupporterCount, idea.CommentCount,
		idea.URL, idea.DetailScraped, now,
	).Scan(&id)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to insert idea: %w", err)
	}

	idea.ID = id
	idea.ScrapedAt = now
	return UpsertResult{ID: id, IsNew: true}, nil
}

// touch bumps scraped_at without touching content fields.
func (r *IdeaRepository) touch(ctx context.Context, id int64, now time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE ideas SET scraped_at = $1 WHERE id = $2`,
		now, id,
	); err != nil {
		return fmt.Errorf("failed to touch idea: %w", err)
	}
	return nil
}

// updateChanged writes a history snapshot of the pre-update values, then
// applies the incoming content.
func (r *IdeaRepository) updateChanged(
	ctx context.Context,
	existing, incoming *domain.Idea,
	now time.Time,
) (UpsertResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := existing.Snapshot(now)
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO idea_history (idea_id, title, description, author, category, status,
		                          supporter_count, comment_count, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snap.IdeaID, snap.Title, snap.Description, snap.Author, snap.Category,
		snap.Status, snap.SupporterCount, snap.CommentCount, snap.ChangedAt,
	); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to write idea history: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE ideas
		SET title = $1, description = $2, author = $3, category = $4, status = $5,
		    supporter_count = $6, comment_count = $7, url = $8, detail_scraped = $9,
		    scraped_at = $10, modified_at = $10
		WHERE id = $11`,
		incoming.Title, incoming.Description, incoming.Author, incoming.Category,
		incoming.Status, incoming.SupporterCount, incoming.CommentCount,
		incoming.URL, incoming.DetailScraped, now, existing.ID,
	); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to update idea: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to commit idea update: %w", err)
	}

	return UpsertResult{ID: existing.ID, HasChanged: true}, nil
}

// History returns the snapshots for an idea, newest first.
func (r *IdeaRepository) History(ctx context.Context, ideaID int64) ([]*domain.IdeaSnapshot, error) {
	var snaps []*domain.IdeaSnapshot
	query := `
		SELECT id, idea_id, title, description, author, category, status,
		       supporter_count, comment_count, changed_at
		FROM idea_history
		WHERE idea_id = $1
		ORDER BY changed_at DESC
	`

	if err := r.db.SelectContext(ctx, &snaps, query, ideaID); err != nil {
		return nil, fmt.Errorf("failed to list idea history: %w", err)
	}
	return snaps, nil
}

// TitlesSince returns titles of ideas created or changed at or after t,
// most recently seen first. Feeds the corpus summary.
func (r *IdeaRepository) TitlesSince(ctx context.Context, t time.Time) ([]string, error) {
	var titles []string
	err := r.db.SelectContext(ctx, &titles, `
		SELECT title FROM ideas
		WHERE created_at >= $1 OR modified_at >= $1
		ORDER BY scraped_at DESC
		LIMIT 50`, t)
	if err != nil {
		return nil, fmt.Errorf("failed to list changed ideas: %w", err)
	}
	return titles, nil
}

// DeleteAll removes every idea and, via cascade, its history. Used only
// by the destructive reset-and-rescrape path; never called from a crawl.
func (r *IdeaRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ideas`); err != nil {
		return fmt.Errorf("failed to delete ideas: %w", err)
	}
	return nil
}
