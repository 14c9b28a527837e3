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

// IssueRepository handles database operations for issue reports.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository creates a new issue-report repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// GetByExternalID retrieves an issue report by its source-assigned id.
func (r *IssueRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.IssueReport, error) {
	var report domain.IssueReport
	query := `
		SELECT id, external_id, title, description, reporter, category, status,
		       location, vote_count, url, detail_scraped,
		       scraped_at, modified_at, created_at
		FROM issue_reports
		WHERE external_id = $1
	`

	err := r.db.GetContext(ctx, &report, query, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get issue report: %w", err)
	}

	return &report, nil
}

// Upsert inserts or updates an issue report keyed by external id, writing
// a history snapshot of the prior values on content change.
func (r *IssueRepository) Upsert(ctx context.Context, report *domain.IssueReport) (UpsertResult, error) {
	now := time.Now().UTC()

	existing, err := r.GetByExternalID(ctx, report.ExternalID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return UpsertResult{}, err
	}

	if existing == nil {
		return r.insert(ctx, report, now)
	}

	if existing.ContentEquals(report) {
		if _, touchErr := r.db.ExecContext(ctx,
			`UPDATE issue_reports SET scraped_at = $1 WHERE id = $2`, now, existing.ID,
		); touchErr != nil {
			return UpsertResult{}, fmt.Errorf("failed to touch issue report: %w", touchErr)
		}
		return UpsertResult{ID: existing.ID}, nil
	}

	return r.updateChanged(ctx, existing, report, now)
}

func (r *IssueRepository) insert(ctx context.Context, report *domain.IssueReport, now time.Time) (UpsertResult, error) {
	query := `
		INSERT INTO issue_reports (external_id, title, description, reporter, category,
		                           status, location, vote_count, url, detail_scraped, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx, query,
		report.ExternalID, report.Title, report.Description, report.Reporter,
		report.Category, report.Status, report.Location, report.VoteCount,
		report.URL, report.DetailScraped, now,
	).Scan(&id)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to insert issue report: %w", err)
	}

	report.ID = id
	report.ScrapedAt = now
	return UpsertResult{ID: id, IsNew: true}, nil
}

func (r *IssueRepository) updateChanged(
	ctx context.Context,
	existing, incoming *domain.IssueReport,
	now time.Time,
) (UpsertResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := existing.Snapshot(now)
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO issue_report_history (issue_report_id, title, description, reporter,
		                                  category, status, location, vote_count, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snap.IssueReportID, snap.Title, snap.Description, snap.Reporter,
		snap.Category, snap.Status, snap.Location, snap.VoteCount, snap.ChangedAt,
	); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to write issue report history: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE issue_reports
		SET title = $1, description = $2, reporter = $3, category = $4, status = $5,
		    location = $6, vote_count = $7, url = $8, detail_scraped = $9,
		    scraped_at = $10, modified_at = $10
		WHERE id = $11`,
		incoming.Title, incoming.Description, incoming.Reporter, incoming.Category,
		incoming.Status, incoming.Location, incoming.VoteCount,
		incoming.URL, incoming.DetailScraped, now, existing.ID,
	); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to update issue report: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to commit issue report update: %w", err)
	}

	return UpsertResult{ID: existing.ID, HasChanged: true}, nil
}

// History returns the snapshots for an issue report, newest first.
func (r *IssueRepository) History(ctx context.Context, reportID int64) ([]*domain.IssueSnapshot, error) {
	var snaps []*domain.IssueSnapshot
	query := `
		SELECT id, issue_report_id, title, description, reporter, category, status,
		       location, vote_count, changed_at
		FROM issue_report_history
		WHERE issue_report_id = $1
		ORDER BY changed_at DESC
	`

	if err := r.db.SelectContext(ctx, &snaps, query, reportID); err != nil {
		return nil, fmt.Errorf("failed to list issue report history: %w", err)
	}
	return snaps, nil
}

// TitlesSince returns titles of issue reports created or changed at or
// after t, most recently seen first.
func (r *IssueRepository) TitlesSince(ctx context.Context, t time.Time) ([]string, error) {
	var titles []string
	err := r.db.SelectContext(ctx, &titles, `
		SELECT title FROM issue_reports
		WHERE created_at >= $1 OR modified_at >= $1
		ORDER BY scraped_at DESC
		LIMIT 50`, t)
	if err != nil {
		return nil, fmt.Errorf("failed to list changed issue reports: %w", err)
	}
	return titles, nil
}

// DeleteAll removes every issue report and its history. Reset path only.
func (r *IssueRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM issue_reports`); err != nil {
		return fmt.Errorf("failed to delete issue reports: %w", err)
	}
	return nil
}
