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

// EventRepository handles database operations for public events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetByExternalID retrieves an event by its source-assigned id.
func (r *EventRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Event, error) {
	var event domain.Event
	query := `
		SELECT id, external_id, title, description, organizer, category, status,
		       venue_name, venue_address, starts_at, ends_at, price, is_free,
		       image_url, url, detail_scraped, scraped_at, modified_at, created_at
		FROM events
		WHERE external_id = $1
	`

	err := r.db.GetContext(ctx, &event, query, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return &event, nil
}

// Upsert inserts or updates an event keyed by external id, writing a
// history snapshot of the prior values on content change.
func (r *EventRepository) Upsert(ctx context.Context, event *domain.Event) (UpsertResult, error) {
	now := time.Now().UTC()

	existing, err := r.GetByExternalID(ctx, event.ExternalID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return UpsertResult{}, err
	}

	if existing == nil {
		return r.insert(ctx, event, now)
	}

	if existing.ContentEquals(event) {
		if _, touchErr := r.db.ExecContext(ctx,
			`UPDATE events SET scraped_at = $1 WHERE id = $2`, now, existing.ID,
		); touchErr != nil {
			return UpsertResult{}, fmt.Errorf("failed to touch event: %w", touchErr)
		}
		return UpsertResult{ID: existing.ID}, nil
	}

	return r.updateChanged(ctx, existing, event, now)
}

func (r *EventRepository) insert(ctx context.Context, event *domain.Event, now time.Time) (UpsertResult, error) {
	query := `
		INSERT INTO events (external_id, title, description, organizer, category, status,
		                    venue_name, venue_address, starts_at, ends_at, price, is_free,
		                    image_url, url, detail_scraped, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx, query,
		event.ExternalID, event.Title, event.Description, event.Organizer,
		event.Category, event.Status, event.VenueName, event.VenueAddress,
		event.StartsAt, event.EndsAt, event.Price, event.IsFree,
		event.ImageURL, event.URL, event.DetailScraped, now,
	).Scan(&id)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to insert event: %w", err)
	}

	event.ID = id
	event.ScrapedAt = now
	return UpsertResult{ID: id, IsNew: true}, nil
}

func (r *EventRepository) updateChanged(
	ctx context.Context,
	existing, incoming *domain.Event,
	now time.Time,
) (UpsertResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := existing.Snapshot(now)
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO event_history (event_id, title, description, organizer, category,
		                           status, venue_name, venue_address, starts_at, ends_at,
		                           price, is_free, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		snap.EventID, snap.Title, snap.Description, snap.Organizer, snap.Category,
		snap.Status, snap.VenueName, snap.VenueAddress, snap.StartsAt, snap.EndsAt,
		snap.Price, snap.IsFree, snap.ChangedAt,
	); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to write event history: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE events
		SET title = $1, description = $2, organizer = $3, category = $4, status = $5,
		    venue_name = $6, venue_address = $7, starts_at = $8, ends_at = $9,
		    price = $10, is_free = $11, image_url = $12, url = $13, detail_scraped = $14,
		    scraped_at = $15, modified_at = $15
		WHERE id = $16`,
		incoming.Title, incoming.Description, incoming.Organizer, incoming.Category,
		incoming.Status, incoming.VenueName, incoming.VenueAddress,
		incoming.StartsAt, incoming.EndsAt, incoming.Price, incoming.IsFree,
		incoming.ImageURL, incoming.URL, incoming.DetailScraped, now, existing.ID,
	); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to update event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to commit event update: %w", err)
	}

	return UpsertResult{ID: existing.ID, HasChanged: true}, nil
}

// History returns the snapshots for an event, newest first.
func (r *EventRepository) History(ctx context.Context, eventID int64) ([]*domain.EventSnapshot, error) {
	var snaps []*domain.EventSnapshot
	query := `
		SELECT id, event_id, title, description, organizer, category, status,
		       venue_name, venue_address, starts_at, ends_at, price, is_free, changed_at
		FROM event_history
		WHERE event_id = $1
		ORDER BY changed_at DESC
	`

	if err := r.db.SelectContext(ctx, &snaps, query, eventID); err != nil {
		return nil, fmt.Errorf("failed to list event history: %w", err)
	}
	return snaps, nil
}

// TitlesSince returns titles of events created or changed at or after t,
// most recently seen first.
func (r *EventRepository) TitlesSince(ctx context.Context, t time.Time) ([]string, error) {
	var titles []string
	err := r.db.SelectContext(ctx, &titles, `
		SELECT title FROM events
		WHERE created_at >= $1 OR modified_at >= $1
		ORDER BY scraped_at DESC
		LIMIT 50`, t)
	if err != nil {
		return nil, fmt.Errorf("failed to list changed events: %w", err)
	}
	return titles, nil
}

// DeleteAll removes every event and its history. Reset path only.
func (r *EventRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}
