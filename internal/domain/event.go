package domain

import (
	"fmt"
	"time"
)

// Event represents a public event scraped from the events calendar.
type Event struct {
	ID            int64      `json:"id" db:"id"`
	ExternalID    string     `json:"external_id" db:"external_id"`
	Title         string     `json:"title" db:"title"`
	Description   string     `json:"description" db:"description"`
	Organizer     string     `json:"organizer" db:"organizer"`
	Category      string     `json:"category" db:"category"`
	Status        string     `json:"status" db:"status"`
	VenueName     string     `json:"venue_name" db:"venue_name"`
	VenueAddress  string     `json:"venue_address" db:"venue_address"`
	StartsAt      *time.Time `json:"starts_at" db:"starts_at"`
	EndsAt        *time.Time `json:"ends_at" db:"ends_at"`
	Price         string     `json:"price" db:"price"`
	IsFree        bool       `json:"is_free" db:"is_free"`
	ImageURL      string     `json:"image_url" db:"image_url"`
	URL           string     `json:"url" db:"url"`
	DetailScraped bool       `json:"detail_scraped" db:"detail_scraped"`
	ScrapedAt     time.Time  `json:"scraped_at" db:"scraped_at"`
	ModifiedAt    *time.Time `json:"modified_at" db:"modified_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// Validate checks that the event carries the fields required for upsert.
func (e *Event) Validate() error {
	if e.ExternalID == "" || e.Title == "" {
		return fmt.Errorf("%w: event %q", ErrInvalidRecord, e.ExternalID)
	}
	return nil
}

// ContentEquals reports whether the content fields of two events match.
func (e *Event) ContentEquals(other *Event) bool {
	return e.Title == other.Title &&
		e.Description == other.Description &&
		e.Organizer == other.Organizer &&
		e.Category == other.Category &&
		e.Status == other.Status &&
		e.VenueName == other.VenueName &&
		e.VenueAddress == other.VenueAddress &&
		timePtrEqual(e.StartsAt, other.StartsAt) &&
		timePtrEqual(e.EndsAt, other.EndsAt) &&
		e.Price == other.Price &&
		e.IsFree == other.IsFree
}

// Snapshot copies the event's current content into a history row.
func (e *Event) Snapshot(changedAt time.Time) *EventSnapshot {
	return &EventSnapshot{
		EventID:      e.ID,
		Title:        e.Title,
		Description:  e.Description,
		Organizer:    e.Organizer,
		Category:     e.Category,
		Status:       e.Status,
		VenueName:    e.VenueName,
		VenueAddress: e.VenueAddress,
		StartsAt:     e.StartsAt,
		EndsAt:       e.EndsAt,
		Price:        e.Price,
		IsFree:       e.IsFree,
		ChangedAt:    changedAt,
	}
}

// EventSnapshot is an immutable copy of an event's prior content.
type EventSnapshot struct {
	ID           int64      `json:"id" db:"id"`
	EventID      int64      `json:"event_id" db:"event_id"`
	Title        string     `json:"title" db:"title"`
	Description  string     `json:"description" db:"description"`
	Organizer    string     `json:"organizer" db:"organizer"`
	Category     string     `json:"category" db:"category"`
	Status       string     `json:"status" db:"status"`
	VenueName    string     `json:"venue_name" db:"venue_name"`
	VenueAddress string     `json:"venue_address" db:"venue_address"`
	StartsAt     *time.Time `json:"starts_at" db:"starts_at"`
	EndsAt       *time.Time `json:"ends_at" db:"ends_at"`
	Price        string     `json:"price" db:"price"`
	IsFree       bool       `json:"is_free" db:"is_free"`
	ChangedAt    time.Time  `json:"changed_at" db:"changed_at"`
}

// timePtrEqual compares two optional timestamps.
func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
