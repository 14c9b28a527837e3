// Package domain provides domain models used across the application.
package domain

import (
	"fmt"
	"time"
)

// Idea represents a citizen proposal scraped from the ideas portal.
type Idea struct {
	ID             int64      `json:"id" db:"id"`
	ExternalID     string     `json:"external_id" db:"external_id"`
	Title          string     `json:"title" db:"title"`
	Description    string     `json:"description" db:"description"`
	Author         string     `json:"author" db:"author"`
	Category       string     `json:"category" db:"category"`
	Status         string     `json:"status" db:"status"`
	SupporterCount int        `json:"supporter_count" db:"supporter_count"`
	CommentCount   int        `json:"comment_count" db:"comment_count"`
	URL            string     `json:"url" db:"url"`
	DetailScraped  bool       `json:"detail_scraped" db:"detail_scraped"`
	ScrapedAt      time.Time  `json:"scraped_at" db:"scraped_at"`
	ModifiedAt     *time.Time `json:"modified_at" db:"modified_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Validate checks that the idea carries the fields required for upsert.
func (i *Idea) Validate() error {
	if i.ExternalID == "" || i.Title == "" {
		return fmt.Errorf("%w: idea %q", ErrInvalidRecord, i.ExternalID)
	}
	return nil
}

// ContentEquals reports whether the content fields of two ideas match.
// Bookkeeping fields (scraped_at, modified_at) are not compared.
func (i *Idea) ContentEquals(other *Idea) bool {
	return i.Title == other.Title &&
		i.Description == other.Description &&
		i.Author == other.Author &&
		i.Category == other.Category &&
		i.Status == other.Status &&
		i.SupporterCount == other.SupporterCount &&
		i.CommentCount == other.CommentCount
}

// Snapshot copies the idea's current content into a history row.
func (i *Idea) Snapshot(changedAt time.Time) *IdeaSnapshot {
	return &IdeaSnapshot{
		IdeaID:         i.ID,
		Title:          i.Title,
		Description:    i.Description,
		Author:         i.Author,
		Category:       i.Category,
		Status:         i.Status,
		SupporterCount: i.SupporterCount,
		CommentCount:   i.CommentCount,
		ChangedAt:      changedAt,
	}
}

// IdeaSnapshot is an immutable copy of an idea's prior content.
type IdeaSnapshot struct {
	ID             int64     `json:"id" db:"id"`
	IdeaID         int64     `json:"idea_id" db:"idea_id"`
	Title          string    `json:"title" db:"title"`
	Description    string    `json:"description" db:"description"`
	Author         string    `json:"author" db:"author"`
	Category       string    `json:"category" db:"category"`
	Status         string    `json:"status" db:"status"`
	SupporterCount int       `json:"supporter_count" db:"supporter_count"`
	CommentCount   int       `json:"comment_count" db:"comment_count"`
	ChangedAt      time.Time `json:"changed_at" db:"changed_at"`
}
