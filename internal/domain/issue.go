package domain

import (
	"fmt"
	"time"
)

// IssueReport represents a citizen issue report scraped from the reporting portal.
type IssueReport struct {
	ID            int64      `json:"id" db:"id"`
	ExternalID    string     `json:"external_id" db:"external_id"`
	Title         string     `json:"title" db:"title"`
	Description   string     `json:"description" db:"description"`
	Reporter      string     `json:"reporter" db:"reporter"`
	Category      string     `json:"category" db:"category"`
	Status        string     `json:"status" db:"status"`
	Location      string     `json:"location" db:"location"`
	VoteCount     int        `json:"vote_count" db:"vote_count"`
	URL           string     `json:"url" db:"url"`
	DetailScraped bool       `json:"detail_scraped" db:"detail_scraped"`
	ScrapedAt     time.Time  `json:"scraped_at" db:"scraped_at"`
	ModifiedAt    *time.Time `json:"modified_at" db:"modified_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// Validate checks that the report carries the fields required for upsert.
func (r *IssueReport) Validate() error {
	if r.ExternalID == "" || r.Title == "" {
		return fmt.Errorf("%w: issue report %q", ErrInvalidRecord, r.ExternalID)
	}
	return nil
}

// ContentEquals reports whether the content fields of two reports match.
func (r *IssueReport) ContentEquals(other *IssueReport) bool {
	return r.Title == other.Title &&
		r.Description == other.Description &&
		r.Reporter == other.Reporter &&
		r.Category == other.Category &&
		r.Status == other.Status &&
		r.Location == other.Location &&
		r.VoteCount == other.VoteCount
}

// Snapshot copies the report's current content into a history row.
func (r *IssueReport) Snapshot(changedAt time.Time) *IssueSnapshot {
	return &IssueSnapshot{
		IssueReportID: r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Reporter:      r.Reporter,
		Category:      r.Category,
		Status:        r.Status,
		Location:      r.Location,
		VoteCount:     r.VoteCount,
		ChangedAt:     changedAt,
	}
}

// IssueSnapshot is an immutable copy of an issue report's prior content.
type IssueSnapshot struct {
	ID            int64     `json:"id" db:"id"`
	IssueReportID int64     `json:"issue_report_id" db:"issue_report_id"`
	Title         string    `json:"title" db:"title"`
	Description   string    `json:"description" db:"description"`
	Reporter      string    `json:"reporter" db:"reporter"`
	Category      string    `json:"category" db:"category"`
	Status        string    `json:"status" db:"status"`
	Location      string    `json:"location" db:"location"`
	VoteCount     int       `json:"vote_count" db:"vote_count"`
	ChangedAt     time.Time `json:"changed_at" db:"changed_at"`
}
