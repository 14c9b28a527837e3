package domain

import "time"

// ProgressStatus is the lifecycle state of a crawl as seen by observers.
type ProgressStatus string

const (
	// ProgressRunning indicates the crawl is in flight.
	ProgressRunning ProgressStatus = "running"
	// ProgressCompleted indicates the crawl finished successfully.
	ProgressCompleted ProgressStatus = "completed"
	// ProgressError indicates the crawl aborted with an error.
	ProgressError ProgressStatus = "error"
)

// ProgressSnapshot is the non-persistent, per-module view of a running crawl.
// It is overwritten on every status push.
type ProgressSnapshot struct {
	ModuleKey    string         `json:"module_key"`
	Status       ProgressStatus `json:"status"`
	ItemsScraped int            `json:"items_scraped"`
	ItemsNew     int            `json:"items_new"`
	ItemsUpdated int            `json:"items_updated"`
	Page         int            `json:"page,omitempty"`
	Message      string         `json:"message,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Terminal reports whether no further updates are expected for this run.
func (s ProgressSnapshot) Terminal() bool {
	return s.Status == ProgressCompleted || s.Status == ProgressError
}
