package domain

import "time"

// ScraperRun records a single crawl attempt for a module.
// A row is created when the crawl starts and finalized when it ends;
// rows are never left permanently open.
type ScraperRun struct {
	ID           string     `json:"id" db:"id"`
	ModuleKey    string     `json:"module_key" db:"module_key"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" db:"finished_at"`
	ItemsScraped int        `json:"items_scraped" db:"items_scraped"`
	ItemsNew     int        `json:"items_new" db:"items_new"`
	ItemsUpdated int        `json:"items_updated" db:"items_updated"`
	Success      bool       `json:"success" db:"success"`
	ErrorMessage *string    `json:"error_message" db:"error_message"`
}

// Duration returns the run's wall-clock duration, or zero if still open.
func (r *ScraperRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
