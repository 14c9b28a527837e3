package domain

import "time"

// MinIntervalMinutes is the smallest crawl interval an operator may configure.
const MinIntervalMinutes = 5

// Module keys for the built-in sources.
const (
	ModuleIdeas  = "ideas"
	ModuleIssues = "issues"
	ModuleEvents = "events"
)

// ModuleConfig holds the per-source crawl configuration.
// LastRun and NextRun are written only by the scheduler, always together,
// before a crawl starts.
type ModuleConfig struct {
	Key             string     `json:"key" db:"key"`
	Name            string     `json:"name" db:"name"`
	Description     string     `json:"description" db:"description"`
	Enabled         bool       `json:"enabled" db:"enabled"`
	IntervalMinutes int        `json:"interval_minutes" db:"interval_minutes"`
	LastRun         *time.Time `json:"last_run" db:"last_run"`
	NextRun         *time.Time `json:"next_run" db:"next_run"`
}

// Due reports whether the module should be crawled at the given time.
func (m *ModuleConfig) Due(now time.Time) bool {
	if !m.Enabled {
		return false
	}
	return m.NextRun == nil || !m.NextRun.After(now)
}
