package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied idempotently at boot. One table per record variant,
// one append-only history table per variant, one row per crawl attempt in
// scraper_runs, one row per source in module_configs.
const schema = `
CREATE TABLE IF NOT EXISTS ideas (
	id              BIGSERIAL PRIMARY KEY,
	external_id     TEXT NOT NULL UNIQUE,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	author          TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	supporter_count INTEGER NOT NULL DEFAULT 0,
	comment_count   INTEGER NOT NULL DEFAULT 0,
	url             TEXT NOT NULL DEFAULT '',
	detail_scraped  BOOLEAN NOT NULL DEFAULT FALSE,
	scraped_at      TIMESTAMPTZ NOT NULL,
	modified_at     TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS idea_history (
	id              BIGSERIAL PRIMARY KEY,
	idea_id         BIGINT NOT NULL REFERENCES ideas(id) ON DELETE CASCADE,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	author          TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	supporter_count INTEGER NOT NULL DEFAULT 0,
	comment_count   INTEGER NOT NULL DEFAULT 0,
	changed_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_idea_history_idea_id ON idea_history(idea_id);

CREATE TABLE IF NOT EXISTS issue_reports (
	id             BIGSERIAL PRIMARY KEY,
	external_id    TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	reporter       TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT '',
	location       TEXT NOT NULL DEFAULT '',
	vote_count     INTEGER NOT NULL DEFAULT 0,
	url            TEXT NOT NULL DEFAULT '',
	detail_scraped BOOLEAN NOT NULL DEFAULT FALSE,
	scraped_at     TIMESTAMPTZ NOT NULL,
	modified_at    TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS issue_report_history (
	id              BIGSERIAL PRIMARY KEY,
	issue_report_id BIGINT NOT NULL REFERENCES issue_reports(id) ON DELETE CASCADE,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	reporter        TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	vote_count      INTEGER NOT NULL DEFAULT 0,
	changed_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_issue_report_history_report_id ON issue_report_history(issue_report_id);

CREATE TABLE IF NOT EXISTS events (
	id             BIGSERIAL PRIMARY KEY,
	external_id    TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	organizer      TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT '',
	venue_name     TEXT NOT NULL DEFAULT '',
	venue_address  TEXT NOT NULL DEFAULT '',
	starts_at      TIMESTAMPTZ,
	ends_at        TIMESTAMPTZ,
	price          TEXT NOT NULL DEFAULT '',
	is_free        BOOLEAN NOT NULL DEFAULT FALSE,
	image_url      TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL DEFAULT '',
	detail_scraped BOOLEAN NOT NULL DEFAULT FALSE,
	scraped_at     TIMESTAMPTZ NOT NULL,
	modified_at    TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS event_history (
	id            BIGSERIAL PRIMARY KEY,
	event_id      BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	organizer     TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	venue_name    TEXT NOT NULL DEFAULT '',
	venue_address TEXT NOT NULL DEFAULT '',
	starts_at     TIMESTAMPTZ,
	ends_at       TIMESTAMPTZ,
	price         TEXT NOT NULL DEFAULT '',
	is_free       BOOLEAN NOT NULL DEFAULT FALSE,
	changed_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_history_event_id ON event_history(event_id);

CREATE TABLE IF NOT EXISTS module_configs (
	key              TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	enabled          BOOLEAN NOT NULL DEFAULT TRUE,
	interval_minutes INTEGER NOT NULL DEFAULT 60,
	last_run         TIMESTAMPTZ,
	next_run         TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS scraper_runs (
	id            TEXT PRIMARY KEY,
	module_key    TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	items_scraped INTEGER NOT NULL DEFAULT 0,
	items_new     INTEGER NOT NULL DEFAULT 0,
	items_updated INTEGER NOT NULL DEFAULT 0,
	success       BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_scraper_runs_module_key ON scraper_runs(module_key, started_at DESC);
`

// EnsureSchema applies the schema. Safe to call on every boot.
func EnsureSchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
