// Package crawl runs the per-source crawl state machine: page through a
// listing, extract summaries, fetch detail pages in small batches, and
// persist records with change detection. The engine is generic over
// narrow interfaces so sources stay thin and tests can fake the web.
package crawl

import (
	"context"

	"github.com/mbeckner/civicrawl/internal/fetch"
	"github.com/mbeckner/civicrawl/internal/store"
)

// Summary is the listing-level view of a record: identity, the detail
// link, and whatever content fields the list view shows. Detail values
// override these when the detail fetch succeeds; when it fails the
// record keeps them, so a partial record still carries everything the
// listing offered.
type Summary struct {
	ExternalID string
	Title      string
	URL        string

	Excerpt        string
	Author         string
	Category       string
	Status         string
	SupporterCount int
	CommentCount   int
	VoteCount      int
}

// Valid reports whether the summary can be turned into a record. Rows
// without an external id or title are listing noise and get discarded.
func (s Summary) Valid() bool {
	return s.ExternalID != "" && s.Title != ""
}

// Record is a fully built domain record ready for persistence.
type Record interface {
	ExternalKey() string
	Validate() error
}

// RecordSink persists a record, reporting whether it was new or changed.
type RecordSink interface {
	Persist(ctx context.Context, rec Record) (store.UpsertResult, error)
}

// Navigator opens a source's listing.
type Navigator interface {
	Open(ctx context.Context) (ListingPage, error)
}

// ListingPage is a cursor over the paginated listing. Summaries returns
// the current page's rows; Next advances, reporting false at the end.
type ListingPage interface {
	Summaries() ([]Summary, error)
	Page() int
	Next(ctx context.Context) (bool, error)
	Close()
}

// DetailFetcher loads and extracts one detail page.
type DetailFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.DetailFields, error)
}

// Source bundles everything the engine needs to crawl one portal
// section. Details may be nil for summary-only sources.
type Source struct {
	Key     string
	Nav     Navigator
	Details DetailFetcher
	Build   func(sum Summary, det *fetch.DetailFields) Record
	Sink    RecordSink
}
