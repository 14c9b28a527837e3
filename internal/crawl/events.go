package crawl

import (
	"context"
	"fmt"

	"github.com/mbeckner/civicrawl/internal/domain"
	"github.com/mbeckner/civicrawl/internal/enrich"
	"github.com/mbeckner/civicrawl/internal/fetch"
	"github.com/mbeckner/civicrawl/internal/logger"
	"github.com/mbeckner/civicrawl/internal/store"
)

type eventRecord struct{ *domain.Event }

func (r eventRecord) ExternalKey() string { return r.ExternalID }

type eventSink struct {
	repo *store.EventRepository
}

func (s eventSink) Persist(ctx context.Context, rec Record) (store.UpsertResult, error) {
	er, ok := rec.(eventRecord)
	if !ok {
		return store.UpsertResult{}, fmt.Errorf("unexpected record type %T", rec)
	}
	return s.repo.Upsert(ctx, er.Event)
}

// NewEventsSource configures the public-events crawler. Event detail
// pages are free-form prose, so when the enrichment service is available
// it does the extraction; otherwise a best-effort selector table runs.
func NewEventsSource(
	loader fetch.PageLoader,
	repo *store.EventRepository,
	baseURL string,
	enrichClient *enrich.Client,
	log logger.Interface,
) Source {
	var extractor fetch.Extractor
	if enrichClient != nil {
		extractor = fetch.NewEnrichExtractor(enrichClient)
	} else {
		extractor = fetch.NewSelectorExtractor(fetch.Selectors{
			Description:  ".event-detail .description",
			Author:       ".event-detail .organizer",
			Category:     ".event-detail .category",
			VenueName:    ".event-detail .venue-name",
			VenueAddress: ".event-detail .venue-address",
			StartsAt:     ".event-detail time.starts",
			EndsAt:       ".event-detail time.ends",
			Price:        ".event-detail .price",
			ImageURL:     ".event-detail img.event-image",
		})
	}

	return Source{
		Key: domain.ModuleEvents,
		Nav: NewPagedNavigator(
			loader,
			".event-list",
			pageURL(baseURL),
			ParseListingWith(baseURL, ListingSelectors{
				Row:      ".event-list .event-card",
				Title:    ".event-title",
				Link:     "a.event-link",
				IDAttr:   "data-event-id",
				Excerpt:  ".event-excerpt",
				Author:   ".event-organizer",
				Category: ".event-category",
				Status:   ".event-status",
			}),
		),
		Details: fetch.NewDetailFetcher(loader, extractor, ".event-detail", log),
		Build: func(sum Summary, det *fetch.DetailFields) Record {
			event := &domain.Event{
				ExternalID:  sum.ExternalID,
				Title:       sum.Title,
				URL:         sum.URL,
				Description: sum.Excerpt,
				Organizer:   sum.Author,
				Category:    sum.Category,
				Status:      sum.Status,
			}
			if det != nil {
				event.Description = pick(det.Description, event.Description)
				event.Organizer = pick(det.Author, event.Organizer)
				event.Category = pick(det.Category, event.Category)
				event.Status = pick(det.Status, event.Status)
				event.VenueName = det.VenueName
				event.VenueAddress = det.VenueAddress
				event.StartsAt = det.StartsAt
				event.EndsAt = det.EndsAt
				event.Price = det.Price
				event.IsFree = det.IsFree
				event.ImageURL = det.ImageURL
				event.DetailScraped = det.DetailScraped
			}
			return eventRecord{event}
		},
		Sink: eventSink{repo: repo},
	}
}
