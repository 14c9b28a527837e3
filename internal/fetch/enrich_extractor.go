package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/mbeckner/civicrawl/internal/enrich"
)

// EnrichExtractor extracts detail fields by sending the page text to the
// enrichment service. Used for sources whose detail pages are too
// unstructured for a selector table.
type EnrichExtractor struct {
	client *enrich.Client
}

// NewEnrichExtractor creates an enrichment-backed extractor.
func NewEnrichExtractor(client *enrich.Client) *EnrichExtractor {
	return &EnrichExtractor{client: client}
}

// Extract sends the page text to the enrichment service and maps the
// structured result onto detail fields.
func (e *EnrichExtractor) Extract(ctx context.Context, page *PageContent) (*DetailFields, error) {
	res, err := e.client.ExtractEvent(ctx, page.Text, page.URL)
	if err != nil {
		return nil, fmt.Errorf("enrichment extraction failed: %w", err)
	}

	fields := &DetailFields{
		Description:   res.Description,
		Author:        res.Organizer,
		Price:         res.Price,
		IsFree:        res.IsFree,
		DetailScraped: true,
	}
	if res.Location != nil {
		fields.VenueName = res.Location.Name
		fields.VenueAddress = res.Location.Address
		fields.Location = res.Location.City
	}
	if len(res.ImageURLs) > 0 {
		fields.ImageURL = res.ImageURLs[0]
	}
	if len(res.Dates) > 0 {
		if t, perr := time.Parse(time.RFC3339, res.Dates[0]); perr == nil {
			t = t.UTC()
			fields.StartsAt = &t
		}
	}
	if len(res.Dates) > 1 {
		if t, perr := time.Parse(time.RFC3339, res.Dates[1]); perr == nil {
			t = t.UTC()
			fields.EndsAt = &t
		}
	}
	return fields, nil
}
