package fetch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeckner/civicrawl/internal/fetch"
	"github.com/mbeckner/civicrawl/internal/logger"
)

const eventDetailHTML = `
<html><body>
  <article class="event">
    <h1>Open-Air Cinema</h1>
    <div class="description">Classic films under the stars, every Friday in July.</div>
    <span class="organizer">Parks Department</span>
    <time class="starts" datetime="2026-07-03T20:30:00Z">July 3, 8:30pm</time>
    <time class="ends" datetime="2026-07-03T23:00:00Z">11pm</time>
    <div class="venue">
      <span class="name">Riverside Meadow</span>
      <span class="address">14 River Walk</span>
    </div>
    <span class="price">Free</span>
    <img class="poster" src="https://cdn.example.org/cinema.jpg"/>
    <span class="votes">Supported by 132 residents</span>
  </article>
</body></html>`

func TestSelectorExtractor(t *testing.T) {
	t.Parallel()

	extractor := fetch.NewSelectorExtractor(fetch.Selectors{
		Description:    ".description",
		Author:         ".organizer",
		VenueName:      ".venue .name",
		VenueAddress:   ".venue .address",
		StartsAt:       "time.starts",
		EndsAt:         "time.ends",
		Price:          ".price",
		ImageURL:       "img.poster",
		SupporterCount: ".votes",
	})

	fields, err := extractor.Extract(context.Background(), &fetch.PageContent{HTML: eventDetailHTML})
	require.NoError(t, err)

	assert.Equal(t, "Classic films under the stars, every Friday in July.", fields.Description)
	assert.Equal(t, "Parks Department", fields.Author)
	assert.Equal(t, "Riverside Meadow", fields.VenueName)
	assert.Equal(t, "14 River Walk", fields.VenueAddress)
	assert.Equal(t, "Free", fields.Price)
	assert.True(t, fields.IsFree)
	assert.Equal(t, "https://cdn.example.org/cinema.jpg", fields.ImageURL)
	assert.Equal(t, 132, fields.SupporterCount)
	assert.True(t, fields.DetailScraped)

	require.NotNil(t, fields.StartsAt)
	assert.Equal(t, time.Date(2026, 7, 3, 20, 30, 0, 0, time.UTC), *fields.StartsAt)
	require.NotNil(t, fields.EndsAt)
	assert.Equal(t, time.Date(2026, 7, 3, 23, 0, 0, 0, time.UTC), *fields.EndsAt)
}

func TestSelectorExtractor_MissingFieldsStayZero(t *testing.T) {
	t.Parallel()

	extractor := fetch.NewSelectorExtractor(fetch.Selectors{
		Description: ".nope",
		StartsAt:    "time.absent",
		VoteCount:   ".absent",
	})

	fields, err := extractor.Extract(context.Background(), &fetch.PageContent{HTML: "<html><body><p>bare</p></body></html>"})
	require.NoError(t, err)
	assert.Empty(t, fields.Description)
	assert.Nil(t, fields.StartsAt)
	assert.Zero(t, fields.VoteCount)
	assert.False(t, fields.IsFree)
	assert.True(t, fields.DetailScraped)
}

type stubLoader struct {
	html string
	err  error
}

func (s *stubLoader) FetchPage(context.Context, string, string) (string, error) {
	return s.html, s.err
}

type stubExtractor struct {
	fields *fetch.DetailFields
	err    error
}

func (s *stubExtractor) Extract(context.Context, *fetch.PageContent) (*fetch.DetailFields, error) {
	return s.fields, s.err
}

func TestDetailFetcher_Success(t *testing.T) {
	t.Parallel()

	want := &fetch.DetailFields{Description: "details", DetailScraped: true}
	f := fetch.NewDetailFetcher(
		&stubLoader{html: "<html><body>details</body></html>"},
		&stubExtractor{fields: want},
		".anchor",
		logger.NewNoOp(),
	)

	got, err := f.Fetch(context.Background(), "https://example.org/item/1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDetailFetcher_FetchFailureAbsorbed(t *testing.T) {
	t.Parallel()

	f := fetch.NewDetailFetcher(
		&stubLoader{err: errors.New("navigation timeout")},
		&stubExtractor{},
		"",
		logger.NewNoOp(),
	)

	got, err := f.Fetch(context.Background(), "https://example.org/item/1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.DetailScraped)
}

func TestDetailFetcher_ExtractFailureAbsorbed(t *testing.T) {
	t.Parallel()

	f := fetch.NewDetailFetcher(
		&stubLoader{html: "<html></html>"},
		&stubExtractor{err: errors.New("malformed page")},
		"",
		logger.NewNoOp(),
	)

	got, err := f.Fetch(context.Background(), "https://example.org/item/2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.DetailScraped)
}
