package fetch

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mbeckner/civicrawl/internal/logger"
)

// PageLoader loads a URL and returns its rendered HTML.
type PageLoader interface {
	FetchPage(ctx context.Context, url, anchor string) (string, error)
}

// DetailFetcher loads a record's detail page and runs an extractor over
// it. Detail failures are absorbed: the caller always gets fields back,
// with DetailScraped false when the page could not be read, so summary
// data is persisted either way.
type DetailFetcher struct {
	loader    PageLoader
	extractor Extractor
	anchor    string
	logger    logger.Interface
}

// NewDetailFetcher creates a detail fetcher for one source.
func NewDetailFetcher(loader PageLoader, extractor Extractor, anchor string, log logger.Interface) *DetailFetcher {
	return &DetailFetcher{
		loader:    loader,
		extractor: extractor,
		anchor:    anchor,
		logger:    log.WithComponent("detail"),
	}
}

// Fetch returns the extracted detail fields for the URL. Never returns
// an error for per-page failures; those yield DetailScraped false.
func (d *DetailFetcher) Fetch(ctx context.Context, url string) (*DetailFields, error) {
	html, err := d.loader.FetchPage(ctx, url, d.anchor)
	if err != nil {
		d.logger.Warn("detail page fetch failed", "url", url, "error", err)
		return &DetailFields{}, nil
	}

	page := &PageContent{URL: url, HTML: html, Text: pageText(html)}
	fields, err := d.extractor.Extract(ctx, page)
	if err != nil {
		d.logger.Warn("detail extraction failed", "url", url, "error", err)
		return &DetailFields{}, nil
	}
	return fields, nil
}

// pageText strips markup for extractors that work on plain text.
func pageText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}
