package crawl

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mbeckner/civicrawl/internal/fetch"
)

// ListingParser turns a rendered listing page into summaries.
type ListingParser func(html string) ([]Summary, error)

// PagedNavigator walks a ?page=N style listing through the browser.
type PagedNavigator struct {
	loader fetch.PageLoader
	anchor string
	urlFor func(page int) string
	parse  ListingParser
}

// NewPagedNavigator creates a navigator for one listing.
func NewPagedNavigator(
	loader fetch.PageLoader,
	anchor string,
	urlFor func(page int) string,
	parse ListingParser,
) *PagedNavigator {
	return &PagedNavigator{loader: loader, anchor: anchor, urlFor: urlFor, parse: parse}
}

// Open fetches the first listing page.
func (n *PagedNavigator) Open(ctx context.Context) (ListingPage, error) {
	html, err := n.loader.FetchPage(ctx, n.urlFor(1), n.anchor)
	if err != nil {
		return nil, err
	}
	return &pagedListing{nav: n, page: 1, html: html}, nil
}

type pagedListing struct {
	nav  *PagedNavigator
	page int
	html string
}

func (p *pagedListing) Summaries() ([]Summary, error) {
	return p.nav.parse(p.html)
}

func (p *pagedListing) Page() int {
	return p.page
}

// Next fetches the following page. A page with zero rows means the
// listing is exhausted.
func (p *pagedListing) Next(ctx context.Context) (bool, error) {
	html, err := p.nav.loader.FetchPage(ctx, p.nav.urlFor(p.page+1), p.nav.anchor)
	if err != nil {
		return false, err
	}

	sums, err := p.nav.parse(html)
	if err != nil {
		return false, err
	}
	if len(sums) == 0 {
		return false, nil
	}

	p.page++
	p.html = html
	return true, nil
}

func (p *pagedListing) Close() {}

// ListingSelectors describes where summaries live in a listing page.
// IDAttr names a row attribute carrying the external id; when absent the
// id falls back to the last segment of the detail link. The content
// selectors are optional; empty entries leave the summary field blank.
type ListingSelectors struct {
	Row    string
	Title  string
	Link   string
	IDAttr string

	Excerpt        string
	Author         string
	Category       string
	Status         string
	SupporterCount string
	CommentCount   string
	VoteCount      string
}

// ParseListingWith builds a goquery-based parser for a selector table.
// Detail links are resolved against the listing's base URL.
func ParseListingWith(baseURL string, sel ListingSelectors) ListingParser {
	base, baseErr := url.Parse(baseURL)

	return func(html string) ([]Summary, error) {
		if baseErr != nil {
			return nil, fmt.Errorf("bad listing base url %q: %w", baseURL, baseErr)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("failed to parse listing html: %w", err)
		}

		var sums []Summary
		doc.Find(sel.Row).Each(func(_ int, row *goquery.Selection) {
			sum := Summary{
				Title:          rowText(row, sel.Title),
				Excerpt:        rowText(row, sel.Excerpt),
				Author:         rowText(row, sel.Author),
				Category:       rowText(row, sel.Category),
				Status:         rowText(row, sel.Status),
				SupporterCount: fetch.FirstInt(rowText(row, sel.SupporterCount)),
				CommentCount:   fetch.FirstInt(rowText(row, sel.CommentCount)),
				VoteCount:      fetch.FirstInt(rowText(row, sel.VoteCount)),
			}

			if href, ok := row.Find(sel.Link).First().Attr("href"); ok {
				if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
					sum.URL = base.ResolveReference(ref).String()
				}
			}

			if sel.IDAttr != "" {
				sum.ExternalID, _ = row.Attr(sel.IDAttr)
			}
			if sum.ExternalID == "" && sum.URL != "" {
				if u, err := url.Parse(sum.URL); err == nil {
					sum.ExternalID = path.Base(u.Path)
				}
			}

			sums = append(sums, sum)
		})
		return sums, nil
	}
}

func rowText(row *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(row.Find(selector).First().Text())
}
