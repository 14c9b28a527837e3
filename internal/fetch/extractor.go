package fetch

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageContent is a rendered detail page handed to extractors.
type PageContent struct {
	URL  string
	HTML string
	Text string
}

// DetailFields is the superset of fields a detail page can contribute.
// Sources map the subset they care about onto their record type.
type DetailFields struct {
	Description    string
	Author         string
	Category       string
	Status         string
	Location       string
	VenueName      string
	VenueAddress   string
	StartsAt       *time.Time
	EndsAt         *time.Time
	Price          string
	IsFree         bool
	ImageURL       string
	SupporterCount int
	CommentCount   int
	VoteCount      int
	// DetailScraped is false when the page could not be fetched or parsed
	// and the fields above are empty.
	DetailScraped bool
}

// Extractor pulls detail fields out of a rendered page.
type Extractor interface {
	Extract(ctx context.Context, page *PageContent) (*DetailFields, error)
}

// Selectors maps detail fields to CSS selectors for one source. Empty
// entries are skipped. Count selectors expect the first integer in the
// matched text; time selectors read the datetime attribute, falling back
// to the text with TimeLayout.
type Selectors struct {
	Description    string
	Author         string
	Category       string
	Status         string
	Location       string
	VenueName      string
	VenueAddress   string
	StartsAt       string
	EndsAt         string
	Price          string
	ImageURL       string
	SupporterCount string
	CommentCount   string
	VoteCount      string
	TimeLayout     string
}

// SelectorExtractor extracts detail fields with a fixed selector table.
type SelectorExtractor struct {
	selectors Selectors
}

// NewSelectorExtractor creates a selector-table extractor.
func NewSelectorExtractor(sel Selectors) *SelectorExtractor {
	if sel.TimeLayout == "" {
		sel.TimeLayout = time.RFC3339
	}
	return &SelectorExtractor{selectors: sel}
}

// Extract parses the page HTML against the selector table.
func (e *SelectorExtractor) Extract(_ context.Context, page *PageContent) (*DetailFields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, err
	}

	sel := e.selectors
	fields := &DetailFields{
		Description:    text(doc, sel.Description),
		Author:         text(doc, sel.Author),
		Category:       text(doc, sel.Category),
		Status:         text(doc, sel.Status),
		Location:       text(doc, sel.Location),
		VenueName:      text(doc, sel.VenueName),
		VenueAddress:   text(doc, sel.VenueAddress),
		Price:          text(doc, sel.Price),
		ImageURL:       attr(doc, sel.ImageURL, "src"),
		SupporterCount: count(doc, sel.SupporterCount),
		CommentCount:   count(doc, sel.CommentCount),
		VoteCount:      count(doc, sel.VoteCount),
		StartsAt:       e.timeAt(doc, sel.StartsAt),
		EndsAt:         e.timeAt(doc, sel.EndsAt),
		DetailScraped:  true,
	}
	fields.IsFree = isFreePrice(fields.Price)
	return fields, nil
}

func text(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func attr(doc *goquery.Document, selector, name string) string {
	if selector == "" {
		return ""
	}
	val, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(val)
}

func count(doc *goquery.Document, selector string) int {
	return FirstInt(text(doc, selector))
}

// FirstInt returns the first run of digits in s as an integer, tolerating
// labels like "123 supporters" or "Votes: 45".
func FirstInt(s string) int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	n, _ := strconv.Atoi(digits.String())
	return n
}

func (e *SelectorExtractor) timeAt(doc *goquery.Document, selector string) *time.Time {
	if selector == "" {
		return nil
	}
	node := doc.Find(selector).First()

	raw, ok := node.Attr("datetime")
	if !ok {
		raw = strings.TrimSpace(node.Text())
	}
	if raw == "" {
		return nil
	}

	t, err := time.Parse(e.selectors.TimeLayout, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func isFreePrice(price string) bool {
	p := strings.ToLower(strings.TrimSpace(price))
	return p == "free" || p == "0" || strings.HasPrefix(p, "0.00") || strings.HasPrefix(p, "0,00")
}
