package crawl

import (
	"context"
	"fmt"

	"github.com/mbeckner/civicrawl/internal/domain"
	"github.com/mbeckner/civicrawl/internal/fetch"
	"github.com/mbeckner/civicrawl/internal/logger"
	"github.com/mbeckner/civicrawl/internal/store"
)

type issueRecord struct{ *domain.IssueReport }

func (r issueRecord) ExternalKey() string { return r.ExternalID }

type issueSink struct {
	repo *store.IssueRepository
}

func (s issueSink) Persist(ctx context.Context, rec Record) (store.UpsertResult, error) {
	ir, ok := rec.(issueRecord)
	if !ok {
		return store.UpsertResult{}, fmt.Errorf("unexpected record type %T", rec)
	}
	return s.repo.Upsert(ctx, ir.IssueReport)
}

// NewIssuesSource configures the issue-reports crawler.
func NewIssuesSource(
	loader fetch.PageLoader,
	repo *store.IssueRepository,
	baseURL string,
	log logger.Interface,
) Source {
	extractor := fetch.NewSelectorExtractor(fetch.Selectors{
		Description: ".report-detail .description",
		Author:      ".report-detail .reporter",
		Category:    ".report-detail .category",
		Status:      ".report-detail .status",
		Location:    ".report-detail .location",
		VoteCount:   ".report-detail .vote-count",
	})

	return Source{
		Key: domain.ModuleIssues,
		Nav: NewPagedNavigator(
			loader,
			".report-list",
			pageURL(baseURL),
			ParseListingWith(baseURL, ListingSelectors{
				Row:       ".report-list .report-row",
				Title:     ".report-title",
				Link:      "a.report-link",
				IDAttr:    "data-report-id",
				Excerpt:   ".report-excerpt",
				Author:    ".report-reporter",
				Category:  ".report-category",
				Status:    ".report-status",
				VoteCount: ".vote-count",
			}),
		),
		Details: fetch.NewDetailFetcher(loader, extractor, ".report-detail", log),
		Build: func(sum Summary, det *fetch.DetailFields) Record {
			report := &domain.IssueReport{
				ExternalID:  sum.ExternalID,
				Title:       sum.Title,
				URL:         sum.URL,
				Description: sum.Excerpt,
				Reporter:    sum.Author,
				Category:    sum.Category,
				Status:      sum.Status,
				VoteCount:   sum.VoteCount,
			}
			if det != nil {
				report.Description = pick(det.Description, report.Description)
				report.Reporter = pick(det.Author, report.Reporter)
				report.Category = pick(det.Category, report.Category)
				report.Status = pick(det.Status, report.Status)
				report.Location = det.Location
				report.VoteCount = pickCount(det.VoteCount, report.VoteCount)
				report.DetailScraped = det.DetailScraped
			}
			return issueRecord{report}
		},
		Sink: issueSink{repo: repo},
	}
}
