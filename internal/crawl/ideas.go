package crawl

import (
	"context"
	"fmt"

	"github.com/mbeckner/civicrawl/internal/domain"
	"github.com/mbeckner/civicrawl/internal/fetch"
	"github.com/mbeckner/civicrawl/internal/logger"
	"github.com/mbeckner/civicrawl/internal/store"
)

type ideaRecord struct{ *domain.Idea }

func (r ideaRecord) ExternalKey() string { return r.ExternalID }

type ideaSink struct {
	repo *store.IdeaRepository
}

func (s ideaSink) Persist(ctx context.Context, rec Record) (store.UpsertResult, error) {
	ir, ok := rec.(ideaRecord)
	if !ok {
		return store.UpsertResult{}, fmt.Errorf("unexpected record type %T", rec)
	}
	return s.repo.Upsert(ctx, ir.Idea)
}

// NewIdeasSource configures the citizen-ideas crawler. The ideas section
// renders server side but hides vote counts behind the detail page, so
// every item gets a detail fetch with a fixed selector table.
func NewIdeasSource(
	loader fetch.PageLoader,
	repo *store.IdeaRepository,
	baseURL string,
	log logger.Interface,
) Source {
	extractor := fetch.NewSelectorExtractor(fetch.Selectors{
		Description:    ".idea-detail .description",
		Author:         ".idea-detail .author-name",
		Category:       ".idea-detail .category",
		Status:         ".idea-detail .status-badge",
		SupporterCount: ".idea-detail .supporter-count",
		CommentCount:   ".idea-detail .comment-count",
	})

	return Source{
		Key: domain.ModuleIdeas,
		Nav: NewPagedNavigator(
			loader,
			".idea-list",
			pageURL(baseURL),
			ParseListingWith(baseURL, ListingSelectors{
				Row:            ".idea-list .idea-card",
				Title:          "h3.idea-title",
				Link:           "a.idea-link",
				IDAttr:         "data-idea-id",
				Excerpt:        ".idea-excerpt",
				Author:         ".idea-author",
				Category:       ".idea-category",
				Status:         ".idea-status",
				SupporterCount: ".supporter-count",
				CommentCount:   ".comment-count",
			}),
		),
		Details: fetch.NewDetailFetcher(loader, extractor, ".idea-detail", log),
		Build: func(sum Summary, det *fetch.DetailFields) Record {
			idea := &domain.Idea{
				ExternalID:     sum.ExternalID,
				Title:          sum.Title,
				URL:            sum.URL,
				Description:    sum.Excerpt,
				Author:         sum.Author,
				Category:       sum.Category,
				Status:         sum.Status,
				SupporterCount: sum.SupporterCount,
				CommentCount:   sum.CommentCount,
			}
			if det != nil {
				idea.Description = pick(det.Description, idea.Description)
				idea.Author = pick(det.Author, idea.Author)
				idea.Category = pick(det.Category, idea.Category)
				idea.Status = pick(det.Status, idea.Status)
				idea.SupporterCount = pickCount(det.SupporterCount, idea.SupporterCount)
				idea.CommentCount = pickCount(det.CommentCount, idea.CommentCount)
				idea.DetailScraped = det.DetailScraped
			}
			return ideaRecord{idea}
		},
		Sink: ideaSink{repo: repo},
	}
}
