package fetch

import (
	"context"
	"time"

	"github.com/mbeckner/civicrawl/internal/browser"
	"github.com/mbeckner/civicrawl/internal/logger"
)

// PageFetcher loads a URL in an isolated browser page, waits for the
// source's anchor selector, and returns the rendered HTML. Each fetch
// gets its own page so a wedged render cannot poison later fetches.
type PageFetcher struct {
	browser   *browser.Manager
	logger    logger.Interface
	retries   uint64
	retryUnit time.Duration
}

// NewPageFetcher creates a fetcher on top of the browser manager.
func NewPageFetcher(mgr *browser.Manager, log logger.Interface, retryUnit time.Duration) *PageFetcher {
	return &PageFetcher{
		browser:   mgr,
		logger:    log.WithComponent("fetch"),
		retries:   DefaultRetries,
		retryUnit: retryUnit,
	}
}

// FetchPage returns the rendered HTML of the URL. The anchor selector
// must appear before the HTML is read; an empty anchor skips the wait.
// Failed attempts are retried with increasing delay, and the page is
// closed on every path.
func (f *PageFetcher) FetchPage(ctx context.Context, pageURL, anchor string) (string, error) {
	var html string

	err := Retry(ctx, f.retries, f.retryUnit, func() error {
		page, err := f.browser.NewPage(ctx, pageURL)
		if err != nil {
			f.logger.Warn("page open failed", "url", pageURL, "error", err)
			return err
		}
		defer f.browser.ClosePage(page)

		if anchor != "" {
			if err := f.browser.WaitAnchor(ctx, page, anchor); err != nil {
				f.logger.Warn("anchor wait failed", "url", pageURL, "anchor", anchor, "error", err)
				return err
			}
		}

		html, err = f.browser.HTML(ctx, page)
		return err
	})
	if err != nil {
		return "", err
	}
	return html, nil
}
