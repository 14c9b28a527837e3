package crawl

import (
	"fmt"
	"strings"
)

// pageURL builds the ?page=N URL scheme shared by the portal's listings.
// Page 1 is the bare listing URL.
func pageURL(base string) func(int) string {
	return func(page int) string {
		if page <= 1 {
			return base
		}
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return fmt.Sprintf("%s%spage=%d", base, sep, page)
	}
}

// pick prefers the detail value over the listing value.
func pick(detail, listing string) string {
	if detail != "" {
		return detail
	}
	return listing
}

func pickCount(detail, listing int) int {
	if detail > 0 {
		return detail
	}
	return listing
}
