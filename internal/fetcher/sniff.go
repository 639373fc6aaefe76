package fetcher

import (
	"bytes"
	"strings"

	"github.com/postly/job-harvester/internal/scraper"
)

// SniffKind classifies a page body as HTML, a syndication feed, or JSON.
// The Content-Type header wins when present; otherwise the body prefix
// decides.
func SniffKind(page scraper.RawPage) scraper.ContentKind {
	ct := strings.ToLower(page.Headers.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "json"):
		return scraper.KindJSON
	case strings.Contains(ct, "rss"), strings.Contains(ct, "atom"), strings.Contains(ct, "xml"):
		if looksLikeFeed(page.Body) {
			return scraper.KindRSS
		}
	case strings.Contains(ct, "html"):
		return scraper.KindHTML
	}

	trimmed := bytes.TrimLeft(page.Body, " \t\r\n\uFEFF")
	switch {
	case len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['):
		return scraper.KindJSON
	case looksLikeFeed(trimmed):
		return scraper.KindRSS
	default:
		return scraper.KindHTML
	}
}

func looksLikeFeed(body []byte) bool {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	lower := bytes.ToLower(head)
	return bytes.Contains(lower, []byte("<rss")) || bytes.Contains(lower, []byte("<feed"))
}
