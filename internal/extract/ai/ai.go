// Package ai extracts postings from pages that carry no structured data
// by asking a text-generation backend to read the cleaned markup. The
// backend is treated as unreliable: any malformed response degrades to
// zero records.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/dates"
	"github.com/postly/job-harvester/internal/metrics"
	"github.com/postly/job-harvester/internal/scraper"
)

// DefaultCharBudget bounds the cleaned markup sent per request.
const DefaultCharBudget = 30000

// Extractor drives the AI fallback path.
type Extractor struct {
	generator  scraper.Generator
	clock      scraper.Clock
	logger     *zap.Logger
	charBudget int
}

// New builds an Extractor. charBudget <= 0 uses DefaultCharBudget.
func New(generator scraper.Generator, clock scraper.Clock, logger *zap.Logger, charBudget int) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if charBudget <= 0 {
		charBudget = DefaultCharBudget
	}
	metrics.Init()
	return &Extractor{generator: generator, clock: clock, logger: logger, charBudget: charBudget}
}

const promptTemplate = `Extract every genuine job posting from the following page content.
Ignore navigation menus, footers, cookie banners and advertisements.

Return ONLY a JSON array, no prose and no markdown fences. Each element:
{"title": string, "company": string, "location": string, "url": string,
 "salary": string, "employment_type": string, "skills": [string],
 "description": string, "posted_date": string}

Use "" for unknown string fields and [] for unknown skills.

Page content:
%s`

// Extract cleans the page, prompts the backend, and parses its reply.
// A backend error is returned; a malformed reply is not.
func (e *Extractor) Extract(ctx context.Context, page scraper.RawPage, sourceID string) ([]scraper.JobPosting, error) {
	cleaned := e.clean(page)
	if strings.TrimSpace(cleaned) == "" {
		metrics.ObserveAIExtraction("empty_input")
		return nil, nil
	}

	reply, err := e.generator.Generate(ctx, fmt.Sprintf(promptTemplate, cleaned))
	if err != nil {
		metrics.ObserveAIExtraction("backend_error")
		return nil, fmt.Errorf("ai extraction for %s: %w", page.URL, err)
	}

	items, ok := parseReply(reply)
	if !ok {
		metrics.ObserveAIExtraction("parse_failure")
		e.logger.Warn("unparsable ai reply, treating as zero records",
			zap.String("url", page.URL),
			zap.Int("reply_bytes", len(reply)))
		return nil, nil
	}

	metrics.ObserveAIExtraction("ok")
	return e.normalize(items, page.URL, sourceID), nil
}

// clean strips non-content markup and truncates to the char budget.
func (e *Extractor) clean(page scraper.RawPage) string {
	if page.Kind != scraper.KindHTML {
		return truncate(string(page.Body), e.charBudget)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page.Body)))
	if err != nil {
		return truncate(string(page.Body), e.charBudget)
	}
	doc.Find("script, style, nav, footer, header, noscript, iframe, svg").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	return truncate(text, e.charBudget)
}

func truncate(s string, budget int) string {
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget])
}

// aiItem is the shape the prompt asks the backend to emit.
type aiItem struct {
	Title          string   `json:"title"`
	Company        string   `json:"company"`
	Location       string   `json:"location"`
	URL            string   `json:"url"`
	Salary         string   `json:"salary"`
	EmploymentType string   `json:"employment_type"`
	Skills         []string `json:"skills"`
	Description    string   `json:"description"`
	PostedDate     string   `json:"posted_date"`
}

// parseReply locates the first balanced [...] span instead of trusting
// the reply to be bare JSON, and strips markdown fences first.
func parseReply(reply string) ([]aiItem, bool) {
	reply = stripFences(reply)
	span, ok := firstArraySpan(reply)
	if !ok {
		return nil, false
	}
	var items []aiItem
	if err := json.Unmarshal([]byte(span), &items); err != nil {
		return nil, false
	}
	return items, true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// firstArraySpan bracket-matches the first top-level JSON array,
// skipping brackets inside string literals.
func firstArraySpan(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func (e *Extractor) normalize(items []aiItem, baseURL, sourceID string) []scraper.JobPosting {
	now := e.clock.Now()
	postings := make([]scraper.JobPosting, 0, len(items))
	for _, item := range items {
		p := scraper.JobPosting{
			Title:          strings.TrimSpace(item.Title),
			Company:        strings.TrimSpace(item.Company),
			Location:       strings.TrimSpace(item.Location),
			SourceURL:      resolveURL(baseURL, item.URL),
			Salary:         strings.TrimSpace(item.Salary),
			EmploymentType: strings.TrimSpace(item.EmploymentType),
			Skills:         item.Skills,
			Description:    strings.TrimSpace(item.Description),
			Source:         sourceID,
			ScrapedAt:      now,
		}
		if p.Title == "" {
			p.Title = "Unknown Job"
		}
		if p.Company == "" {
			p.Company = "Unknown Company"
		}
		if p.SourceURL == "" {
			p.SourceURL = baseURL
		}
		if ts, ok := dates.Resolve(item.PostedDate, now); ok {
			p.PostedAt = &ts
		}
		p.TruncateDescription()
		postings = append(postings, p)
	}
	return postings
}

func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if refURL.IsAbs() {
		return refURL.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}
