// Package structured extracts postings from machine-readable page data:
// RSS and Atom feeds, and schema.org JobPosting JSON-LD blocks embedded
// in HTML. Deterministic parsing only, meant to short-circuit the AI
// fallback whenever the source already publishes structured data.
package structured

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/dates"
	"github.com/postly/job-harvester/internal/scraper"
)

// Extractor maps structured page content to normalized postings.
type Extractor struct {
	clock  scraper.Clock
	logger *zap.Logger
}

// New builds an Extractor.
func New(clock scraper.Clock, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{clock: clock, logger: logger}
}

// Extract returns the postings found in page, or an empty slice when the
// page carries no structured data. An empty result is the signal to fall
// through to AI extraction, never an error.
func (e *Extractor) Extract(page scraper.RawPage, sourceID string) []scraper.JobPosting {
	switch page.Kind {
	case scraper.KindRSS:
		return e.extractFeed(page, sourceID)
	case scraper.KindHTML:
		return e.extractJSONLD(page, sourceID)
	default:
		return nil
	}
}

func (e *Extractor) extractFeed(page scraper.RawPage, sourceID string) []scraper.JobPosting {
	doc, err := xmlquery.Parse(bytes.NewReader(page.Body))
	if err != nil {
		e.logger.Warn("feed parse failed", zap.String("url", page.URL), zap.Error(err))
		return nil
	}

	nodes := xmlquery.Find(doc, "//item")
	if len(nodes) == 0 {
		nodes = xmlquery.Find(doc, "//*[local-name()='entry']")
	}

	now := e.clock.Now()
	postings := make([]scraper.JobPosting, 0, len(nodes))
	for _, node := range nodes {
		link := childText(node, "link")
		if link == "" {
			// Atom links live in the href attribute.
			if ln := xmlquery.FindOne(node, "*[local-name()='link']"); ln != nil {
				link = ln.SelectAttr("href")
			}
		}
		link = resolveURL(page.URL, link)
		if link == "" {
			continue
		}

		title, company := splitFeedTitle(childText(node, "title"))
		if title == "" {
			continue
		}
		if creator := childText(node, "creator"); company == "" && creator != "" {
			company = creator
		}
		if company == "" {
			company = "Unknown Company"
		}

		p := scraper.JobPosting{
			Title:       title,
			Company:     company,
			SourceURL:   link,
			Description: stripTags(childText(node, "description")),
			Source:      sourceID,
			ScrapedAt:   now,
		}
		pub := childText(node, "pubDate")
		if pub == "" {
			pub = childText(node, "published")
		}
		if pub == "" {
			pub = childText(node, "updated")
		}
		if ts, ok := dates.Resolve(pub, now); ok {
			p.PostedAt = &ts
		}
		p.TruncateDescription()
		postings = append(postings, p)
	}
	return postings
}

// splitFeedTitle handles the "Company: Job Title" convention common in
// job board feeds.
func splitFeedTitle(raw string) (title, company string) {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, ": "); idx > 0 && idx < 80 {
		return strings.TrimSpace(raw[idx+2:]), strings.TrimSpace(raw[:idx])
	}
	return raw, ""
}

// jsonLDPosting mirrors the schema.org JobPosting fields this pipeline
// cares about.
type jsonLDPosting struct {
	Type               any    `json:"@type"`
	Graph              []json.RawMessage `json:"@graph"`
	Title              string `json:"title"`
	URL                string `json:"url"`
	DatePosted         string `json:"datePosted"`
	EmploymentType     any    `json:"employmentType"`
	Description        string `json:"description"`
	Skills             any    `json:"skills"`
	HiringOrganization struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
	JobLocation any `json:"jobLocation"`
	BaseSalary  struct {
		Currency string `json:"currency"`
		Value    struct {
			MinValue json.Number `json:"minValue"`
			MaxValue json.Number `json:"maxValue"`
			Value    json.Number `json:"value"`
			UnitText string      `json:"unitText"`
		} `json:"value"`
	} `json:"baseSalary"`
}

func (e *Extractor) extractJSONLD(page scraper.RawPage, sourceID string) []scraper.JobPosting {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		e.logger.Warn("html parse failed", zap.String("url", page.URL), zap.Error(err))
		return nil
	}

	var postings []scraper.JobPosting
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		postings = append(postings, e.parseJSONLDBlock([]byte(s.Text()), page.URL, sourceID)...)
	})
	return postings
}

func (e *Extractor) parseJSONLDBlock(raw []byte, baseURL, sourceID string) []scraper.JobPosting {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	// A block may hold one object, an array, or an @graph container.
	var candidates []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &candidates); err != nil {
			return nil
		}
	} else {
		var single jsonLDPosting
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		if len(single.Graph) > 0 {
			candidates = single.Graph
		} else {
			candidates = []json.RawMessage{raw}
		}
	}

	now := e.clock.Now()
	var postings []scraper.JobPosting
	for _, c := range candidates {
		var obj jsonLDPosting
		if err := json.Unmarshal(c, &obj); err != nil {
			continue
		}
		if !isJobPostingType(obj.Type) {
			continue
		}
		p := scraper.JobPosting{
			Title:          strings.TrimSpace(obj.Title),
			Company:        strings.TrimSpace(obj.HiringOrganization.Name),
			Location:       locationString(obj.JobLocation),
			SourceURL:      resolveURL(baseURL, obj.URL),
			Salary:         salaryString(obj),
			EmploymentType: firstString(obj.EmploymentType),
			Skills:         stringList(obj.Skills),
			Description:    stripTags(obj.Description),
			Source:         sourceID,
			ScrapedAt:      now,
		}
		if p.Title == "" || p.SourceURL == "" {
			continue
		}
		if p.Company == "" {
			p.Company = "Unknown Company"
		}
		if ts, ok := dates.Resolve(obj.DatePosted, now); ok {
			p.PostedAt = &ts
		}
		p.TruncateDescription()
		postings = append(postings, p)
	}
	return postings
}

func isJobPostingType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "JobPosting")
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && strings.EqualFold(s, "JobPosting") {
				return true
			}
		}
	}
	return false
}

func locationString(loc any) string {
	switch v := loc.(type) {
	case map[string]any:
		if addr, ok := v["address"].(map[string]any); ok {
			parts := make([]string, 0, 3)
			for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
				if s, ok := addr[key].(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
		if name, ok := v["name"].(string); ok {
			return name
		}
	case []any:
		for _, entry := range v {
			if s := locationString(entry); s != "" {
				return s
			}
		}
	case string:
		return v
	}
	return ""
}

func salaryString(obj jsonLDPosting) string {
	val := obj.BaseSalary.Value
	currency := obj.BaseSalary.Currency
	var amount string
	switch {
	case val.MinValue != "" && val.MaxValue != "":
		amount = string(val.MinValue) + "-" + string(val.MaxValue)
	case val.Value != "":
		amount = string(val.Value)
	default:
		return ""
	}
	out := strings.TrimSpace(currency + " " + amount)
	if val.UnitText != "" {
		out += " per " + strings.ToLower(val.UnitText)
	}
	return out
}

func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, entry := range t {
			if s, ok := entry.(string); ok {
				return s
			}
		}
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, entry := range t {
			if s, ok := entry.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
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

func childText(node *xmlquery.Node, name string) string {
	if n := xmlquery.FindOne(node, "*[local-name()='"+name+"']"); n != nil {
		return strings.TrimSpace(n.InnerText())
	}
	return ""
}

func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}
