// Package scraper defines core types shared across subsystems.
package scraper

import (
	"context"
	"net/http"
	"time"
)

// ContentKind classifies a fetched response body.
type ContentKind string

// Content kinds detected by the fetch layer.
const (
	KindHTML ContentKind = "html"
	KindRSS  ContentKind = "rss"
	KindJSON ContentKind = "json"
)

// MaxDescriptionLen bounds the free-text description stored per posting.
const MaxDescriptionLen = 5000

// RawPage is the unparsed response body for one page request. It is
// transient: the extraction step consumes it and discards it.
type RawPage struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Kind       ContentKind
	Strategy   string
	Duration   time.Duration
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL string
	// ReadySelector is a CSS selector the headless strategy waits for
	// before capturing the DOM. Optional.
	ReadySelector string
	Headers       http.Header
}

// JobPosting is the canonical normalized record produced by extraction.
// SourceURL is the natural key: two postings with the same SourceURL are
// the same posting, last write wins for mutable fields.
type JobPosting struct {
	Title          string     `json:"title"`
	Company        string     `json:"company"`
	Location       string     `json:"location,omitempty"`
	SourceURL      string     `json:"source_url"`
	Salary         string     `json:"salary,omitempty"`
	EmploymentType string     `json:"employment_type,omitempty"`
	Skills         []string   `json:"skills,omitempty"`
	Description    string     `json:"description,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	Source         string     `json:"source"`
	ScrapedAt      time.Time  `json:"scraped_at"`
}

// TruncateDescription clamps the description to MaxDescriptionLen runes.
func (p *JobPosting) TruncateDescription() {
	if len(p.Description) <= MaxDescriptionLen {
		return
	}
	runes := []rune(p.Description)
	if len(runes) > MaxDescriptionLen {
		p.Description = string(runes[:MaxDescriptionLen])
	}
}

// SearchParams echoes the query that produced a scrape session. Opaque to
// the pipeline; persisted with the checkpoint so resumed runs can be
// sanity-checked against the query that started them.
type SearchParams map[string]string

// RunStats tracks per-run record outcomes. Derived, never persisted
// beyond the run summary.
type RunStats struct {
	Saved        int `json:"saved"`
	Updated      int `json:"updated"`
	Skipped      int `json:"skipped"`
	Errored      int `json:"errored"`
	PagesFetched int `json:"pages_fetched"`
	EmptyPages   int `json:"empty_pages"`
}

// Total returns the number of records that made it to storage.
func (s RunStats) Total() int {
	return s.Saved + s.Updated
}

// Clock abstracts time.Now so TTL, rate-limit and date logic are testable.
type Clock interface {
	Now() time.Time
}

// Fetcher retrieves a single page. Implementations exist per strategy
// (direct HTTP, headless render, shell fetch) plus the chain that orders
// them by cost.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (RawPage, error)
}

// Generator is the AI text-extraction collaborator: an unreliable,
// rate-unlimited black box that turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// JobStore is the persistence collaborator. Upsert keys on SourceURL and
// reports whether the write updated an existing row.
type JobStore interface {
	Upsert(ctx context.Context, posting JobPosting) (wasUpdate bool, err error)
	Close()
}

// Source is one scrape target: it knows how to fetch a numbered listing
// page and how to turn the raw page into normalized postings. Site logic
// lives entirely behind this interface; the orchestrator only paginates.
type Source interface {
	ID() string
	FetchPage(ctx context.Context, page int) (RawPage, error)
	Extract(ctx context.Context, page RawPage) ([]JobPosting, error)
}
