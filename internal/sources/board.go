// Package sources implements scrape targets behind the scraper.Source
// interface and a registry to look them up by id.
package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/cache"
	"github.com/postly/job-harvester/internal/extract/ai"
	"github.com/postly/job-harvester/internal/extract/structured"
	"github.com/postly/job-harvester/internal/policy/ratelimit"
	"github.com/postly/job-harvester/internal/retry"
	"github.com/postly/job-harvester/internal/scraper"
)

// BoardConfig describes one paginated job board.
type BoardConfig struct {
	ID            string
	BaseURL       string
	PageParam     string
	Query         map[string]string
	ReadySelector string
	CacheTTL      time.Duration
	Retry         retry.Config
}

// Board is a generic paginated listing source. Page fetches go through
// the rate limiter, the fetch cache, retry, and the strategy chain;
// extraction prefers structured data and falls back to AI.
type Board struct {
	cfg        BoardConfig
	fetcher    scraper.Fetcher
	limiter    *ratelimit.Limiter
	pageCache  *cache.Cache[scraper.RawPage]
	structured *structured.Extractor
	fallback   *ai.Extractor
	logger     *zap.Logger
}

// NewBoard wires a Board. pageCache and limiter may be shared across
// sources; fallback may be nil to disable AI extraction.
func NewBoard(
	cfg BoardConfig,
	fetcher scraper.Fetcher,
	limiter *ratelimit.Limiter,
	pageCache *cache.Cache[scraper.RawPage],
	structuredEx *structured.Extractor,
	fallback *ai.Extractor,
	logger *zap.Logger,
) (*Board, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("source id is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.PageParam == "" {
		cfg.PageParam = "page"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{
		cfg:        cfg,
		fetcher:    fetcher,
		limiter:    limiter,
		pageCache:  pageCache,
		structured: structuredEx,
		fallback:   fallback,
		logger:     logger,
	}, nil
}

// ID returns the source identifier.
func (b *Board) ID() string { return b.cfg.ID }

// PageURL builds the listing URL for a zero-based page number.
func (b *Board) PageURL(page int) (string, error) {
	u, err := url.Parse(b.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	for k, v := range b.cfg.Query {
		q.Set(k, v)
	}
	q.Set(b.cfg.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchPage retrieves one listing page. Cached pages bypass the rate
// limiter entirely.
func (b *Board) FetchPage(ctx context.Context, page int) (scraper.RawPage, error) {
	pageURL, err := b.PageURL(page)
	if err != nil {
		return scraper.RawPage{}, err
	}

	if b.pageCache != nil {
		if cached, ok := b.pageCache.Get(pageURL); ok {
			return cached, nil
		}
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return scraper.RawPage{}, err
		}
	}

	req := scraper.FetchRequest{URL: pageURL, ReadySelector: b.cfg.ReadySelector}
	raw, err := retry.Do(ctx, b.cfg.Retry, b.logger, "fetch "+pageURL,
		func(ctx context.Context) (scraper.RawPage, error) {
			return b.fetcher.Fetch(ctx, req)
		})
	if err != nil {
		return scraper.RawPage{}, err
	}

	if b.pageCache != nil {
		b.pageCache.Set(pageURL, raw, b.cfg.CacheTTL)
	}
	return raw, nil
}

// Extract turns a raw page into postings, structured data first.
func (b *Board) Extract(ctx context.Context, page scraper.RawPage) ([]scraper.JobPosting, error) {
	if b.structured != nil {
		if postings := b.structured.Extract(page, b.cfg.ID); len(postings) > 0 {
			return postings, nil
		}
	}
	if b.fallback == nil {
		return nil, nil
	}
	postings, err := b.fallback.Extract(ctx, page, b.cfg.ID)
	if err != nil {
		return nil, err
	}
	return postings, nil
}
