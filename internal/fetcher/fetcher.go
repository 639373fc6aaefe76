// Package fetcher escalates page retrieval through progressively heavier
// strategies until one returns usable content.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/metrics"
	"github.com/postly/job-harvester/internal/scraper"
)

// Strategy is a single way of retrieving a page.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, req scraper.FetchRequest) (scraper.RawPage, error)
}

// Chain tries each strategy in order, promoting to the next on transport
// errors and on soft blocks. A run where every strategy was blocked or
// failed is a fetch failure: blocked interstitials are never returned as
// content.
type Chain struct {
	strategies []Strategy
	detector   *BlockDetector
	logger     *zap.Logger
}

// NewChain builds a chain over the given strategies. Order matters:
// cheapest first.
func NewChain(detector *BlockDetector, logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Chain{strategies: strategies, detector: detector, logger: logger}
}

// Fetch runs the escalation. The returned page has Kind sniffed and
// Strategy stamped with the strategy that produced it.
func (c *Chain) Fetch(ctx context.Context, req scraper.FetchRequest) (scraper.RawPage, error) {
	var (
		lastErr    error
		blocked    bool
		lastStatus int
	)
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return scraper.RawPage{}, fmt.Errorf("fetch canceled: %w", err)
		}
		page, err := s.Fetch(ctx, req)
		if err != nil {
			metrics.ObservePage(s.Name(), "error", page.Duration)
			c.logger.Warn("fetch strategy failed",
				zap.String("strategy", s.Name()),
				zap.String("url", req.URL),
				zap.Error(err))
			lastErr = err
			continue
		}
		page.Strategy = s.Name()
		page.Kind = SniffKind(page)
		if c.detector.Blocked(page) {
			metrics.ObservePage(s.Name(), "blocked", page.Duration)
			metrics.ObserveSoftBlock(s.Name())
			c.logger.Info("soft block detected, escalating",
				zap.String("strategy", s.Name()),
				zap.String("url", req.URL),
				zap.Int("status", page.StatusCode),
				zap.Int("body_bytes", len(page.Body)))
			blocked = true
			lastStatus = page.StatusCode
			continue
		}
		metrics.ObservePage(s.Name(), "ok", page.Duration)
		return page, nil
	}
	if blocked {
		return scraper.RawPage{}, &scraper.NetworkError{
			Op:     "fetch",
			URL:    req.URL,
			Status: lastStatus,
			Err:    errors.New("all strategies soft-blocked"),
		}
	}
	if lastErr != nil {
		return scraper.RawPage{}, &scraper.NetworkError{Op: "fetch", URL: req.URL, Err: lastErr}
	}
	return scraper.RawPage{}, errors.New("no fetch strategies configured")
}
