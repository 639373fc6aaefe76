// Package harvest drives the fetch-and-save loop: pagination, bounded
// concurrency, per-record screening, and termination classification.
package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/archive"
	"github.com/postly/job-harvester/internal/dates"
	"github.com/postly/job-harvester/internal/metrics"
	"github.com/postly/job-harvester/internal/output"
	"github.com/postly/job-harvester/internal/scraper"
	"github.com/postly/job-harvester/internal/state"
)

// Outcome classifies how a run ended.
type Outcome string

// Run outcomes.
const (
	OutcomeComplete    Outcome = "complete"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeFailed      Outcome = "failed"
)

// Config bounds one run.
type Config struct {
	Concurrency    int
	MaxPages       int
	MaxEmptyPages  int
	MaxAge         time.Duration
	MinDescription int
	// Resume continues from an incomplete checkpoint when one exists.
	Resume       bool
	SearchParams scraper.SearchParams
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 5000
	}
	if c.MaxEmptyPages <= 0 {
		c.MaxEmptyPages = 10
	}
	if c.MaxAge <= 0 {
		c.MaxAge = dates.MaxAge
	}
	if c.MinDescription <= 0 {
		c.MinDescription = 100
	}
	return c
}

// Report summarizes a finished run.
type Report struct {
	Outcome   Outcome             `json:"outcome"`
	Stats     scraper.RunStats    `json:"stats"`
	State     state.ScrapingState `json:"state"`
	Duration  time.Duration       `json:"duration"`
	Hints     []string            `json:"hints,omitempty"`
	FatalErr  string              `json:"fatal_error,omitempty"`
	StartPage int                 `json:"start_page"`
}

// Harvester owns one source's fetch-and-save loop.
type Harvester struct {
	cfg     Config
	source  scraper.Source
	store   scraper.JobStore
	writer  *output.Writer
	state   *state.Manager
	archive *archive.Archive
	clock   scraper.Clock
	logger  *zap.Logger
}

// New wires a Harvester. archive may be nil.
func New(
	cfg Config,
	source scraper.Source,
	store scraper.JobStore,
	writer *output.Writer,
	stateMgr *state.Manager,
	pageArchive *archive.Archive,
	clock scraper.Clock,
	logger *zap.Logger,
) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Harvester{
		cfg:     cfg.withDefaults(),
		source:  source,
		store:   store,
		writer:  writer,
		state:   stateMgr,
		archive: pageArchive,
		clock:   clock,
		logger:  logger,
	}
}

// pageResult carries one page's outcome from a fetch worker to the
// collector.
type pageResult struct {
	page     int
	postings []scraper.JobPosting
	err      error
}

// Run executes the loop until a termination condition fires. The
// returned error is non-nil only for setup failures and fatal
// (non-recoverable) page errors; Interrupted and Complete runs return a
// Report and nil.
func (h *Harvester) Run(ctx context.Context) (*Report, error) {
	started := h.clock.Now()

	resuming := h.cfg.Resume && h.state.CanResume()
	if !resuming {
		// Fresh start: rewind pagination but keep accumulated totals.
		// Clearing those is reserved for an explicit reset.
		h.state.StartFresh()
	}
	h.state.Begin(uuid.NewString(), h.cfg.SearchParams)

	startPage := 0
	if resuming {
		startPage = h.state.Snapshot().LastProcessedPage + 1
		h.logger.Info("resuming harvest",
			zap.String("source", h.source.ID()),
			zap.Int("start_page", startPage),
			zap.Int("records_so_far", h.state.Snapshot().TotalRecordsCollected))
	} else {
		h.logger.Info("starting fresh harvest", zap.String("source", h.source.ID()))
	}

	if err := h.writer.Init(); err != nil {
		return nil, fmt.Errorf("init writer: %w", err)
	}
	defer func() {
		if err := h.writer.Finalize(); err != nil {
			h.logger.Warn("finalize writer", zap.Error(err))
		}
	}()

	run := &runState{
		h:         h,
		resuming:  resuming,
		startPage: startPage,
		stop:      make(chan struct{}),
	}
	run.dispatchAndCollect(ctx)

	report := run.report(ctx, started)
	h.logSummary(report)
	if report.Outcome == OutcomeFailed && run.fatalErr != nil {
		return report, run.fatalErr
	}
	return report, nil
}

// runState holds the mutable loop state. Worker goroutines only write
// to the results channel; everything else is collector-owned.
type runState struct {
	h         *Harvester
	resuming  bool
	startPage int

	stop     chan struct{}
	stopOnce sync.Once
	stopped  bool

	stats            scraper.RunStats
	consecutiveEmpty int
	emptyFirstPage   bool
	ceilingReached   bool
	thresholdReached bool
	fatalErr         error
}

func (r *runState) signalStop() {
	r.stopOnce.Do(func() {
		r.stopped = true
		close(r.stop)
	})
}

func (r *runState) dispatchAndCollect(ctx context.Context) {
	h := r.h
	results := make(chan pageResult)
	sem := make(chan struct{}, h.cfg.Concurrency)
	var wg sync.WaitGroup

	// Dispatcher: pages are requested in increasing order, bounded by
	// the semaphore. It stops launching on cancellation or when the
	// collector signals a termination condition; in-flight pages finish.
	go func() {
		defer func() {
			wg.Wait()
			close(results)
		}()
		for page := r.startPage; page < h.cfg.MaxPages; page++ {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(page int) {
				defer wg.Done()
				defer func() { <-sem }()
				res := h.fetchPage(ctx, page)
				select {
				case results <- res:
				case <-ctx.Done():
				}
			}(page)
		}
		r.ceilingReached = true
	}()

	// Collector: results arrive in completion order but are applied in
	// page order, so a checkpoint for page N implies pages < N are
	// already written. Once a page triggers termination, results for
	// pages already in flight beyond it are drained but not applied.
	pending := map[int]pageResult{}
	next := r.startPage
	for res := range results {
		if r.stopped {
			continue
		}
		pending[res.page] = res
		for {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			r.applyPage(ctx, cur)
			next++
			if r.stopped {
				break
			}
		}
	}
}

// applyPage folds one page's result into the run, checkpointing on
// success and driving the termination counters.
func (r *runState) applyPage(ctx context.Context, res pageResult) {
	h := r.h
	r.stats.PagesFetched++

	if res.err != nil {
		if !scraper.Recoverable(res.err) {
			r.fatalErr = res.err
			r.signalStop()
			return
		}
		h.logger.Warn("page failed, counting as empty",
			zap.Int("page", res.page),
			zap.String("class", scraper.Classify(res.err)),
			zap.Error(res.err))
		r.stats.Errored++
		r.noteEmptyPage(res.page)
		return
	}

	batch := make([]scraper.JobPosting, 0, len(res.postings))
	for _, posting := range res.postings {
		disposition, rec := h.persistRecord(ctx, posting)
		switch disposition {
		case "saved":
			r.stats.Saved++
			batch = append(batch, rec)
		case "updated":
			r.stats.Updated++
			batch = append(batch, rec)
		case "skipped":
			r.stats.Skipped++
		default:
			r.stats.Errored++
		}
		metrics.ObserveRecord(disposition)
	}

	if len(batch) == 0 {
		r.noteEmptyPage(res.page)
		return
	}

	// The page is the writer's unit of atomicity: one append per page,
	// flushed before the checkpoint advances past it.
	if err := h.writer.Append(batch); err != nil {
		h.logger.Warn("writer append failed",
			zap.Int("page", res.page),
			zap.Error(err))
	}

	saved := len(batch)
	r.consecutiveEmpty = 0
	h.state.UpdatePage(res.page, saved)
	h.logger.Info("page saved",
		zap.Int("page", res.page),
		zap.Int("records", saved),
		zap.Int("skipped", r.stats.Skipped))
}

func (r *runState) noteEmptyPage(page int) {
	h := r.h
	r.stats.EmptyPages++
	r.consecutiveEmpty++

	// A zero-result first page on a fresh run means the query has no
	// data at all; the checkpoint is left untouched.
	if !r.resuming && page == r.startPage {
		r.emptyFirstPage = true
		r.signalStop()
		return
	}
	if r.consecutiveEmpty >= h.cfg.MaxEmptyPages {
		r.thresholdReached = true
		r.signalStop()
	}
}

// fetchPage runs in a worker goroutine: fetch, archive, extract.
func (h *Harvester) fetchPage(ctx context.Context, page int) pageResult {
	metrics.IncInflight()
	defer metrics.DecInflight()

	raw, err := h.source.FetchPage(ctx, page)
	if err != nil {
		return pageResult{page: page, err: err}
	}
	if h.archive.Enabled() {
		if _, err := h.archive.SavePage(h.source.ID(), page, raw); err != nil {
			h.logger.Warn("archive page", zap.Int("page", page), zap.Error(err))
		}
	}
	postings, err := h.source.Extract(ctx, raw)
	if err != nil {
		return pageResult{page: page, err: err}
	}
	return pageResult{page: page, postings: postings}
}

// persistRecord screens one posting and writes it through the store.
// The enriched posting comes back for the page's writer batch.
func (h *Harvester) persistRecord(ctx context.Context, posting scraper.JobPosting) (string, scraper.JobPosting) {
	now := h.clock.Now()
	enrich(&posting)

	if reason, ok := screen(posting, now, h.cfg.MaxAge, h.cfg.MinDescription); !ok {
		h.logger.Debug("record skipped",
			zap.String("title", posting.Title),
			zap.String("url", posting.SourceURL),
			zap.String("reason", reason))
		return "skipped", posting
	}

	wasUpdate, err := h.store.Upsert(ctx, posting)
	if err != nil {
		h.logger.Warn("store upsert failed",
			zap.String("url", posting.SourceURL),
			zap.Error(err))
		return "errored", posting
	}
	if wasUpdate {
		return "updated", posting
	}
	return "saved", posting
}

func (r *runState) report(ctx context.Context, started time.Time) *Report {
	h := r.h
	outcome := OutcomeComplete
	switch {
	case r.fatalErr != nil:
		outcome = OutcomeFailed
	case ctx.Err() != nil:
		outcome = OutcomeInterrupted
	case r.thresholdReached, r.ceilingReached:
		h.state.MarkComplete()
	case r.emptyFirstPage:
		// No data for this query. Not an error, but also not a
		// checkpointable completion: a later run should start fresh.
	}

	rep := &Report{
		Outcome:   outcome,
		Stats:     r.stats,
		State:     h.state.Snapshot(),
		Duration:  h.clock.Now().Sub(started),
		StartPage: r.startPage,
		Hints:     r.hints(outcome),
	}
	if r.fatalErr != nil {
		rep.FatalErr = r.fatalErr.Error()
	}
	return rep
}

func (r *runState) hints(outcome Outcome) []string {
	var hints []string
	if r.emptyFirstPage {
		hints = append(hints, "first page returned no records: check the base URL and query parameters")
	}
	if r.stats.Errored > 0 && r.stats.Total() == 0 {
		hints = append(hints, "every page errored: the site may be blocking all fetch strategies")
	}
	if r.stats.Skipped > 0 && r.stats.Total() == 0 {
		hints = append(hints, "all records were screened out: postings may be stale or missing dates")
	}
	if outcome == OutcomeInterrupted {
		hints = append(hints, "run interrupted: re-run with --resume to continue from the checkpoint")
	}
	return hints
}

func (h *Harvester) logSummary(rep *Report) {
	h.logger.Info("harvest finished",
		zap.String("outcome", string(rep.Outcome)),
		zap.Int("saved", rep.Stats.Saved),
		zap.Int("updated", rep.Stats.Updated),
		zap.Int("skipped", rep.Stats.Skipped),
		zap.Int("errored", rep.Stats.Errored),
		zap.Int("pages", rep.Stats.PagesFetched),
		zap.Int("last_page", rep.State.LastProcessedPage),
		zap.Bool("complete", rep.State.IsComplete),
		zap.Duration("duration", rep.Duration))
	for _, hint := range rep.Hints {
		h.logger.Info("hint", zap.String("hint", hint))
	}
}
