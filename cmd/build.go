package cmd

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/api"
	"github.com/postly/job-harvester/internal/archive"
	"github.com/postly/job-harvester/internal/cache"
	"github.com/postly/job-harvester/internal/config"
	"github.com/postly/job-harvester/internal/extract/ai"
	"github.com/postly/job-harvester/internal/extract/structured"
	"github.com/postly/job-harvester/internal/fetcher"
	"github.com/postly/job-harvester/internal/fetcher/direct"
	"github.com/postly/job-harvester/internal/fetcher/headless"
	"github.com/postly/job-harvester/internal/fetcher/shell"
	"github.com/postly/job-harvester/internal/harvest"
	"github.com/postly/job-harvester/internal/llm"
	"github.com/postly/job-harvester/internal/output"
	"github.com/postly/job-harvester/internal/policy/ratelimit"
	"github.com/postly/job-harvester/internal/retry"
	"github.com/postly/job-harvester/internal/scraper"
	"github.com/postly/job-harvester/internal/sources"
	"github.com/postly/job-harvester/internal/state"
	"github.com/postly/job-harvester/internal/storage/memory"
	"github.com/postly/job-harvester/internal/storage/postgres"
)

// App holds the wired pipeline and everything that needs closing.
type App struct {
	Harvester *harvest.Harvester

	store     scraper.JobStore
	pageCache *cache.Cache[scraper.RawPage]
	headless  *headless.Fetcher
	server    *http.Server
	logger    *zap.Logger
}

// Close releases pipeline resources in dependency order.
func (a *App) Close() {
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pageCache != nil {
		a.pageCache.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func buildApp(ctx context.Context, cfg config.Config, stateMgr *state.Manager, clock scraper.Clock, logger *zap.Logger) (*App, error) {
	app := &App{logger: logger}

	chain, err := buildChain(cfg, app, logger)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      cfg.RateLimit.Window(),
		Floor:       cfg.RateLimit.Floor(),
		Ceiling:     cfg.RateLimit.Ceiling(),
	}, clock)

	app.pageCache = cache.New[scraper.RawPage](cache.Config{
		MaxSize:    cfg.Cache.MaxSize,
		DefaultTTL: cfg.Cache.DefaultTTL(),
	}, clock)

	var fallback *ai.Extractor
	if cfg.LLM.Endpoint != "" {
		generator := llm.New(llm.Config{
			Endpoint: cfg.LLM.Endpoint,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
			Timeout:  time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		})
		retrying := &retryingGenerator{
			inner: generator,
			cfg: retry.Config{
				MaxRetries: cfg.Retry.MaxRetries,
				BaseDelay:  cfg.Retry.BaseDelay(),
				MaxDelay:   cfg.Retry.MaxDelay(),
			},
			logger: logger,
		}
		fallback = ai.New(retrying, clock, logger, cfg.LLM.CharBudget)
	} else {
		logger.Info("llm.endpoint not set, AI extraction fallback disabled")
	}

	board, err := sources.NewBoard(sources.BoardConfig{
		ID:            cfg.Harvest.Source,
		BaseURL:       cfg.Harvest.BaseURL,
		PageParam:     cfg.Harvest.PageParam,
		Query:         cfg.Harvest.Query,
		ReadySelector: cfg.Harvest.ReadySelector,
		CacheTTL:      cfg.Cache.DefaultTTL(),
		Retry: retry.Config{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay(),
			MaxDelay:   cfg.Retry.MaxDelay(),
		},
	}, chain, limiter, app.pageCache, structured.New(clock, logger), fallback, logger)
	if err != nil {
		return nil, fmt.Errorf("build source: %w", err)
	}

	registry := sources.NewRegistry()
	if err := registry.Register(board); err != nil {
		return nil, err
	}
	source, err := registry.Get(cfg.Harvest.Source)
	if err != nil {
		return nil, err
	}

	if cfg.DB.Enabled {
		store, err := postgres.NewJobStore(ctx, postgres.JobStoreConfig{DSN: cfg.DB.DSN})
		if err != nil {
			return nil, fmt.Errorf("build job store: %w", err)
		}
		app.store = store
	} else {
		app.store = memory.NewJobStore()
	}

	writer := output.New(
		filepath.Join(cfg.Output.Dir, "jobs.csv"),
		filepath.Join(cfg.Output.Dir, "jobs.json"),
		cfg.Harvest.Source, "scrape",
		clock, logger)

	var pageArchive *archive.Archive
	if cfg.Archive.Enabled {
		pageArchive, err = archive.New(archive.Config{BaseDir: cfg.Archive.Dir, Enabled: true})
		if err != nil {
			return nil, fmt.Errorf("build archive: %w", err)
		}
	}

	app.Harvester = harvest.New(harvest.Config{
		Concurrency:    cfg.Harvest.Concurrency,
		MaxPages:       cfg.Harvest.MaxPages,
		MaxEmptyPages:  cfg.Harvest.MaxEmptyPages,
		MaxAge:         time.Duration(cfg.Harvest.MaxAgeDays) * 24 * time.Hour,
		MinDescription: cfg.Harvest.MinDescription,
		Resume:         flagResume,
		SearchParams:   cfg.Harvest.Query,
	}, source, app.store, writer, stateMgr, pageArchive, clock, logger)

	if cfg.Server.Enabled {
		app.server = startServer(cfg, stateMgr, app.pageCache, clock, logger)
	}

	return app, nil
}

func buildChain(cfg config.Config, app *App, logger *zap.Logger) (*fetcher.Chain, error) {
	strategies := []fetcher.Strategy{
		direct.New(direct.Config{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   time.Duration(cfg.Fetch.DirectTimeoutSec) * time.Second,
		}),
	}
	if cfg.Fetch.HeadlessEnabled {
		hf, err := headless.New(headless.Config{
			MaxParallel:       cfg.Fetch.HeadlessParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Fetch.BrowserTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("build headless fetcher: %w", err)
		}
		app.headless = hf
		strategies = append(strategies, hf)
	}
	if cfg.Fetch.ShellEnabled {
		strategies = append(strategies, shell.New(shell.Config{
			Binary:    cfg.Fetch.CurlPath,
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   time.Duration(cfg.Fetch.ShellTimeoutSec) * time.Second,
		}))
	}
	detector := fetcher.NewBlockDetector(cfg.Fetch.BlockSizeFloor)
	return fetcher.NewChain(detector, logger, strategies...), nil
}

// retryingGenerator retries transient generation failures before the
// extraction layer sees them.
type retryingGenerator struct {
	inner  scraper.Generator
	cfg    retry.Config
	logger *zap.Logger
}

func (g *retryingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return retry.Do(ctx, g.cfg, g.logger, "llm generate",
		func(ctx context.Context) (string, error) {
			return g.inner.Generate(ctx, prompt)
		})
}

func startServer(cfg config.Config, stateMgr *state.Manager, pageCache *cache.Cache[scraper.RawPage], clock scraper.Clock, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(stateMgr, pageCache, clock, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("status server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server failed", zap.Error(err))
		}
	}()
	return srv
}
