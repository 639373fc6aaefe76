package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
harvest:
  source: remoteboard
  base_url: https://jobs.example.com/search
  ready_selector: ".job-card"
  concurrency: 4
  max_pages: 100
  max_empty_pages: 3
  query:
    keywords: golang
    location: remote
ratelimit:
  max_requests: 10
  window_ms: 30000
fetch:
  user_agent: harvester-test
  direct_timeout_seconds: 5
  headless_enabled: false
llm:
  endpoint: https://llm.example.com/v1/chat/completions
  api_key: secret
  model: test-model
db:
  enabled: true
  dsn: postgres://localhost/jobs
output:
  dir: /tmp/out
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Harvest.Source != "remoteboard" || cfg.Harvest.Concurrency != 4 {
		t.Fatalf("expected harvest overrides to apply: %+v", cfg.Harvest)
	}
	if cfg.Harvest.Query["keywords"] != "golang" {
		t.Fatalf("expected query map to be loaded: %+v", cfg.Harvest.Query)
	}
	if cfg.RateLimit.MaxRequests != 10 || cfg.RateLimit.Window() != 30*time.Second {
		t.Fatalf("expected rate limit overrides: %+v", cfg.RateLimit)
	}
	if cfg.Fetch.HeadlessEnabled {
		t.Fatal("expected headless to be disabled")
	}
	if !cfg.DB.Enabled || cfg.DB.DSN != "postgres://localhost/jobs" {
		t.Fatalf("expected db config: %+v", cfg.DB)
	}
	// Defaults survive partial overrides.
	if cfg.Harvest.MaxAgeDays != 365 {
		t.Fatalf("expected default max_age_days, got %d", cfg.Harvest.MaxAgeDays)
	}
	if cfg.Fetch.BlockSizeFloor != 2000 {
		t.Fatalf("expected default block_size_floor, got %d", cfg.Fetch.BlockSizeFloor)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Harvest:   HarvestConfig{BaseURL: "https://jobs.example.com", Concurrency: 8, MaxEmptyPages: 10},
		RateLimit: RateLimitConfig{MaxRequests: 30, WindowMs: 60000},
		Cache:     CacheConfig{MaxSize: 100},
		Fetch:     FetchConfig{DirectTimeoutSec: 15},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing base url",
			cfg: func() Config {
				c := base
				c.Harvest.BaseURL = ""
				return c
			}(),
			want: "harvest.base_url",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Harvest.Concurrency = 0
				return c
			}(),
			want: "harvest.concurrency",
		},
		{
			name: "invalid empty page threshold",
			cfg: func() Config {
				c := base
				c.Harvest.MaxEmptyPages = 0
				return c
			}(),
			want: "harvest.max_empty_pages",
		},
		{
			name: "invalid rate window",
			cfg: func() Config {
				c := base
				c.RateLimit.WindowMs = 0
				return c
			}(),
			want: "ratelimit",
		},
		{
			name: "db enabled without dsn",
			cfg: func() Config {
				c := base
				c.DB.Enabled = true
				return c
			}(),
			want: "db.dsn",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
