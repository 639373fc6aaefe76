// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	LLM       LLMConfig       `mapstructure:"llm"`
	DB        DBConfig        `mapstructure:"db"`
	Output    OutputConfig    `mapstructure:"output"`
	State     StateConfig     `mapstructure:"state"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// HarvestConfig governs the fetch-and-save loop.
type HarvestConfig struct {
	Source         string            `mapstructure:"source"`
	BaseURL        string            `mapstructure:"base_url"`
	PageParam      string            `mapstructure:"page_param"`
	ReadySelector  string            `mapstructure:"ready_selector"`
	Query          map[string]string `mapstructure:"query"`
	Concurrency    int               `mapstructure:"concurrency"`
	MaxPages       int               `mapstructure:"max_pages"`
	MaxEmptyPages  int               `mapstructure:"max_empty_pages"`
	MaxAgeDays     int               `mapstructure:"max_age_days"`
	MinDescription int               `mapstructure:"min_description"`
}

// RateLimitConfig controls the sliding-window limiter.
type RateLimitConfig struct {
	MaxRequests int `mapstructure:"max_requests"`
	WindowMs    int `mapstructure:"window_ms"`
	FloorMs     int `mapstructure:"floor_ms"`
	CeilingMs   int `mapstructure:"ceiling_ms"`
}

// CacheConfig sizes the fetch-result cache.
type CacheConfig struct {
	MaxSize      int `mapstructure:"max_size"`
	DefaultTTLMs int `mapstructure:"default_ttl_ms"`
}

// RetryConfig configures network retry behavior.
type RetryConfig struct {
	MaxRetries  int `mapstructure:"max_retries"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// FetchConfig configures the strategy chain.
type FetchConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	DirectTimeoutSec  int    `mapstructure:"direct_timeout_seconds"`
	BrowserTimeoutSec int    `mapstructure:"browser_timeout_seconds"`
	ShellTimeoutSec   int    `mapstructure:"shell_timeout_seconds"`
	HeadlessEnabled   bool   `mapstructure:"headless_enabled"`
	HeadlessParallel  int    `mapstructure:"headless_parallel"`
	ShellEnabled      bool   `mapstructure:"shell_enabled"`
	CurlPath          string `mapstructure:"curl_path"`
	BlockSizeFloor    int    `mapstructure:"block_size_floor"`
}

// LLMConfig points at the text-generation backend.
type LLMConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	CharBudget int    `mapstructure:"char_budget"`
	TimeoutSec int    `mapstructure:"timeout_seconds"`
}

// DBConfig controls the relational upsert store.
type DBConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// OutputConfig sets paths for run artifacts.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// StateConfig locates the resume checkpoint.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig toggles raw-page archival for post-mortems.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// ServerConfig controls the status/metrics HTTP endpoint.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POSTLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.source", "board")
	v.SetDefault("harvest.page_param", "page")
	v.SetDefault("harvest.concurrency", 8)
	v.SetDefault("harvest.max_pages", 5000)
	v.SetDefault("harvest.max_empty_pages", 10)
	v.SetDefault("harvest.max_age_days", 365)
	v.SetDefault("harvest.min_description", 100)
	v.SetDefault("ratelimit.max_requests", 30)
	v.SetDefault("ratelimit.window_ms", 60000)
	v.SetDefault("ratelimit.floor_ms", 500)
	v.SetDefault("ratelimit.ceiling_ms", 30000)
	v.SetDefault("cache.max_size", 500)
	v.SetDefault("cache.default_ttl_ms", 300000)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 10000)
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("fetch.direct_timeout_seconds", 15)
	v.SetDefault("fetch.browser_timeout_seconds", 45)
	v.SetDefault("fetch.shell_timeout_seconds", 30)
	v.SetDefault("fetch.headless_enabled", true)
	v.SetDefault("fetch.headless_parallel", 2)
	v.SetDefault("fetch.shell_enabled", true)
	v.SetDefault("fetch.curl_path", "curl")
	v.SetDefault("fetch.block_size_floor", 2000)
	v.SetDefault("llm.char_budget", 30000)
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("db.enabled", false)
	v.SetDefault("output.dir", "output")
	v.SetDefault("state.path", "state/scraper-state.json")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.dir", "archive")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.BaseURL == "" {
		return fmt.Errorf("harvest.base_url must be set")
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	if c.Harvest.MaxEmptyPages <= 0 {
		return fmt.Errorf("harvest.max_empty_pages must be > 0")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.WindowMs <= 0 {
		return fmt.Errorf("ratelimit.max_requests and ratelimit.window_ms must be > 0")
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.max_size must be > 0")
	}
	if c.Fetch.DirectTimeoutSec <= 0 {
		return fmt.Errorf("fetch.direct_timeout_seconds must be > 0")
	}
	if c.DB.Enabled && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.enabled is true")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when server.enabled is true")
	}
	return nil
}

// Window returns the rate-limit window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// Floor returns the adaptive delay floor.
func (c RateLimitConfig) Floor() time.Duration {
	return time.Duration(c.FloorMs) * time.Millisecond
}

// Ceiling returns the adaptive delay ceiling.
func (c RateLimitConfig) Ceiling() time.Duration {
	return time.Duration(c.CeilingMs) * time.Millisecond
}

// DefaultTTL returns the cache TTL as a duration.
func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLMs) * time.Millisecond
}

// BaseDelay returns the first retry delay.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the retry delay cap.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}
