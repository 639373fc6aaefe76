// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/postly/job-harvester/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// JobStoreConfig controls the Postgres connection pool used for postings.
type JobStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryCloser interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore persists postings into Postgres keyed by source URL.
type JobStore struct {
	pool  queryCloser
	table string
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "job_postings"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool, table: table}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool queryCloser, table string) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "job_postings"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert inserts or refreshes a posting. The xmax trick distinguishes a
// fresh insert (false) from an update of an existing row (true).
func (s *JobStore) Upsert(ctx context.Context, posting scraper.JobPosting) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("job store is not configured")
	}
	if posting.SourceURL == "" {
		return false, &scraper.ValidationError{Field: "source_url", Reason: "required"}
	}
	if posting.Title == "" {
		return false, &scraper.ValidationError{Field: "title", Reason: "required"}
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	source_url,
	title,
	company,
	location,
	salary,
	employment_type,
	skills,
	description,
	posted_at,
	source,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (source_url) DO UPDATE SET
	title = EXCLUDED.title,
	company = EXCLUDED.company,
	location = EXCLUDED.location,
	salary = EXCLUDED.salary,
	employment_type = EXCLUDED.employment_type,
	skills = EXCLUDED.skills,
	description = EXCLUDED.description,
	posted_at = EXCLUDED.posted_at,
	source = EXCLUDED.source,
	scraped_at = EXCLUDED.scraped_at
RETURNING (xmax <> 0)`, s.table)

	args := []any{
		posting.SourceURL,
		posting.Title,
		posting.Company,
		posting.Location,
		posting.Salary,
		posting.EmploymentType,
		posting.Skills,
		posting.Description,
		posting.PostedAt,
		posting.Source,
		posting.ScrapedAt,
	}
	var wasUpdate bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&wasUpdate); err != nil {
		return false, fmt.Errorf("upsert posting: %w", err)
	}
	return wasUpdate, nil
}
