// Package output streams normalized postings to disk as they arrive: an
// append-only CSV row stream plus a JSON snapshot rewritten per batch so
// partial runs are always inspectable.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/scraper"
)

var csvHeader = []string{
	"title", "company", "location", "source_url", "salary",
	"employment_type", "skills", "description", "posted_at", "source", "scraped_at",
}

// Writer owns the two output files for one run.
type Writer struct {
	csvPath  string
	jsonPath string
	source   string
	method   string
	clock    scraper.Clock
	logger   *zap.Logger

	mu        sync.Mutex
	file      *os.File
	csv       *csv.Writer
	seen      map[string]int
	records   []scraper.JobPosting
	finalized bool
}

// New builds a Writer targeting csvPath and jsonPath. source and method
// label the JSON snapshot.
func New(csvPath, jsonPath, source, method string, clock scraper.Clock, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if method == "" {
		method = "scrape"
	}
	return &Writer{
		csvPath:  csvPath,
		jsonPath: jsonPath,
		source:   source,
		method:   method,
		clock:    clock,
		logger:   logger,
		seen:     map[string]int{},
	}
}

// Init opens the row stream in append mode so rows flushed by an
// interrupted run survive a resume, writing the header only when the
// file is new. The snapshot baseline is reloaded the same way.
// Idempotent.
func (w *Writer) Init() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.csvPath), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(w.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open csv output: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat csv output: %w", err)
	}
	w.file = f
	w.csv = csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.csv.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			return err
		}
	}
	w.loadSnapshotLocked()
	return nil
}

// loadSnapshotLocked seeds the in-memory set from a prior run's
// snapshot. A missing or unreadable snapshot just starts empty.
func (w *Writer) loadSnapshotLocked() {
	if len(w.records) > 0 {
		return
	}
	data, err := os.ReadFile(w.jsonPath)
	if err != nil {
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		w.logger.Warn("prior snapshot unreadable, starting empty", zap.Error(err))
		return
	}
	for _, rec := range snap.Records {
		if _, ok := w.seen[rec.SourceURL]; ok {
			continue
		}
		w.seen[rec.SourceURL] = len(w.records)
		w.records = append(w.records, rec)
	}
}

// Append writes each record as a CSV row immediately, merges it into the
// in-memory set keyed by source URL, and rewrites the JSON snapshot.
func (w *Writer) Append(records []scraper.JobPosting) error {
	if len(records) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("writer not initialized")
	}
	if w.finalized {
		return fmt.Errorf("writer already finalized")
	}
	for _, rec := range records {
		if err := w.csv.Write(csvRow(rec)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		if idx, ok := w.seen[rec.SourceURL]; ok {
			w.records[idx] = rec
		} else {
			w.seen[rec.SourceURL] = len(w.records)
			w.records = append(w.records, rec)
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return w.writeSnapshotLocked()
}

// Finalize closes the row stream. Safe to call multiple times and safe
// to never call: rows already flushed survive a kill.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized || w.file == nil {
		return nil
	}
	w.finalized = true
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.logger.Warn("csv flush on finalize", zap.Error(err))
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close csv output: %w", err)
	}
	return nil
}

// RecordCount returns the number of distinct postings written so far.
func (w *Writer) RecordCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

func csvRow(rec scraper.JobPosting) []string {
	postedAt := ""
	if rec.PostedAt != nil {
		postedAt = rec.PostedAt.Format(time.RFC3339)
	}
	return []string{
		rec.Title,
		rec.Company,
		rec.Location,
		rec.SourceURL,
		rec.Salary,
		rec.EmploymentType,
		strings.Join(rec.Skills, "; "),
		rec.Description,
		postedAt,
		rec.Source,
		rec.ScrapedAt.Format(time.RFC3339),
	}
}

// snapshot is the JSON document layout.
type snapshot struct {
	Timestamp    time.Time            `json:"timestamp"`
	Source       string               `json:"source"`
	Method       string               `json:"method"`
	Analytics    analytics            `json:"analytics"`
	TotalRecords int                  `json:"total_records"`
	Records      []scraper.JobPosting `json:"records"`
}

type analytics struct {
	TopCompanies  []countedValue `json:"top_companies"`
	TopLocations  []countedValue `json:"top_locations"`
	TopSkills     []countedValue `json:"top_skills"`
	RemoteCount   int            `json:"remote_count"`
	WithSalary    int            `json:"with_salary"`
	WithPostedAt  int            `json:"with_posted_at"`
}

type countedValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

const topN = 10

// writeSnapshotLocked overwrites the JSON snapshot atomically. O(n) per
// call; append batches are page-sized so the rewrite stays cheap.
func (w *Writer) writeSnapshotLocked() error {
	snap := snapshot{
		Timestamp:    w.clock.Now(),
		Source:       w.source,
		Method:       w.method,
		Analytics:    computeAnalytics(w.records),
		TotalRecords: len(w.records),
		Records:      w.records,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := w.jsonPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, w.jsonPath); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func computeAnalytics(records []scraper.JobPosting) analytics {
	companies := map[string]int{}
	locations := map[string]int{}
	skills := map[string]int{}
	out := analytics{}

	for _, rec := range records {
		if rec.Company != "" {
			companies[rec.Company]++
		}
		if rec.Location != "" {
			locations[rec.Location]++
			if strings.Contains(strings.ToLower(rec.Location), "remote") {
				out.RemoteCount++
			}
		}
		for _, s := range rec.Skills {
			skills[strings.ToLower(s)]++
		}
		if rec.Salary != "" {
			out.WithSalary++
		}
		if rec.PostedAt != nil {
			out.WithPostedAt++
		}
	}

	out.TopCompanies = topCounts(companies)
	out.TopLocations = topCounts(locations)
	out.TopSkills = topCounts(skills)
	return out
}

func topCounts(m map[string]int) []countedValue {
	out := make([]countedValue, 0, len(m))
	for value, count := range m {
		out = append(out, countedValue{Value: value, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
