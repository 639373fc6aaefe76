// Package memory provides in-memory stores for development and testing.
package memory

import (
	"context"
	"sync"

	"github.com/postly/job-harvester/internal/scraper"
)

// JobStore implements scraper.JobStore without a database. Used when no
// DSN is configured and the file outputs are the only durable artifacts.
type JobStore struct {
	mu       sync.RWMutex
	postings map[string]scraper.JobPosting
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{postings: make(map[string]scraper.JobPosting)}
}

// Upsert stores the posting keyed by source URL, reporting whether it
// replaced an existing entry.
func (s *JobStore) Upsert(_ context.Context, posting scraper.JobPosting) (bool, error) {
	if posting.SourceURL == "" {
		return false, &scraper.ValidationError{Field: "source_url", Reason: "required"}
	}
	if posting.Title == "" {
		return false, &scraper.ValidationError{Field: "title", Reason: "required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.postings[posting.SourceURL]
	s.postings[posting.SourceURL] = posting
	return existed, nil
}

// Close is a no-op.
func (s *JobStore) Close() {}

// Get fetches a stored posting by source URL.
func (s *JobStore) Get(sourceURL string) (scraper.JobPosting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.postings[sourceURL]
	return p, ok
}

// Len returns the number of distinct postings stored.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.postings)
}
