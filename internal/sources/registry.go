package sources

import (
	"fmt"
	"sort"
	"sync"

	"github.com/postly/job-harvester/internal/scraper"
)

// Registry holds the configured sources keyed by id.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]scraper.Source
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]scraper.Source)}
}

// Register adds a source, rejecting duplicate ids.
func (r *Registry) Register(src scraper.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := src.ID()
	if id == "" {
		return fmt.Errorf("source id is required")
	}
	if _, exists := r.sources[id]; exists {
		return fmt.Errorf("source %q already registered", id)
	}
	r.sources[id] = src
	return nil
}

// Get looks up a source by id.
func (r *Registry) Get(id string) (scraper.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[id]
	if !ok {
		return nil, fmt.Errorf("unknown source %q (registered: %v)", id, r.idsLocked())
	}
	return src, nil
}

// IDs returns the registered source ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idsLocked()
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
