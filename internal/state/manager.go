// Package state persists a crash-safe checkpoint of scraping progress.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/scraper"
)

// ScrapingState is the persisted checkpoint for one logical session.
// LastProcessedPage of −1 means "not started".
type ScrapingState struct {
	SessionID             string               `json:"session_id"`
	LastProcessedPage     int                  `json:"last_processed_page"`
	TotalRecordsCollected int                  `json:"total_records_collected"`
	StartedAt             time.Time            `json:"started_at"`
	LastUpdatedAt         time.Time            `json:"last_updated_at"`
	SearchParameters      scraper.SearchParams `json:"search_parameters,omitempty"`
	IsComplete            bool                 `json:"is_complete"`
}

// Manager owns the checkpoint file. All mutations write through
// immediately so a crash between pages loses at most the in-flight page.
type Manager struct {
	path   string
	clock  scraper.Clock
	logger *zap.Logger

	mu    sync.Mutex
	state ScrapingState
}

// New loads the checkpoint at path, falling back to a fresh zeroed state
// when the file is missing or unparsable. Corruption is never fatal.
func New(path string, clock scraper.Clock, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{path: path, clock: clock, logger: logger}
	m.state = m.load()
	return m
}

func (m *Manager) load() ScrapingState {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("checkpoint unreadable, starting fresh", zap.String("path", m.path), zap.Error(err))
		}
		return m.fresh()
	}
	var st ScrapingState
	if err := json.Unmarshal(data, &st); err != nil {
		m.logger.Warn("checkpoint corrupt, starting fresh", zap.String("path", m.path), zap.Error(err))
		return m.fresh()
	}
	return st
}

func (m *Manager) fresh() ScrapingState {
	now := m.clock.Now()
	return ScrapingState{
		LastProcessedPage: -1,
		StartedAt:         now,
		LastUpdatedAt:     now,
	}
}

// Begin stamps the session identity and search parameters for a new or
// resumed run and persists them.
func (m *Manager) Begin(sessionID string, params scraper.SearchParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.SessionID == "" {
		m.state.SessionID = sessionID
	}
	m.state.SearchParameters = params
	m.persistLocked()
}

// UpdatePage advances the checkpoint past pageNumber and accumulates
// recordCount, then writes through.
func (m *Manager) UpdatePage(pageNumber, recordCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pageNumber > m.state.LastProcessedPage {
		m.state.LastProcessedPage = pageNumber
	}
	m.state.TotalRecordsCollected += recordCount
	m.state.LastUpdatedAt = m.clock.Now()
	m.persistLocked()
}

// MarkComplete records that pagination reached the end of data.
func (m *Manager) MarkComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.IsComplete = true
	m.state.LastUpdatedAt = m.clock.Now()
	m.persistLocked()
}

// StartFresh rewinds pagination for a new session while keeping the
// accumulated record totals. Only Reset clears those.
func (m *Manager) StartFresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	m.state.SessionID = ""
	m.state.LastProcessedPage = -1
	m.state.IsComplete = false
	m.state.StartedAt = now
	m.state.LastUpdatedAt = now
	m.persistLocked()
}

// Reset deletes the persisted file and reinitializes in memory.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	m.state = m.fresh()
	return nil
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() ScrapingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	if st.SearchParameters != nil {
		params := make(scraper.SearchParams, len(st.SearchParameters))
		for k, v := range st.SearchParameters {
			params[k] = v
		}
		st.SearchParameters = params
	}
	return st
}

// CanResume reports whether a prior incomplete session left progress to
// continue from.
func (m *Manager) CanResume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.state.IsComplete && m.state.LastProcessedPage >= 0
}

// persistLocked writes the checkpoint atomically (temp file + rename). A
// failed write is logged, not raised: the next successful write catches
// up, and a write failure must not kill an otherwise healthy scrape.
func (m *Manager) persistLocked() {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		m.logger.Error("marshal checkpoint", zap.Error(err))
		return
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		m.logger.Error("create checkpoint dir", zap.String("dir", dir), zap.Error(err))
		return
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		m.logger.Error("write checkpoint", zap.String("path", tmp), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		m.logger.Error("replace checkpoint", zap.String("path", m.path), zap.Error(err))
	}
}
