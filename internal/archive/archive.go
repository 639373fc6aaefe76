// Package archive keeps raw page bodies on disk for debugging extraction
// failures after the fact.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/postly/job-harvester/internal/scraper"
)

// Config captures the parameters for the page archive.
type Config struct {
	// BaseDir is the root directory where page bodies are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Enabled gates archiving entirely; raw pages can be large.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Archive writes raw pages to the local filesystem, one file per page
// number, grouped by source.
type Archive struct {
	baseDir string
	enabled bool
}

// New creates an Archive. A disabled archive is valid and writes nothing.
func New(cfg Config) (*Archive, error) {
	if !cfg.Enabled {
		return &Archive{}, nil
	}
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &Archive{baseDir: cfg.BaseDir, enabled: true}, nil
}

// Enabled reports whether pages are actually written.
func (a *Archive) Enabled() bool {
	return a != nil && a.enabled
}

// SavePage writes the page body under <base>/<source>/page-NNNN.<ext>
// and returns the file path. Disabled archives return "" without error.
func (a *Archive) SavePage(sourceID string, pageNumber int, page scraper.RawPage) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	sourceID = sanitize(sourceID)
	if sourceID == "" {
		return "", fmt.Errorf("source id is required")
	}

	dir := filepath.Join(a.baseDir, sourceID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create source directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("page-%04d.%s", pageNumber, extension(page.Kind)))
	if err := os.WriteFile(path, page.Body, 0o640); err != nil {
		return "", fmt.Errorf("failed to write page: %w", err)
	}
	return path, nil
}

func extension(kind scraper.ContentKind) string {
	switch kind {
	case scraper.KindJSON:
		return "json"
	case scraper.KindRSS:
		return "xml"
	default:
		return "html"
	}
}

// sanitize strips path separators so a source id can never escape the
// base directory.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "")
	return s
}
