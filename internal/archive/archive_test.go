package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/postly/job-harvester/internal/scraper"
)

func TestSavePageWritesBySourceAndKind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := New(Config{BaseDir: dir, Enabled: true})
	require.NoError(t, err)
	require.True(t, a.Enabled())

	path, err := a.SavePage("board", 3, scraper.RawPage{Kind: scraper.KindHTML, Body: []byte("<html/>")})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "board", "page-0003.html"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "<html/>", string(data))

	path, err = a.SavePage("board", 4, scraper.RawPage{Kind: scraper.KindRSS, Body: []byte("<rss/>")})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "board", "page-0004.xml"), path)
}

func TestDisabledArchiveWritesNothing(t *testing.T) {
	t.Parallel()

	a, err := New(Config{})
	require.NoError(t, err)
	require.False(t, a.Enabled())

	path, err := a.SavePage("board", 0, scraper.RawPage{Body: []byte("x")})
	require.NoError(t, err)
	require.Empty(t, path)
}

func TestSavePageSanitizesSourceID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := New(Config{BaseDir: dir, Enabled: true})
	require.NoError(t, err)

	path, err := a.SavePage("../escape/attempt", 0, scraper.RawPage{Body: []byte("x")})
	require.NoError(t, err)
	require.Contains(t, path, dir)

	rel, err := filepath.Rel(dir, path)
	require.NoError(t, err)
	require.False(t, filepath.IsAbs(rel))
	require.NotContains(t, rel, "..")
}

func TestNewRequiresBaseDirWhenEnabled(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Enabled: true})
	require.Error(t, err)
}
