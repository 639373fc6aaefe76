package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/cache"
	"github.com/postly/job-harvester/internal/clock/manual"
	"github.com/postly/job-harvester/internal/extract/ai"
	"github.com/postly/job-harvester/internal/extract/structured"
	"github.com/postly/job-harvester/internal/scraper"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	pages map[string]scraper.RawPage
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, req scraper.FetchRequest) (scraper.RawPage, error) {
	f.calls++
	page := f.pages[req.URL]
	page.URL = req.URL
	return page, nil
}

func newTestBoard(t *testing.T, fetcher scraper.Fetcher, pageCache *cache.Cache[scraper.RawPage]) *Board {
	t.Helper()
	clk := manual.New(testNow)
	b, err := NewBoard(
		BoardConfig{
			ID:        "board",
			BaseURL:   "https://board.example.com/jobs?q=go",
			PageParam: "page",
			Query:     map[string]string{"remote": "true"},
		},
		fetcher, nil, pageCache,
		structured.New(clk, zap.NewNop()), nil,
		zap.NewNop(),
	)
	require.NoError(t, err)
	return b
}

func TestPageURLMergesQueryAndPage(t *testing.T) {
	t.Parallel()

	b := newTestBoard(t, &fakeFetcher{}, nil)
	u, err := b.PageURL(3)
	require.NoError(t, err)
	require.Equal(t, "https://board.example.com/jobs?page=3&q=go&remote=true", u)
}

func TestFetchPageUsesCache(t *testing.T) {
	t.Parallel()

	body := scraper.RawPage{StatusCode: 200, Kind: scraper.KindHTML, Body: []byte("<html>jobs</html>")}
	fetcher := &fakeFetcher{pages: map[string]scraper.RawPage{}}
	b := newTestBoard(t, fetcher, cache.New[scraper.RawPage](cache.Config{MaxSize: 10, DefaultTTL: time.Minute}, manual.New(testNow)))

	u, err := b.PageURL(0)
	require.NoError(t, err)
	fetcher.pages[u] = body

	first, err := b.FetchPage(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls)

	second, err := b.FetchPage(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, first.Body, second.Body)
}

func TestExtractPrefersStructuredData(t *testing.T) {
	t.Parallel()

	feed := `<?xml version="1.0"?><rss version="2.0"><channel><item>
<title>Acme: Go Engineer</title><link>https://board.example.com/jobs/1</link>
<pubDate>Tue, 10 Jun 2025 09:00:00 +0000</pubDate></item></channel></rss>`

	b := newTestBoard(t, &fakeFetcher{}, nil)
	postings, err := b.Extract(context.Background(), scraper.RawPage{
		URL:  "https://board.example.com/feed",
		Kind: scraper.KindRSS,
		Body: []byte(feed),
	})
	require.NoError(t, err)
	require.Len(t, postings, 1)
	require.Equal(t, "Go Engineer", postings[0].Title)
}

type countingGenerator struct {
	calls int
	reply string
}

func (g *countingGenerator) Generate(_ context.Context, _ string) (string, error) {
	g.calls++
	return g.reply, nil
}

func TestExtractSkipsAIWhenStructuredDataPresent(t *testing.T) {
	t.Parallel()

	page := `<html><head><script type="application/ld+json">
{"@type":"JobPosting","title":"Go Engineer","url":"https://board.example.com/jobs/1",
"hiringOrganization":{"name":"Acme"},"datePosted":"2025-06-10"}
</script></head><body>listing</body></html>`

	gen := &countingGenerator{reply: "[]"}
	clk := manual.New(testNow)
	b, err := NewBoard(
		BoardConfig{ID: "board", BaseURL: "https://board.example.com/jobs"},
		&fakeFetcher{}, nil, nil,
		structured.New(clk, zap.NewNop()),
		ai.New(gen, clk, zap.NewNop(), 0),
		zap.NewNop(),
	)
	require.NoError(t, err)

	postings, err := b.Extract(context.Background(), scraper.RawPage{
		URL:  "https://board.example.com/jobs?page=0",
		Kind: scraper.KindHTML,
		Body: []byte(page),
	})
	require.NoError(t, err)
	require.Len(t, postings, 1)
	require.Equal(t, "Go Engineer", postings[0].Title)
	require.Zero(t, gen.calls)
}

func TestExtractFallsBackToAIWithoutStructuredData(t *testing.T) {
	t.Parallel()

	gen := &countingGenerator{reply: `[{"title":"Dev","company":"Acme","url":"/jobs/9"}]`}
	clk := manual.New(testNow)
	b, err := NewBoard(
		BoardConfig{ID: "board", BaseURL: "https://board.example.com/jobs"},
		&fakeFetcher{}, nil, nil,
		structured.New(clk, zap.NewNop()),
		ai.New(gen, clk, zap.NewNop(), 0),
		zap.NewNop(),
	)
	require.NoError(t, err)

	postings, err := b.Extract(context.Background(), scraper.RawPage{
		URL:  "https://board.example.com/jobs?page=0",
		Kind: scraper.KindHTML,
		Body: []byte("<html><body>plain rendered listing without markup</body></html>"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, gen.calls)
	require.Len(t, postings, 1)
	require.Equal(t, "Dev", postings[0].Title)
	require.Equal(t, "https://board.example.com/jobs/9", postings[0].SourceURL)
}

func TestExtractWithoutFallbackReturnsEmpty(t *testing.T) {
	t.Parallel()

	b := newTestBoard(t, &fakeFetcher{}, nil)
	postings, err := b.Extract(context.Background(), scraper.RawPage{
		Kind: scraper.KindHTML,
		Body: []byte("<html><body>no structured data here</body></html>"),
	})
	require.NoError(t, err)
	require.Empty(t, postings)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	b := newTestBoard(t, &fakeFetcher{}, nil)
	require.NoError(t, r.Register(b))
	require.Error(t, r.Register(b))

	got, err := r.Get("board")
	require.NoError(t, err)
	require.Equal(t, "board", got.ID())

	_, err = r.Get("missing")
	require.Error(t, err)
	require.Equal(t, []string{"board"}, r.IDs())
}
