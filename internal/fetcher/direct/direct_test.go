package direct

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/postly/job-harvester/internal/scraper"
)

func fetchReq(url string) scraper.FetchRequest {
	return scraper.FetchRequest{URL: url}
}

func TestFetchReturnsBodyAndHeaders(t *testing.T) {
	t.Parallel()

	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>listing</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "harvester-test/1.0", Timeout: 5 * time.Second})
	page, err := f.Fetch(context.Background(), fetchReq(srv.URL))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "listing")
	require.Contains(t, page.Headers.Get("Content-Type"), "text/html")
	require.Equal(t, "harvester-test/1.0", gotUA)
	require.Equal(t, "en-US,en;q=0.9", gotLang)
}

func TestFetchCapturesNonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("access denied"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	page, err := f.Fetch(context.Background(), fetchReq(srv.URL))
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, page.StatusCode)
	require.Equal(t, "access denied", string(page.Body))
}

func TestFetchHonorsCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 10 * time.Second})
	_, err := f.Fetch(ctx, fetchReq(srv.URL))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
