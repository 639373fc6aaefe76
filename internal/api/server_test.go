package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postly/job-harvester/internal/cache"
	"github.com/postly/job-harvester/internal/clock/manual"
	"github.com/postly/job-harvester/internal/state"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *state.Manager, *manual.Clock) {
	t.Helper()
	clk := manual.New(testNow)
	mgr := state.New(filepath.Join(t.TempDir(), "scraper-state.json"), clk, zap.NewNop())
	pageCache := cache.New[string](cache.Config{MaxSize: 4, DefaultTTL: time.Minute}, clk)
	t.Cleanup(pageCache.Close)
	return NewServer(mgr, pageCache, clk, zap.NewNop()), mgr, clk
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatusReportsStateAndCache(t *testing.T) {
	t.Parallel()

	server, mgr, clk := newTestServer(t)
	mgr.Begin("sess-9", nil)
	mgr.UpdatePage(4, 80)
	clk.Advance(30 * time.Second)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "sess-9", resp.State.SessionID)
	require.Equal(t, 4, resp.State.LastProcessedPage)
	require.Equal(t, 80, resp.State.TotalRecordsCollected)
	require.NotNil(t, resp.Cache)
	require.EqualValues(t, 30, resp.UptimeSeconds)
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}
