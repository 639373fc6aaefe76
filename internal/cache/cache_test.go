package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/postly/job-harvester/internal/clock/manual"
)

func newTestCache(t *testing.T, maxSize int) (*Cache[string], *manual.Clock) {
	t.Helper()
	clk := manual.New(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := New[string](Config{MaxSize: maxSize, DefaultTTL: time.Minute}, clk)
	t.Cleanup(c.Close)
	return c, clk
}

func TestCacheTTLExpiry(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(t, 10)
	c.Set("k", "v", 100*time.Millisecond)

	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", got)

	clk.Advance(150 * time.Millisecond)
	_, ok = c.Get("k")
	require.False(t, ok, "entry past TTL must read as absent")
}

func TestCacheLRUEvictionRespectsRecency(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 3)
	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Set("c", "3", 0)

	// Refresh "a": it is now more recent than "b" despite being inserted
	// first.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", "4", 0)

	require.False(t, c.Has("b"), "least recently used key should be evicted")
	require.True(t, c.Has("a"))
	require.True(t, c.Has("c"))
	require.True(t, c.Has("d"))
}

func TestCacheHasDoesNotRefreshRecency(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 2)
	c.Set("a", "1", 0)
	c.Set("b", "2", 0)

	// Has must not promote "a"; inserting "c" should still evict it.
	require.True(t, c.Has("a"))
	c.Set("c", "3", 0)

	require.False(t, c.Has("a"))
	require.True(t, c.Has("b"))
}

func TestCacheDeleteAndClear(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 10)
	c.Set("a", "1", 0)

	require.True(t, c.Delete("a"))
	require.False(t, c.Delete("a"))

	c.Set("b", "2", 0)
	c.Clear()
	require.False(t, c.Has("b"))
	require.Equal(t, 0, c.Stats().Size)
}

func TestCacheStatsCounters(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 2)
	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Set("c", "3", 0) // evicts

	_, _ = c.Get("b")       // hit
	_, _ = c.Get("missing") // miss

	s := c.Stats()
	require.Equal(t, int64(3), s.Sets)
	require.Equal(t, int64(1), s.Hits)
	require.Equal(t, int64(1), s.Misses)
	require.Equal(t, int64(1), s.Evictions)
	require.Equal(t, 2, s.Size)
	require.Positive(t, s.MemoryBytes)
}

func TestCacheSweepRemovesExpired(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(t, 10)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v", time.Second)
	}
	clk.Advance(2 * time.Second)
	c.sweep()

	require.Equal(t, 0, c.Stats().Size)
	require.Equal(t, int64(0), c.Stats().MemoryBytes)
}
