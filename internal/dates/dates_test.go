package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestResolveRelativeExpressions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"just now", now},
		{"Today", now},
		{"just posted", now},
		{"yesterday", now.AddDate(0, 0, -1)},
		{"30 seconds ago", now.Add(-30 * time.Second)},
		{"5 minutes ago", now.Add(-5 * time.Minute)},
		{"2 hours ago", now.Add(-2 * time.Hour)},
		{"3 days ago", now.AddDate(0, 0, -3)},
		{"1 week ago", now.AddDate(0, 0, -7)},
		{"6 months ago", now.AddDate(0, -6, 0)},
		{"2 years ago", now.AddDate(-2, 0, 0)},
	}
	for _, tt := range tests {
		got, ok := Resolve(tt.in, now)
		require.True(t, ok, "Resolve(%q)", tt.in)
		require.Equal(t, tt.want, got, "Resolve(%q)", tt.in)
	}
}

func TestResolveAbsoluteDates(t *testing.T) {
	t.Parallel()

	got, ok := Resolve("2025-06-01", now)
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), got)

	got, ok = Resolve("January 2, 2025", now)
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), got)
}

func TestResolveGarbageReturnsAbsent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "soon", "posted recently-ish", "N days ago"} {
		_, ok := Resolve(in, now)
		require.False(t, ok, "Resolve(%q) should not parse", in)
	}
}

func TestTooOld(t *testing.T) {
	t.Parallel()

	require.False(t, TooOld(now.AddDate(0, 0, -30), now, 0))
	require.True(t, TooOld(now.AddDate(-1, 0, -1), now, 0))
	require.True(t, TooOld(now.AddDate(0, 0, -10), now, 7*24*time.Hour))
}
