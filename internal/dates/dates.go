// Package dates resolves free-text posting dates into absolute timestamps.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxAge is the default staleness cutoff: postings older than this are
// skipped rather than saved.
const MaxAge = 365 * 24 * time.Hour

var relativePattern = regexp.MustCompile(`(?i)^(\d+)\+?\s*(second|minute|hour|day|week|month|year)s?\s+ago$`)

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// Resolve parses a posting date expression relative to now. It recognizes
// "just now"/"today"/"just posted", "yesterday", "<N> <unit> ago", and a
// handful of absolute layouts. The second return is false when nothing
// parses; Resolve never fails louder than that.
func Resolve(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	switch strings.ToLower(s) {
	case "just now", "today", "just posted", "now":
		return now, true
	case "yesterday":
		return now.AddDate(0, 0, -1), true
	}

	if m := relativePattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		switch strings.ToLower(m[2]) {
		case "second":
			return now.Add(-time.Duration(n) * time.Second), true
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute), true
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour), true
		case "day":
			return now.AddDate(0, 0, -n), true
		case "week":
			return now.AddDate(0, 0, -7*n), true
		case "month":
			return now.AddDate(0, -n, 0), true
		case "year":
			return now.AddDate(-n, 0, 0), true
		}
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TooOld reports whether a posting date falls outside the staleness
// window ending at now. maxAge <= 0 uses MaxAge.
func TooOld(postedAt, now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = MaxAge
	}
	return postedAt.Before(now.Add(-maxAge))
}
