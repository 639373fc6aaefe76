package fetcher

import (
	"bytes"

	"github.com/postly/job-harvester/internal/scraper"
)

// BlockDetector flags responses that returned 200-shaped transport
// success but carry a bot challenge or an interstitial instead of data.
type BlockDetector struct {
	// BodySizeFloor is the byte count below which an HTML body is
	// considered suspicious. Feeds and JSON payloads are exempt since
	// a legitimate empty page can be tiny.
	BodySizeFloor int
}

// NewBlockDetector builds a detector with the given floor, defaulting
// to 2000 bytes.
func NewBlockDetector(floor int) *BlockDetector {
	if floor <= 0 {
		floor = 2000
	}
	return &BlockDetector{BodySizeFloor: floor}
}

var challengeMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("cf-challenge"),
	[]byte("cf-browser-verification"),
	[]byte("access denied"),
	[]byte("unusual traffic"),
	[]byte("are you a robot"),
	[]byte("verify you are human"),
	[]byte("request blocked"),
	[]byte("enable javascript and cookies"),
	[]byte("attention required"),
	[]byte("perimeterx"),
	[]byte("datadome"),
}

// Blocked reports whether the page should be treated as a soft block.
func (d *BlockDetector) Blocked(page scraper.RawPage) bool {
	if page.StatusCode == 403 || page.StatusCode == 429 {
		return true
	}
	if page.StatusCode != 200 {
		return false
	}
	if page.Kind == scraper.KindHTML && len(page.Body) < d.BodySizeFloor {
		return true
	}
	lower := bytes.ToLower(page.Body)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}
