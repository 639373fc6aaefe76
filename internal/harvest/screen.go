package harvest

import (
	"regexp"
	"strings"
	"time"

	"github.com/postly/job-harvester/internal/dates"
	"github.com/postly/job-harvester/internal/scraper"
)

// junkTitles match navigation and boilerplate text that AI extraction
// sometimes mistakes for postings.
var junkTitles = []string{
	"sign in", "sign up", "log in", "register",
	"cookie", "privacy policy", "terms of service",
	"search jobs", "browse jobs", "all jobs", "more jobs",
	"next page", "previous page", "about us", "contact",
}

// screen decides whether a posting is worth saving. The reason string
// is for logs only.
func screen(p scraper.JobPosting, now time.Time, maxAge time.Duration, minDescription int) (string, bool) {
	title := strings.ToLower(strings.TrimSpace(p.Title))
	if len(title) < 3 {
		return "title too short", false
	}
	for _, junk := range junkTitles {
		if title == junk || strings.HasPrefix(title, junk+" ") {
			return "junk title", false
		}
	}
	if p.SourceURL == "" {
		return "missing source url", false
	}
	// Descriptions are optional, but one this short is boilerplate
	// the extractor picked up by mistake.
	if d := strings.TrimSpace(p.Description); d != "" && len(d) < minDescription {
		return "description too short", false
	}
	if p.PostedAt == nil {
		return "no posted date", false
	}
	if dates.TooOld(*p.PostedAt, now, maxAge) {
		return "posting too old", false
	}
	return "", true
}

// skillPatterns matched against descriptions when extraction produced no
// explicit skills list.
var skillPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"Go", regexp.MustCompile(`(?i)\b(golang|go)\b`)},
	{"Python", regexp.MustCompile(`(?i)\bpython\b`)},
	{"JavaScript", regexp.MustCompile(`(?i)\b(javascript|node\.?js)\b`)},
	{"TypeScript", regexp.MustCompile(`(?i)\btypescript\b`)},
	{"Java", regexp.MustCompile(`(?i)\bjava\b`)},
	{"Rust", regexp.MustCompile(`(?i)\brust\b`)},
	{"SQL", regexp.MustCompile(`(?i)\b(sql|postgres(ql)?|mysql)\b`)},
	{"Kubernetes", regexp.MustCompile(`(?i)\b(kubernetes|k8s)\b`)},
	{"Docker", regexp.MustCompile(`(?i)\bdocker\b`)},
	{"AWS", regexp.MustCompile(`(?i)\baws\b`)},
	{"Terraform", regexp.MustCompile(`(?i)\bterraform\b`)},
	{"React", regexp.MustCompile(`(?i)\breact\b`)},
}

var employmentPatterns = []struct {
	value string
	re    *regexp.Regexp
}{
	{"FULL_TIME", regexp.MustCompile(`(?i)\bfull[ -]?time\b`)},
	{"PART_TIME", regexp.MustCompile(`(?i)\bpart[ -]?time\b`)},
	{"CONTRACT", regexp.MustCompile(`(?i)\b(contract(or)?|freelance)\b`)},
	{"INTERNSHIP", regexp.MustCompile(`(?i)\bintern(ship)?\b`)},
}

// enrich backfills skills and employment type from the description when
// extraction left them empty.
func enrich(p *scraper.JobPosting) {
	text := p.Title + " " + p.Description
	if len(p.Skills) == 0 && p.Description != "" {
		for _, sp := range skillPatterns {
			if sp.re.MatchString(text) {
				p.Skills = append(p.Skills, sp.name)
			}
		}
	}
	if p.EmploymentType == "" {
		for _, ep := range employmentPatterns {
			if ep.re.MatchString(text) {
				p.EmploymentType = ep.value
				break
			}
		}
	}
}
