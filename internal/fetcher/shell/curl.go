// Package shell implements the last-resort fetch strategy: shelling out
// to curl, whose TLS fingerprint differs from Go's and sometimes passes
// where the in-process client is blocked.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/postly/job-harvester/internal/scraper"
)

// Config controls the curl invocation.
type Config struct {
	Binary    string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher runs curl as a subprocess.
type Fetcher struct {
	cfg Config
}

// New builds a Fetcher, defaulting the binary to "curl" and the timeout
// to 30 seconds.
func New(cfg Config) *Fetcher {
	if cfg.Binary == "" {
		cfg.Binary = "curl"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{cfg: cfg}
}

// Name identifies the strategy in logs and metrics.
func (f *Fetcher) Name() string { return "shell" }

// statusMarker separates the body from the status code appended by
// curl's --write-out. Unlikely to occur in real page content.
const statusMarker = "\n---HTTP-STATUS:"

// Fetch executes curl and parses the body plus the trailing status code.
func (f *Fetcher) Fetch(ctx context.Context, req scraper.FetchRequest) (scraper.RawPage, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	args := []string{
		"--silent",
		"--show-error",
		"--location",
		"--compressed",
		"--max-time", strconv.Itoa(int(f.cfg.Timeout.Seconds())),
		"--write-out", statusMarker + "%{http_code}",
	}
	if f.cfg.UserAgent != "" {
		args = append(args, "--user-agent", f.cfg.UserAgent)
	}
	for key, values := range req.Headers {
		for _, v := range values {
			args = append(args, "--header", key+": "+v)
		}
	}
	args = append(args, req.URL)

	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.cfg.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return scraper.RawPage{}, fmt.Errorf("shell fetch canceled: %w", ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return scraper.RawPage{}, fmt.Errorf("curl failed: %s", msg)
	}

	body, status, err := splitStatus(stdout.Bytes())
	if err != nil {
		return scraper.RawPage{}, err
	}

	return scraper.RawPage{
		URL:        req.URL,
		StatusCode: status,
		Headers:    http.Header{},
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

func splitStatus(out []byte) ([]byte, int, error) {
	idx := bytes.LastIndex(out, []byte(statusMarker))
	if idx < 0 {
		return nil, 0, fmt.Errorf("curl output missing status marker")
	}
	status, err := strconv.Atoi(strings.TrimSpace(string(out[idx+len(statusMarker):])))
	if err != nil {
		return nil, 0, fmt.Errorf("parse curl status: %w", err)
	}
	return out[:idx], status, nil
}
