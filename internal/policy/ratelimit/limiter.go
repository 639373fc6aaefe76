// Package ratelimit implements a sliding-window request limiter with
// adaptive backoff.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/postly/job-harvester/internal/metrics"
	"github.com/postly/job-harvester/internal/scraper"
)

// Config holds rate limiter configuration.
type Config struct {
	// MaxRequests admitted per Window.
	MaxRequests int
	Window      time.Duration
	// Floor is the starting adaptive delay; Ceiling caps its growth.
	Floor   time.Duration
	Ceiling time.Duration
}

const (
	backoffFactor = 1.5
	decayFactor   = 0.9
)

// Limiter admits requests so that no trailing Window interval ever holds
// more than MaxRequests admissions. When the window is saturated it also
// applies an adaptive delay that grows on every forced wait and decays on
// every immediate admission, tuning itself toward the provider's real
// tolerance.
type Limiter struct {
	cfg   Config
	clock scraper.Clock

	mu       sync.Mutex
	window   []time.Time
	adaptive time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter.
func New(cfg Config, clock scraper.Clock) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 30
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Floor <= 0 {
		cfg.Floor = 500 * time.Millisecond
	}
	if cfg.Ceiling < cfg.Floor {
		cfg.Ceiling = 30 * time.Second
	}
	metrics.Init()
	return &Limiter{
		cfg:      cfg,
		clock:    clock,
		adaptive: cfg.Floor,
		sleep:    sleepCtx,
	}
}

// Wait blocks until it is safe to issue the next request, then records
// the admission. It never fails except on context cancellation.
func (l *Limiter) Wait(ctx context.Context) error {
	waited := false
	for {
		wait := l.admit(waited)
		if wait <= 0 {
			return nil
		}
		waited = true
		metrics.ObserveRateLimitDelay(wait)
		if err := l.sleep(ctx, wait); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
}

// admit trims the window and either records an admission (returning 0) or
// returns how long the caller must wait before trying again. Only
// admissions that never had to wait decay the adaptive delay.
func (l *Limiter) admit(waited bool) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.trim(now)

	if len(l.window) < l.cfg.MaxRequests {
		l.window = append(l.window, now)
		if !waited {
			l.decay()
		}
		return 0
	}

	// Window is full: wait until the oldest entry has strictly exited
	// (the trailing window is closed, so the boundary instant still
	// counts it), or the adaptive delay, whichever is longer.
	until := l.window[0].Add(l.cfg.Window).Sub(now) + time.Nanosecond
	wait := until
	if l.adaptive > wait {
		wait = l.adaptive
	}
	l.backoff()
	return wait
}

// trim drops window entries strictly older than now − Window. An entry
// exactly at the cutoff stays: the trailing window is a closed interval.
// Binary search keeps the trim O(log n) on an already-sorted window.
func (l *Limiter) trim(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	idx := sort.Search(len(l.window), func(i int) bool {
		return !l.window[i].Before(cutoff)
	})
	if idx > 0 {
		l.window = append(l.window[:0], l.window[idx:]...)
	}
}

func (l *Limiter) backoff() {
	next := time.Duration(float64(l.adaptive) * backoffFactor)
	if next > l.cfg.Ceiling {
		next = l.cfg.Ceiling
	}
	l.adaptive = next
}

func (l *Limiter) decay() {
	next := time.Duration(float64(l.adaptive) * decayFactor)
	if next < l.cfg.Floor {
		next = l.cfg.Floor
	}
	l.adaptive = next
}

// InWindow reports how many admissions are currently inside the sliding
// window. Used by tests and the status endpoint.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trim(l.clock.Now())
	return len(l.window)
}

// AdaptiveDelay exposes the current adaptive delay for observability.
func (l *Limiter) AdaptiveDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adaptive
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
