// Package retry wraps fallible operations with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config controls retry behavior.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	return c
}

// Do runs op up to MaxRetries times with exponential backoff
// (base × 2^(attempt−1), capped at MaxDelay). The final failure wraps the
// last error with the label and attempt count. Context cancellation stops
// retrying immediately.
func Do[T any](ctx context.Context, cfg Config, logger *zap.Logger, label string, op func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	var zero T
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		attempts = attempt
		if ctx.Err() != nil {
			break
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoff(cfg, attempt)
		logger.Warn("operation failed, retrying",
			zap.String("op", label),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s canceled after %d attempts: %w", label, attempt, ctx.Err())
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", label, attempts, lastErr)
}

func backoff(cfg Config, attempt int) time.Duration {
	delay := cfg.BaseDelay << (attempt - 1)
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	return delay
}
