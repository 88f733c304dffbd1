// ABOUTME: Retry utilities for remote calls with exponential backoff
// ABOUTME: Shared by the model client and the durable lesson stores
package util

import (
	"context"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CalculateBackoff returns exponential backoff with jitter
// Base delay is doubled each attempt, with random jitter up to 25%
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// Cap attempt to avoid overflow in bit shift (max 30 for safety)
	if attempt > 30 {
		attempt = 30
	}
	// Exponential: 2^attempt * base
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	// Cap at 30 seconds
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	if backoff < 4 {
		return backoff
	}
	// Add jitter: -25% to +25% using auto-seeded math/rand/v2
	jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
	return backoff + jitter
}

// Policy is a reusable retrying-call policy. The zero value performs a
// single attempt with no retries.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the first backoff when no hint is available.
	BaseDelay time.Duration
	// MaxDelay clamps every computed delay. Zero means no clamp.
	MaxDelay time.Duration
	// Retryable decides whether an error earns another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
	// Hint extracts a server-suggested delay from an error.
	Hint func(error) (time.Duration, bool)
	// Jitter switches the schedule to CalculateBackoff.
	Jitter bool
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs fn until it succeeds, returns a non-retryable error, or the retry
// budget is spent. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var delay time.Duration
	var err error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay = p.nextDelay(delay, attempt, err)
			if serr := p.sleep(ctx, delay); serr != nil {
				return err
			}
		}

		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// nextDelay returns the wait before retry number attempt (1-based). The first
// retry honors a server hint; later retries double the previous delay.
func (p Policy) nextDelay(prev time.Duration, attempt int, err error) time.Duration {
	var d time.Duration
	hinted := false
	if attempt == 1 && p.Hint != nil {
		d, hinted = p.Hint(err)
	}
	switch {
	case hinted:
	case p.Jitter:
		d = CalculateBackoff(p.BaseDelay, attempt)
	case attempt == 1 || prev <= 0:
		d = p.BaseDelay
	default:
		d = prev * 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var retryHintPattern = regexp.MustCompile(`(?i)try again in\s+([0-9]+(?:\.[0-9]+)?)\s*(ms|s|m)?`)

// ParseRetryHint extracts the delay from messages such as
// "Please try again in 7.5s" or "try again in 120ms".
func ParseRetryHint(msg string) (time.Duration, bool) {
	m := retryHintPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	unit := strings.ToLower(m[2])
	if unit == "" {
		unit = "s"
	}
	if d, err := time.ParseDuration(m[1] + unit); err == nil {
		return d, true
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
