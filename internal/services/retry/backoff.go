package retry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ochronus/storageportal/internal/services/portal"
)

// Config controls retry behavior of portal calls made by callers of the
// binding layer. The bindings themselves never retry.
type Config struct {
	// Attempts is the total number of attempts (including the first).
	// If zero or negative, DefaultAttempts is used.
	Attempts int

	// BaseDelay is the starting delay. Each retry is doubled (exponential backoff).
	// If zero, DefaultBaseDelay is used.
	BaseDelay time.Duration

	// MaxDelay caps a single wait, including server advised Retry-After
	// delays. If zero, DefaultMaxDelay is used.
	MaxDelay time.Duration

	// ShouldRetry decides whether err is worth another attempt.
	// If nil, portal.IsTemporary is used.
	ShouldRetry func(error) bool

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleeper allows tests to override sleeping. If nil, a timer is used and
	// ctx cancellation is honored.
	Sleeper func(time.Duration)
}

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 200 * time.Millisecond
	DefaultMaxDelay  = 30 * time.Second
)

// RetryAfterDelay parses an HTTP Retry-After header value and returns the advised
// delay. If parsing fails or the header is empty, fallback is returned.
func RetryAfterDelay(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}

	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}

	if ts, err := http.ParseTime(header); err == nil {
		now := time.Now()
		if ts.After(now) {
			return ts.Sub(now)
		}
		return 0
	}

	return fallback
}

// Delay returns how long to wait after the given failed attempt: the
// Retry-After advice of an HTTP error when present, otherwise
// base * 2^attempt. The result never exceeds maxDelay.
func Delay(attempt int, err error, base, maxDelay time.Duration) time.Duration {
	delay := base * time.Duration(1<<attempt)

	var httpErr *portal.HTTPError
	if errors.As(err, &httpErr) {
		delay = RetryAfterDelay(httpErr.RetryAfter, delay)
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// Do executes op until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. If ctx is canceled, the context error is returned.
func Do(ctx context.Context, cfg Config, op func(attempt int) error) error {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	base := cfg.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}

	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = portal.IsTemporary
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts-1 || !shouldRetry(err) {
			return lastErr
		}

		delay := Delay(attempt, err, base, maxDelay)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if cfg.Sleeper != nil {
			cfg.Sleeper(delay)
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return lastErr
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, cfg Config, op func(attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(attempt int) error {
		v, err := op(attempt)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
