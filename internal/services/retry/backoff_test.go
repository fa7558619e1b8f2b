package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ochronus/storageportal/internal/services/portal"
)

var errTemporary = &portal.TransportError{Method: "GET", URL: "http://x", Err: errors.New("connection reset")}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{}, func(int) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoRetriesTemporaryErrorsWithBackoff(t *testing.T) {
	attempts := 0
	var sleeps []time.Duration
	err := Do(context.Background(), Config{
		Attempts:  3,
		BaseDelay: 100 * time.Millisecond,
		Sleeper: func(d time.Duration) {
			sleeps = append(sleeps, d)
		},
	}, func(int) error {
		attempts++
		if attempts < 3 {
			return errTemporary
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	wantSleeps := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
	}
	if len(sleeps) != len(wantSleeps) {
		t.Fatalf("expected %d sleeps, got %d", len(wantSleeps), len(sleeps))
	}
	for i, got := range sleeps {
		if got != wantSleeps[i] {
			t.Fatalf("sleep %d: expected %v, got %v", i, wantSleeps[i], got)
		}
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", &portal.HTTPError{Status: http.StatusNotFound}},
		{"application", &portal.ApplicationError{Code: 60204}},
		{"plain", errors.New("non-retryable")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), Config{Attempts: 3, Sleeper: func(time.Duration) {}}, func(int) error {
				attempts++
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected the original error, got %v", err)
			}
			if attempts != 1 {
				t.Fatalf("expected no retries, got %d attempts", attempts)
			}
		})
	}
}

func TestDoHonorsShouldRetry(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{
		Attempts: 3,
		ShouldRetry: func(err error) bool {
			return errors.Is(err, errStop)
		},
		Sleeper: func(time.Duration) {},
	}, func(int) error {
		attempts++
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("expected errStop, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

var errStop = errors.New("stop")

func TestDoUsesRetryAfter(t *testing.T) {
	attempts := 0
	var sleeps []time.Duration
	var notified []int
	err := Do(context.Background(), Config{
		Attempts:  3,
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		OnRetry: func(attempt int, _ error, _ time.Duration) {
			notified = append(notified, attempt)
		},
		Sleeper: func(d time.Duration) {
			sleeps = append(sleeps, d)
		},
	}, func(int) error {
		attempts++
		switch attempts {
		case 1:
			return &portal.HTTPError{Status: http.StatusTooManyRequests, RetryAfter: "2"}
		case 2:
			return &portal.HTTPError{Status: http.StatusServiceUnavailable, RetryAfter: "60"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	wantSleeps := []time.Duration{2 * time.Second, 5 * time.Second}
	if len(sleeps) != len(wantSleeps) {
		t.Fatalf("expected %d sleeps, got %d", len(wantSleeps), len(sleeps))
	}
	for i, got := range sleeps {
		if got != wantSleeps[i] {
			t.Fatalf("sleep %d: expected %v, got %v", i, wantSleeps[i], got)
		}
	}
	if len(notified) != 2 || notified[0] != 0 || notified[1] != 1 {
		t.Fatalf("unexpected OnRetry calls: %v", notified)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, Config{
		Attempts:  5,
		BaseDelay: 1 * time.Millisecond,
	}, func(int) error {
		attempts++
		cancel()
		return errTemporary
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected stop after first attempt due to cancel, got %d", attempts)
	}
}

func TestRetryAfterDelayParsesSeconds(t *testing.T) {
	fb := 5 * time.Second
	got := RetryAfterDelay("10", fb)
	if got != 10*time.Second {
		t.Fatalf("expected 10s, got %v", got)
	}
}

func TestRetryAfterDelayParsesHTTPDate(t *testing.T) {
	now := time.Now()
	header := now.Add(3 * time.Second).UTC().Format(http.TimeFormat)
	fb := 1 * time.Second
	got := RetryAfterDelay(header, fb)
	if got < 2*time.Second || got > 4*time.Second {
		t.Fatalf("expected about 3s, got %v", got)
	}
}

func TestRetryAfterDelayFallbackOnInvalid(t *testing.T) {
	fb := 2 * time.Second
	got := RetryAfterDelay("not-a-date", fb)
	if got != fb {
		t.Fatalf("expected fallback %v, got %v", fb, got)
	}
}

func TestDelay(t *testing.T) {
	tests := []struct {
		name     string
		attempt  int
		err      error
		expected time.Duration
	}{
		{"first", 0, errTemporary, 100 * time.Millisecond},
		{"third", 2, errTemporary, 400 * time.Millisecond},
		{"capped", 10, errTemporary, time.Second},
		{"retry after", 0, &portal.HTTPError{Status: 503, RetryAfter: "1"}, time.Second},
		{"retry after missing", 1, &portal.HTTPError{Status: 503}, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Delay(tt.attempt, tt.err, 100*time.Millisecond, time.Second); got != tt.expected {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	lastErr := &portal.HTTPError{Status: http.StatusBadGateway}
	err := Do(context.Background(), Config{
		Attempts:  2,
		BaseDelay: 1 * time.Millisecond,
	}, func(int) error {
		return lastErr
	})
	if !errors.Is(err, lastErr) {
		t.Fatalf("expected lastErr, got %v", err)
	}
}

func TestValue(t *testing.T) {
	attempts := 0
	got, err := Value(context.Background(), Config{Sleeper: func(time.Duration) {}}, func(int) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errTemporary
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || attempts != 2 {
		t.Fatalf("expected 'ok' after 2 attempts, got %q after %d", got, attempts)
	}
}
