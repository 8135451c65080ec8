// Package util holds small helpers shared by the torctl packages.
package util

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (default: 3).
	MaxAttempts int

	// InitialDelay is the delay before the first retry (default: 100ms).
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries (default: 5s).
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (default: 2.0).
	Multiplier float64

	// Jitter adds up to 25% randomness to each delay.
	Jitter bool

	// IsRetryable determines if an error should be retried.
	// If nil, uses DefaultIsRetryable.
	IsRetryable func(error) bool
}

// DefaultRetryConfig returns defaults suited to HTTP fetches.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		IsRetryable:  DefaultIsRetryable,
	}
}

// DaemonStartupRetryConfig is used while a freshly spawned daemon opens its
// control port. The daemon typically needs a second or two.
func DaemonStartupRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  12,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		Jitter:       false,
		IsRetryable:  DefaultIsRetryable,
	}
}

// transientErrorPatterns contains substrings that indicate transient
// network failures worth retrying.
var transientErrorPatterns = []string{
	"resource temporarily unavailable",
	"connection refused",
	"connection reset",
	"connection timed out",
	"timeout",
	"temporary failure",
	"try again",
	"EAGAIN",
	"ECONNREFUSED",
	"ECONNRESET",
	"ETIMEDOUT",
	"broken pipe",
	"EOF",
	"network is unreachable",
	"no route to host",
	"actively refused",
}

// DefaultIsRetryable returns true for transient errors that might succeed on retry.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range transientErrorPatterns {
		if strings.Contains(errStr, strings.ToLower(pattern)) {
			return true
		}
	}

	return false
}

// Retry executes fn with exponential backoff retry logic.
// It returns the result of fn or the last error if all attempts fail.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = DefaultIsRetryable
	}

	var zero T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) || !cfg.IsRetryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := delay
		if cfg.Jitter {
			sleep += time.Duration(rand.Float64() * 0.25 * float64(delay))
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}

// PermanentError wraps an error to indicate it should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsPermanent checks if an error is marked as permanent.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// MarkPermanent wraps an error to indicate it should not be retried.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
