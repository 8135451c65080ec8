package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		IsRetryable:  DefaultIsRetryable,
	}
}

func TestRetry_Success(t *testing.T) {
	callCount := 0
	result, err := Retry(context.Background(), DefaultRetryConfig(), func() (string, error) {
		callCount++
		return "success", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("expected 'success', got %q", result)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_EventualSuccess(t *testing.T) {
	callCount := 0
	result, err := Retry(context.Background(), fastConfig(5), func() (int, error) {
		callCount++
		if callCount < 3 {
			return 0, errors.New("dial tcp 127.0.0.1:9451: connect: connection refused")
		}
		return 7, nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != 7 {
		t.Errorf("expected 7, got %d", result)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetry_MaxAttemptsExceeded(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastConfig(2), func() (string, error) {
		callCount++
		return "", errors.New("connection reset by peer")
	})

	if err == nil {
		t.Error("expected error after max attempts")
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls, got %d", callCount)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastConfig(5), func() (string, error) {
		callCount++
		return "", errors.New("HTTP 404 Not Found")
	})

	if err == nil {
		t.Error("expected error for non-retryable error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call (no retry), got %d", callCount)
	}
}

func TestRetry_PermanentError(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastConfig(5), func() (string, error) {
		callCount++
		return "", MarkPermanent(errors.New("connection refused but give up"))
	})

	if err == nil {
		t.Error("expected error for permanent error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call (no retry for permanent), got %d", callCount)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	callCount := 0
	_, err := Retry(ctx, DefaultRetryConfig(), func() (string, error) {
		callCount++
		return "success", nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount != 0 {
		t.Errorf("expected 0 calls, got %d", callCount)
	}
}

func TestDefaultIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial: connection refused"), true},
		{"windows refused", errors.New("No connection could be made because the target machine actively refused it."), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"not found", errors.New("file not found"), false},
		{"case insensitive", errors.New("CONNECTION REFUSED"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultIsRetryable(tt.err); got != tt.expected {
				t.Errorf("DefaultIsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestMarkPermanent(t *testing.T) {
	original := errors.New("original error")
	permanent := MarkPermanent(original)

	if !IsPermanent(permanent) {
		t.Error("expected IsPermanent to return true")
	}
	if !errors.Is(permanent, original) {
		t.Error("expected permanent error to wrap original")
	}
	if permanent.Error() != "original error" {
		t.Errorf("expected error message to be preserved, got %q", permanent.Error())
	}
	if MarkPermanent(nil) != nil {
		t.Error("expected MarkPermanent(nil) to return nil")
	}
}
