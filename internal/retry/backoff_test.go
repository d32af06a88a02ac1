package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     false,
	}
}

func TestRetryWithBackoffSucceedsFirstTry(t *testing.T) {
	result := RetryWithBackoff(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		return nil
	})
	if !result.Success || result.Attempts != 1 {
		t.Errorf("expected immediate success, got %+v", result)
	}
}

func TestRetryWithBackoffRecovers(t *testing.T) {
	calls := 0
	result := RetryWithBackoff(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if !result.Success {
		t.Fatalf("expected eventual success, got %+v", result)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestRetryWithBackoffExhausts(t *testing.T) {
	wantErr := errors.New("still broken")
	result := RetryWithBackoff(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		return wantErr
	})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != 4 {
		t.Errorf("expected 4 attempts (1 + 3 retries), got %d", result.Attempts)
	}
	if !errors.Is(result.LastError, wantErr) {
		t.Errorf("unexpected last error: %v", result.LastError)
	}
}

func TestRetryWithBackoffHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	result := RetryWithBackoff(ctx, fastConfig(), zerolog.Nop(), func() error {
		calls++
		cancel()
		return errors.New("failing")
	})
	if result.Success {
		t.Fatal("expected failure after cancellation")
	}
	if calls > 2 {
		t.Errorf("cancellation should stop retries quickly, got %d calls", calls)
	}
}

func TestCalculateDelayCapped(t *testing.T) {
	config := fastConfig()
	for attempt := 0; attempt < 10; attempt++ {
		if d := calculateDelay(config, attempt); d > config.MaxDelay {
			t.Errorf("attempt %d: delay %v exceeds max %v", attempt, d, config.MaxDelay)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	retryable := []string{
		"connection refused",
		"rate limit exceeded",
		"Gemini API error (status 503): overloaded",
		"context deadline exceeded",
	}
	for _, msg := range retryable {
		if !IsRetryableError(errors.New(msg)) {
			t.Errorf("expected %q to be retryable", msg)
		}
	}

	permanent := []string{
		"invalid API key",
		"Gemini API error (status 400): bad request",
		"meeting not found",
	}
	for _, msg := range permanent {
		if IsRetryableError(errors.New(msg)) {
			t.Errorf("expected %q to be permanent", msg)
		}
	}
	if IsRetryableError(nil) {
		t.Error("nil is not retryable")
	}
}
