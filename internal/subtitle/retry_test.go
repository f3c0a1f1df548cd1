package subtitle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"substream/subtitleservice/internal/storage"
)

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_SucceedsOnNthAttempt(t *testing.T) {
	var calls atomic.Int32
	transientErr := fmt.Errorf("connection reset")
	err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
		n := calls.Add(1)
		if n < 3 {
			return transientErr
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error after retries, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestRetryWithBackoff_ExhaustsAllAttempts(t *testing.T) {
	transientErr := fmt.Errorf("timeout")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return transientErr
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if err.Error() != "timeout" {
		t.Fatalf("expected last error 'timeout', got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}
	// Cancel after first attempt completes.
	err := RetryWithBackoff(ctx, cfg, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return fmt.Errorf("connection reset")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestRetryWithBackoff_NonTransientErrorFailsImmediately(t *testing.T) {
	nonTransientErr := fmt.Errorf("parse error: invalid JSON")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}
	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return nonTransientErr
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (non-transient should not retry), got %d", calls)
	}
}

func TestExponentialBlockDuration(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{3, 2 * time.Minute},  // 2min × 2^0 = 2min
		{4, 4 * time.Minute},  // 2min × 2^1 = 4min
		{5, 8 * time.Minute},  // 2min × 2^2 = 8min
		{6, 15 * time.Minute}, // 2min × 2^3 = 16min → capped at 15min
		{7, 15 * time.Minute}, // capped
		{10, 15 * time.Minute},
	}
	for _, tt := range tests {
		got := exponentialBlockDuration(tt.failures)
		if got != tt.want {
			t.Errorf("exponentialBlockDuration(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestCircuitBreakerExponentialBlock(t *testing.T) {
	svc := NewService([]Adapter{
		&fakeAdapter{name: "testprov"},
	}, storage.NewMemoryStore(), 2*time.Second)

	tag := "testprov"
	baseTime := time.Now()
	testErr := fmt.Errorf("connection timeout")

	// Record failures up to threshold (3).
	for i := 0; i < adapterFailureThreshold; i++ {
		svc.recordAdapterResult(tag, testErr, 100*time.Millisecond, baseTime)
	}

	// Adapter should be blocked for 2min (base duration).
	blocked, until, _ := svc.isAdapterBlocked(tag, baseTime)
	if !blocked {
		t.Fatal("expected adapter to be blocked after threshold failures")
	}
	if actual := until.Sub(baseTime); actual != adapterBlockBase {
		t.Fatalf("first block: expected %v, got %v", adapterBlockBase, actual)
	}

	// Simulate time passing, block expires, then another failure.
	afterBlock := until.Add(1 * time.Second)
	if blocked, _, _ = svc.isAdapterBlocked(tag, afterBlock); blocked {
		t.Fatal("adapter should be unblocked after block expires")
	}

	// One more failure (consecutive count is now threshold+1).
	svc.recordAdapterResult(tag, testErr, 100*time.Millisecond, afterBlock)

	blocked, until, _ = svc.isAdapterBlocked(tag, afterBlock)
	if !blocked {
		t.Fatal("expected adapter to be blocked after additional failure")
	}
	// consecutiveFailures = 4 → 2min × 2^1 = 4min
	if actual := until.Sub(afterBlock); actual != 4*time.Minute {
		t.Fatalf("second block: expected %v, got %v", 4*time.Minute, actual)
	}

	// Success should reset consecutive failures.
	svc.recordAdapterResult(tag, nil, 50*time.Millisecond, afterBlock.Add(1*time.Second))
	if blocked, _, _ = svc.isAdapterBlocked(tag, afterBlock.Add(2*time.Second)); blocked {
		t.Fatal("adapter should be unblocked after success")
	}

	// After success reset, next failure batch starts from base duration again.
	resetTime := afterBlock.Add(3 * time.Second)
	for i := 0; i < adapterFailureThreshold; i++ {
		svc.recordAdapterResult(tag, testErr, 100*time.Millisecond, resetTime)
	}
	blocked, until, _ = svc.isAdapterBlocked(tag, resetTime)
	if !blocked {
		t.Fatal("expected adapter to be blocked again")
	}
	if actual := until.Sub(resetTime); actual != adapterBlockBase {
		t.Fatalf("block after reset: expected %v, got %v", adapterBlockBase, actual)
	}
}
