package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "test-op", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	permanent := errors.New("permanent")
	err := Retry(context.Background(), "test-op", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return permanent
	})
	if err == nil {
		t.Fatal("Retry should fail once all attempts are exhausted")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("final error = %v, want it to wrap %v", err, permanent)
	}
}

func TestRetryAbortsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, "test-op", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("Retry with a cancelled context should return an error")
	}
	if attempts > 1 {
		t.Errorf("attempts = %d, want backoff to abort promptly after the first failure", attempts)
	}
}

func TestRetryOnAttemptReportsEachOutcome(t *testing.T) {
	var got []error
	attempts := 0
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnAttempt:    func(attempt int, err error) { got = append(got, err) },
	}
	Retry(context.Background(), "test-op", cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if len(got) != 3 {
		t.Fatalf("OnAttempt called %d times, want 3", len(got))
	}
	if got[0] == nil || got[1] == nil {
		t.Error("first two attempts should report their transient errors")
	}
	if got[2] != nil {
		t.Errorf("final attempt reported err=%v, want nil", got[2])
	}
}

func TestComputeDelayRespectsMaxDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10, JitterFraction: 0}
	d := computeDelay(5, cfg)
	if d > cfg.MaxDelay {
		t.Errorf("computeDelay() = %v, want capped at %v", d, cfg.MaxDelay)
	}
}
