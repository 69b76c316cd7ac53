package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStrategySucceedsFirstAttempt(t *testing.T) {
	strategy := NewRetryStrategy(RetryPolicy{MaxAttempts: 3, BackoffMultiplier: 1})

	calls := 0
	attempts, err := strategy.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("expected 1 attempt, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestRetryStrategyRetriesUntilSuccess(t *testing.T) {
	strategy := NewRetryStrategy(*fastRetry(5))

	calls := 0
	attempts, err := strategy.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStrategyExhaustsAttempts(t *testing.T) {
	strategy := NewRetryStrategy(*fastRetry(3))

	lastErr := errors.New("always failing")
	calls := 0
	attempts, err := strategy.Execute(context.Background(), func(context.Context) error {
		calls++
		return lastErr
	})
	if !errors.Is(err, lastErr) {
		t.Fatalf("expected last operation error, got %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("expected exactly 3 attempts, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestRetryStrategyTerminalErrorStopsImmediately(t *testing.T) {
	strategy := NewRetryStrategy(*fastRetry(5))

	calls := 0
	terminal := NewPermanentError("malformed query", nil)
	attempts, err := strategy.Execute(context.Background(), func(context.Context) error {
		calls++
		return terminal
	})
	if !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("terminal error must not be retried, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestRetryStrategyCustomClassifier(t *testing.T) {
	strategy := NewRetryStrategy(*fastRetry(5)).
		WithClassifier(func(err error) bool { return false })

	calls := 0
	attempts, err := strategy.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("would normally retry")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("classifier override must stop retries, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestRetryStrategyBackoffGrowthAndCap(t *testing.T) {
	strategy := NewRetryStrategy(RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    10 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        25 * time.Millisecond,
	})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 25 * time.Millisecond}, // 40ms capped
		{4, 25 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := strategy.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryStrategyConstantBackoff(t *testing.T) {
	strategy := NewRetryStrategy(RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    7 * time.Millisecond,
		BackoffMultiplier: 1,
	})

	for attempt := 1; attempt <= 3; attempt++ {
		if got := strategy.backoff(attempt); got != 7*time.Millisecond {
			t.Errorf("backoff(%d) = %s, want 7ms", attempt, got)
		}
	}
}

func TestRetryStrategyCancelledDuringBackoff(t *testing.T) {
	strategy := NewRetryStrategy(RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	opErr := errors.New("failing")

	start := time.Now()
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	attempts, err := strategy.Execute(ctx, func(context.Context) error {
		return opErr
	})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancellation must interrupt backoff sleep, took %s", elapsed)
	}
	if !errors.Is(err, opErr) {
		t.Fatalf("expected last operation error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestRetryStrategyCancelledBeforeFirstAttempt(t *testing.T) {
	strategy := NewRetryStrategy(*fastRetry(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := strategy.Execute(ctx, func(context.Context) error {
		calls++
		return nil
	})
	if err == nil {
		t.Fatal("expected context error")
	}
	if attempts != 0 || calls != 0 {
		t.Errorf("cancelled context must not run the operation, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestNoRetrySingleAttempt(t *testing.T) {
	strategy := NoRetry()

	calls := 0
	attempts, err := strategy.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("failure")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("NoRetry must perform exactly one attempt, got attempts=%d calls=%d", attempts, calls)
	}
}
