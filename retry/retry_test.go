package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testConfig = Config{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2.0,
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), testConfig, nil, func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Do = %q, %v", got, err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), testConfig, nil, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("Do = %d, %v", got, err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Do(context.Background(), testConfig, nil, func() (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped original error, got %v", err)
	}
	if calls != testConfig.MaxAttempts {
		t.Errorf("Expected %d calls, got %d", testConfig.MaxAttempts, calls)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	_, err := Do(context.Background(), testConfig, func(err error) bool { return false }, func() (int, error) {
		calls++
		return 0, fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Non-retryable errors must not retry, got %d calls", calls)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, testConfig, nil, func() (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	if err == nil {
		t.Fatal("Expected error from cancelled context")
	}
	if calls != 0 {
		t.Errorf("Cancelled context must not run fn, got %d calls", calls)
	}
}
