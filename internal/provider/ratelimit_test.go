package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"mathsgpt/internal/domain"
)

func TestRateLimiter_ImmediateBurst(t *testing.T) {
	rl := NewRateLimiter(5, 60.0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("burst token %d failed: %v", i, err)
		}
	}
}

func TestRateLimiter_WaitsAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 600.0) // 10/sec refill

	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected some wait time, got %v", elapsed)
	}
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	rl := NewRateLimiter(1, 1.0)
	ctx, cancel := context.WithCancel(context.Background())

	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRateLimiter_DefaultValues(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.max != 5 {
		t.Fatalf("expected default burst 5, got %v", rl.max)
	}
	if rl.rate != 0.5 {
		t.Fatalf("expected 30/min default, got %v/s", rl.rate)
	}
}

func TestWithRateLimit_GatesOracle(t *testing.T) {
	calls := 0
	base := domain.OracleFunc(func(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
		calls++
		return "ok", nil
	})
	limited := WithRateLimit(base, NewRateLimiter(1, 1.0))

	if _, err := limited.Complete(context.Background(), "p", domain.CompletionOptions{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := limited.Complete(ctx, "p", domain.CompletionOptions{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the limiter to block until the deadline, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("oracle must not be called without a token, got %d calls", calls)
	}
}

func TestWithRateLimit_NilLimiter(t *testing.T) {
	base := domain.OracleFunc(func(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
		return prompt, nil
	})
	if got, _ := WithRateLimit(base, nil).Complete(context.Background(), "x", domain.CompletionOptions{}); got != "x" {
		t.Fatalf("nil limiter must pass through, got %q", got)
	}
}
