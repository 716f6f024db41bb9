package provider

import (
	"context"
	"sync"
	"time"

	"mathsgpt/internal/domain"
)

// RateLimiter is a token bucket for throttling oracle calls. Hosted free
// tiers (Groq in particular) reject bursts with 429s.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastTime time.Time
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 5
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &RateLimiter{
		tokens:   float64(maxBurst),
		max:      float64(maxBurst),
		rate:     ratePerMinute / 60.0,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
		if rl.tokens > rl.max {
			rl.tokens = rl.max
		}
		rl.lastTime = now

		if rl.tokens >= 1.0 {
			rl.tokens -= 1.0
			rl.mu.Unlock()
			return nil
		}

		waitSec := (1.0 - rl.tokens) / rl.rate
		rl.mu.Unlock()

		timer := time.NewTimer(time.Duration(waitSec * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// WithRateLimit makes every Complete call take a token from rl first. The
// agent loop and the oracle-backed tools share one limiter because they
// share one upstream quota.
func WithRateLimit(oracle domain.Oracle, rl *RateLimiter) domain.Oracle {
	if rl == nil {
		return oracle
	}
	return domain.OracleFunc(func(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
		if err := rl.Wait(ctx); err != nil {
			return "", err
		}
		return oracle.Complete(ctx, prompt, opts)
	})
}
