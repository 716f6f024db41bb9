package netutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryPolicy controls DoWithRetry. The zero value retries three times with
// a one second base backoff.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	} else if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = time.Second
	}
	return p
}

// NoRetry disables retries entirely.
var NoRetry = RetryPolicy{MaxRetries: -1}

// StatusError is returned when the server keeps answering with a retryable
// status (5xx or 429) after all attempts are used.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// DoWithRetry executes an HTTP request with exponential backoff retry
// for transient errors (network failures, 5xx, 429). buildReq is called once
// per attempt because request bodies cannot be replayed.
func DoWithRetry(ctx context.Context, client *http.Client, policy RetryPolicy, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	policy = policy.normalized()
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter.
			base := time.Duration(attempt*attempt) * policy.BaseBackoff
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			backoff := base + jitter
			logger.Warn("retrying request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt < policy.MaxRetries {
				logger.Warn("request failed, will retry", "error", err)
				continue
			}
			return nil, fmt.Errorf("request failed after %d retries: %w", policy.MaxRetries, err)
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
			if attempt < policy.MaxRetries {
				logger.Warn("server error, will retry",
					"status", resp.StatusCode, "body", string(body))
				continue
			}
			return nil, fmt.Errorf("server error after %d retries: %w", policy.MaxRetries, lastErr)
		}

		return resp, nil
	}

	return nil, lastErr
}
