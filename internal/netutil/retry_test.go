package netutil

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var fastRetry = RetryPolicy{MaxRetries: 2, BaseBackoff: time.Millisecond}

func TestDoWithRetry_RecoversFromServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := DoWithRetry(context.Background(), srv.Client(), fastRetry, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestDoWithRetry_GivesUpWithStatusError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := DoWithRetry(context.Background(), srv.Client(), fastRetry, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, testLogger())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", statusErr.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", got)
	}
}

func TestDoWithRetry_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	resp, err := DoWithRetry(context.Background(), srv.Client(), fastRetry, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, testLogger())
	if err != nil {
		t.Fatalf("4xx should be returned to the caller, got error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized || calls.Load() != 1 {
		t.Fatalf("expected a single 401 response, got %d after %d calls", resp.StatusCode, calls.Load())
	}
}

func TestDoWithRetry_NoRetryPolicy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := DoWithRetry(context.Background(), srv.Client(), NoRetry, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, testLogger())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one call, got %d", got)
	}
}

func TestDoWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 3, BaseBackoff: time.Hour}
	done := make(chan error, 1)
	go func() {
		_, err := DoWithRetry(ctx, srv.Client(), policy, func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		}, testLogger())
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DoWithRetry did not honor cancellation")
	}
}
