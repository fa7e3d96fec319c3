package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"i/o timeout", errors.New("i/o timeout"), true},
		{"dns failure", errors.New("dial tcp: lookup vault.example: no such host"), true},
		{"503 error", errors.New("503 Service Unavailable"), true},
		{"429 error", errors.New("429 Too Many Requests"), true},
		{"wrapped transient", fmt.Errorf("get secret: %w", errors.New("bad gateway")), true},
		{"permission denied", errors.New("permission denied"), false},
		{"HTTP 404", errors.New("404 Not Found"), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", fmt.Errorf("call: %w", context.DeadlineExceeded), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.expected {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsTransient_ResponseError(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusInternalServerError, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := fmt.Errorf("keyvault: %w", newResponseError(tt.status))
			if got := IsTransient(err); got != tt.want {
				t.Errorf("IsTransient(status %d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func newResponseError(status int) error {
	req, _ := http.NewRequest(http.MethodGet, "https://myvault.vault.azure.net/secrets/x", nil)
	resp := &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(`{"error":{"code":"Test"}}`)),
		Request:    req,
	}
	return runtime.NewResponseError(resp)
}

func TestIsTransient_NetError(t *testing.T) {
	t.Run("net.OpError timeout message", func(t *testing.T) {
		err := &net.OpError{Op: "read", Net: "tcp", Err: fmt.Errorf("i/o timeout")}
		if !IsTransient(err) {
			t.Error("IsTransient should detect net.OpError (timeout) as transient")
		}
	})

	t.Run("net.OpError permanent", func(t *testing.T) {
		err := &net.OpError{Op: "connect", Net: "tcp", Err: fmt.Errorf("permission denied")}
		if IsTransient(err) {
			t.Error("IsTransient should not detect net.OpError (permission denied) as transient")
		}
	})
}

func TestNewRetryConfig(t *testing.T) {
	cfg := NewRetryConfig()

	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %v, want %v", cfg.MaxRetries, DefaultMaxRetries)
	}
	if cfg.BaseDelay != DefaultBaseDelay {
		t.Errorf("BaseDelay = %v, want %v", cfg.BaseDelay, DefaultBaseDelay)
	}
	if cfg.MaxDelay != DefaultMaxDelay {
		t.Errorf("MaxDelay = %v, want %v", cfg.MaxDelay, DefaultMaxDelay)
	}
	if cfg.JitterFactor != DefaultJitterFactor {
		t.Errorf("JitterFactor = %v, want %v", cfg.JitterFactor, DefaultJitterFactor)
	}
	if cfg.Retryable == nil {
		t.Error("Retryable should default to IsTransient")
	}
}

func TestRetryOptions(t *testing.T) {
	t.Run("negative retries ignored", func(t *testing.T) {
		cfg := NewRetryConfig(WithMaxRetries(-1))
		if cfg.MaxRetries != DefaultMaxRetries {
			t.Errorf("MaxRetries = %v, want %v", cfg.MaxRetries, DefaultMaxRetries)
		}
	})

	t.Run("jitter out of range ignored", func(t *testing.T) {
		cfg := NewRetryConfig(WithJitterFactor(1.5))
		if cfg.JitterFactor != DefaultJitterFactor {
			t.Errorf("JitterFactor = %v, want %v", cfg.JitterFactor, DefaultJitterFactor)
		}
	})

	t.Run("all options", func(t *testing.T) {
		cfg := NewRetryConfig(
			WithMaxRetries(5),
			WithBaseDelay(time.Second),
			WithMaxDelay(10*time.Second),
			WithJitterFactor(0.5),
		)
		if cfg.MaxRetries != 5 || cfg.BaseDelay != time.Second || cfg.MaxDelay != 10*time.Second || cfg.JitterFactor != 0.5 {
			t.Errorf("unexpected config %+v", cfg)
		}
	})
}

func TestRetry_TransientError(t *testing.T) {
	cfg := NewRetryConfig(WithMaxRetries(3), WithBaseDelay(time.Millisecond))
	callCount := 0

	result, err := Retry(context.Background(), cfg, func() (string, error) {
		callCount++
		if callCount < 3 {
			return "", errors.New("connection refused")
		}
		return "success", nil
	})

	if err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}
	if result != "success" {
		t.Errorf("Retry() result = %v, want 'success'", result)
	}
	if callCount != 3 {
		t.Errorf("Retry() called %v times, want 3", callCount)
	}
}

func TestRetry_PermanentError(t *testing.T) {
	cfg := NewRetryConfig(WithMaxRetries(3), WithBaseDelay(time.Millisecond))
	callCount := 0

	_, err := Retry(context.Background(), cfg, func() (int, error) {
		callCount++
		return 0, errors.New("permission denied")
	})

	if err == nil || err.Error() != "permission denied" {
		t.Errorf("Retry() error = %v, want permission denied", err)
	}
	if callCount != 1 {
		t.Errorf("Retry() called %v times, want 1", callCount)
	}
}

func TestRetry_ExhaustedRetries(t *testing.T) {
	cfg := NewRetryConfig(WithMaxRetries(2), WithBaseDelay(time.Millisecond))
	callCount := 0

	err := RetryWithoutResult(context.Background(), cfg, func() error {
		callCount++
		return errors.New("service unavailable")
	})

	if err == nil {
		t.Fatal("RetryWithoutResult() error = nil, want error")
	}
	if callCount != 3 {
		t.Errorf("called %v times, want 3", callCount)
	}
}

func TestRetry_ContextCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := RetryWithoutResult(ctx, NewRetryConfig(), func() error {
		called = true
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn should not be called with a cancelled context")
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	cfg := NewRetryConfig(WithMaxRetries(10), WithBaseDelay(time.Second), WithMaxDelay(time.Second))
	start := time.Now()
	err := RetryWithoutResult(ctx, cfg, func() error {
		return errors.New("connection reset")
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Error("retry loop did not stop when the context ended")
	}
}

func TestCustomRetryableFunc(t *testing.T) {
	cfg := NewRetryConfig(
		WithMaxRetries(2),
		WithBaseDelay(0),
		WithRetryableFunc(func(err error) bool { return strings.Contains(err.Error(), "locked") }),
	)
	callCount := 0

	err := RetryWithoutResult(context.Background(), cfg, func() error {
		callCount++
		return errors.New("vault locked")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 3 {
		t.Errorf("called %v times, want 3", callCount)
	}
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{62, time.Second},
		{200, time.Second},
		{5000, time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			if got := calculateDelay(tt.attempt, cfg); got != tt.want {
				t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestCalculateDelay_NoMaxDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, JitterFactor: 0.1}

	prev := time.Duration(0)
	for _, attempt := range []int{1, 10, 40, 63, 64, 200, 5000} {
		got := calculateDelay(attempt, cfg)
		if got <= 0 {
			t.Fatalf("calculateDelay(%d) = %v, want a positive delay", attempt, got)
		}
		if got < prev/2 {
			t.Errorf("calculateDelay(%d) = %v, shrank from %v", attempt, got, prev)
		}
		prev = got
	}
}

func TestRetry_ManyRetriesBackOff(t *testing.T) {
	cfg := NewRetryConfig(WithMaxRetries(100), WithBaseDelay(time.Hour), WithMaxDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var calls atomic.Int64
	err := RetryWithoutResult(ctx, cfg, func() error {
		calls.Add(1)
		return errors.New("503 service unavailable")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	// The first retry is immediate, the second waits an hour.
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestRetryConfigWith(t *testing.T) {
	base := NewRetryConfig(WithMaxRetries(2))
	pred := func(error) bool { return false }

	got := base.With(WithMaxRetries(5), WithRetryableFunc(pred))
	if got.MaxRetries != 5 || got.Retryable(errors.New("503 service unavailable")) {
		t.Errorf("With() = %+v", got)
	}
	if base.MaxRetries != 2 || !base.Retryable(errors.New("503 service unavailable")) {
		t.Error("With() modified the receiver")
	}
}

func TestCalculateDelay_WithJitter(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFactor: 0.5}

	for i := 0; i < 50; i++ {
		got := calculateDelay(1, cfg)
		if got < 100*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("calculateDelay with jitter = %v, want within [100ms, 300ms]", got)
		}
	}
}

func TestRetry_ConcurrentSafety(t *testing.T) {
	cfg := NewRetryConfig(WithMaxRetries(2), WithBaseDelay(time.Millisecond))
	var calls atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = RetryWithoutResult(context.Background(), cfg, func() error {
				calls.Add(1)
				return errors.New("timeout talking to vault: i/o timeout")
			})
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 60 {
		t.Errorf("total calls = %d, want 60", got)
	}
}
