// Package recovery retries calls to remote secret backends.
//
// IsTransient, Retry and RetryWithoutResult hold no shared state apart from
// the jitter RNG, which is mutex guarded.
package recovery

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"errors"
	"math"
	mathrand "math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

)

// Default retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = 200 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultJitterFactor = 0.1
)

// maxDuration is the largest delay as a float64.
const maxDuration = float64(math.MaxInt64)

var (
	rngMu sync.Mutex
	rng   *mathrand.Rand
)

func init() {
	var seed int64
	if err := binary.Read(cryptorand.Reader, binary.BigEndian, &seed); err != nil {
		seed = time.Now().UnixNano()
	}
	rng = mathrand.New(mathrand.NewSource(seed))
}

// Lowercase message fragments that mark an error as worth retrying.
var transientPatterns = []string{
	"429 too many requests",
	"500 internal server error",
	"503 service unavailable",
	"504 gateway timeout",
	"bad gateway",
	"connection refused",
	"connection reset",
	"connection timeout",
	"econnrefused",
	"ehostunreach",
	"enetunreach",
	"etimedout",
	"gateway timeout",
	"i/o timeout",
	"network is unreachable",
	"no such host",
	"service unavailable",
	"temporary failure",
	"too many requests",
}

// IsTransient reports whether err is likely to go away on retry. Azure
// response errors are judged by status code; other errors by message and by
// the net.Error Timeout/Temporary methods.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return isTransientStatus(respErr.StatusCode)
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	var netErr interface {
		Timeout() bool
		Temporary() bool
	}
	if errors.As(err, &netErr) {
		return netErr.Temporary() || netErr.Timeout()
	}

	return false
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxRetries   int           // retries after the first attempt
	BaseDelay    time.Duration // delay before the second retry, doubled each time
	MaxDelay     time.Duration
	JitterFactor float64 // 0 disables jitter
	Retryable    func(error) bool
}

// RetryOption applies a configuration option.
type RetryOption func(*RetryConfig)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) RetryOption {
	return func(c *RetryConfig) {
		if n >= 0 {
			c.MaxRetries = n
		}
	}
}

// WithBaseDelay sets the base delay between retries.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *RetryConfig) {
		if d >= 0 {
			c.BaseDelay = d
		}
	}
}

// WithMaxDelay sets the maximum delay between retries.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(c *RetryConfig) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithJitterFactor sets the jitter factor for randomizing delays.
func WithJitterFactor(f float64) RetryOption {
	return func(c *RetryConfig) {
		if f >= 0 && f <= 1 {
			c.JitterFactor = f
		}
	}
}

// WithRetryableFunc replaces IsTransient as the retry predicate.
func WithRetryableFunc(f func(error) bool) RetryOption {
	return func(c *RetryConfig) {
		if f != nil {
			c.Retryable = f
		}
	}
}

// With returns a copy of c with opts applied.
func (c RetryConfig) With(opts ...RetryOption) RetryConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewRetryConfig creates a RetryConfig with default values.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
		Retryable:    IsTransient,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Retry calls fn until it succeeds, returns a non-retryable error, runs out
// of retries or ctx ends. It returns the last result and error.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	err := retryLoop(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// RetryWithoutResult is Retry for functions that only return an error.
func RetryWithoutResult(ctx context.Context, cfg RetryConfig, fn func() error) error {
	return retryLoop(ctx, cfg, fn)
}

func retryLoop(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries || !retryable(err) {
			return err
		}

		delay := calculateDelay(attempt, cfg)
		if delay <= 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// calculateDelay returns the wait before retry number attempt+1. The first
// retry is immediate; later ones back off exponentially up to MaxDelay. The
// arithmetic stays in float64 until the result fits a Duration.
func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	if attempt == 0 || cfg.BaseDelay == 0 {
		return 0
	}

	d := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if cfg.MaxDelay > 0 {
		d = math.Min(d, float64(cfg.MaxDelay))
	}
	d = math.Min(d, maxDuration)

	if cfg.JitterFactor > 0 {
		jitterRange := d * cfg.JitterFactor
		if ms := int64(jitterRange / float64(time.Millisecond)); ms > 0 {
			rngMu.Lock()
			jitterMs := rng.Int63n(ms)
			rngMu.Unlock()
			d += float64(time.Duration(jitterMs)*time.Millisecond) - jitterRange/2
		}
		d = math.Max(d, float64(time.Millisecond))
	}

	if d >= maxDuration {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
