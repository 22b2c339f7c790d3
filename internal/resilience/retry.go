package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig drives retries with capped exponential backoff and full jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first call.
	// A value of 1 disables retries. Default: 3.
	MaxAttempts int

	// BaseDelay is the backoff ceiling for the first retry; it doubles each
	// attempt. Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff ceiling. Default: 30s.
	MaxDelay time.Duration

	// ShouldRetry decides whether an error is worth retrying. Nil means
	// IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry fires before each backoff sleep with the attempt number that
	// just failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the retry policy used for model API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// DoVal calls fn until it succeeds, the error is non-transient, attempts run
// out, or ctx is done. The last error is returned as-is so callers can wrap
// it with their own context.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) || attempt == cfg.MaxAttempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// Do is DoVal for functions with no return value.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// backoff picks a uniform random delay in [0, min(MaxDelay, BaseDelay*2^(attempt-1))].
func backoff(attempt int, cfg RetryConfig) time.Duration {
	ceiling := cfg.BaseDelay << (attempt - 1)
	if ceiling <= 0 || ceiling > cfg.MaxDelay {
		ceiling = cfg.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// RetryLogger returns an OnRetry callback that logs each failed attempt.
func RetryLogger(provider, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying provider call",
			zap.String("provider", provider),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
