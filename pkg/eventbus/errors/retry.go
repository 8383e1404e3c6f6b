package errors

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// RetryableFunc optionally overrides the default retryability check.
	RetryableFunc func(error) bool
}

// DefaultRetry is the standard retry configuration for handlers. Handlers
// run on the posting goroutine, so backoff stays short.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     250 * time.Millisecond,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// RetryResult contains the result of a retry operation.
type RetryResult[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the final error if all attempts failed.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent retrying.
	Duration time.Duration
}

// Enabled reports whether the configuration makes more than one attempt.
func (c RetryConfig) Enabled() bool {
	return c.MaxAttempts > 1
}

// Do runs fn with retries and returns the last error unwrapped. Unlike
// WithRetryContext it does not wrap the failure in a CategorizedError, so
// callers matching on the handler's own error types see them unchanged.
func Do(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) (attempts int, err error) {
	if !cfg.Enabled() {
		return 1, fn(ctx)
	}
	res := WithRetryContext(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if res.Err == nil {
		return res.Attempts, nil
	}
	var catErr *CategorizedError
	if errors.As(res.Err, &catErr) && catErr.Err != nil {
		return res.Attempts, catErr.Err
	}
	return res.Attempts, res.Err
}

// WithRetryContext executes a function with retries, respecting context cancellation.
func WithRetryContext[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func(context.Context) (T, error),
) RetryResult[T] {
	start := time.Now()
	schedule := newSchedule(cfg)
	var lastErr error

	isRetryable := cfg.RetryableFunc
	if isRetryable == nil {
		isRetryable = func(err error) bool {
			cat := Categorize(err)
			return cat == CategoryTransient
		}
	}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		// Check context before each attempt
		if err := ctx.Err(); err != nil {
			return RetryResult[T]{
				Err:      &CategorizedError{Err: err, Category: CategoryPermanent, Context: "context cancelled"},
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return RetryResult[T]{
				Value:    result,
				Attempts: attempt + 1,
				Duration: time.Since(start),
			}
		}

		lastErr = err

		// Check if we should retry
		if !isRetryable(err) {
			return RetryResult[T]{
				Err: &CategorizedError{
					Err:      err,
					Category: Categorize(err),
					Retries:  attempt + 1,
				},
				Attempts: attempt + 1,
				Duration: time.Since(start),
			}
		}

		// Don't sleep after the last attempt
		if attempt < cfg.MaxAttempts-1 {
			sleepDuration := schedule.NextBackOff()
			select {
			case <-ctx.Done():
				return RetryResult[T]{
					Err:      &CategorizedError{Err: ctx.Err(), Category: CategoryPermanent, Context: "context cancelled during backoff"},
					Attempts: attempt + 1,
					Duration: time.Since(start),
				}
			case <-time.After(sleepDuration):
			}
		}
	}

	return RetryResult[T]{
		Err: &CategorizedError{
			Err:      lastErr,
			Category: Categorize(lastErr),
			Retries:  cfg.MaxAttempts,
			Context:  "max retries exceeded",
		},
		Attempts: cfg.MaxAttempts,
		Duration: time.Since(start),
	}
}

// newSchedule builds the exponential backoff schedule for cfg. The schedule
// never gives up on its own; MaxAttempts bounds the loop.
func newSchedule(cfg RetryConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = cfg.BackoffFactor
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = cfg.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// RetryOption configures retry behavior.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.MaxAttempts = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.InitialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.MaxBackoff = d
	}
}

// WithBackoffFactor sets the backoff multiplier.
func WithBackoffFactor(f float64) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.BackoffFactor = f
	}
}

// WithJitter sets the jitter factor.
func WithJitter(j float64) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.Jitter = j
	}
}

// WithRetryableFunc sets a custom retryability check.
func WithRetryableFunc(fn func(error) bool) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.RetryableFunc = fn
	}
}

// NewRetryConfig creates a retry configuration with the given options.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
