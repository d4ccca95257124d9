package blobstore

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ajitpratap0/framefeed/pkg/errors"
)

// RetryPolicy defines retry behavior with exponential backoff and jitter.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// NewRetryPolicy creates a new retry policy with exponential backoff
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        10 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// Execute runs fn until it succeeds or attempts are exhausted.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return rp.ExecuteWithCondition(ctx, fn, func(error) bool { return true })
}

// ExecuteWithCondition runs fn, retrying only errors shouldRetry accepts.
// The final error keeps the type of the last failure.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt == rp.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(rp.calculateDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "retry cancelled")
		case <-timer.C:
		}
	}

	if rp.MaxAttempts > 1 {
		return errors.Wrap(lastErr, errorType(lastErr), "all attempts failed").
			WithDetail("attempts", rp.MaxAttempts)
	}
	return lastErr
}

func errorType(err error) errors.ErrorType {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Type
	}
	return errors.ErrorTypeInternal
}

// calculateDelay calculates the delay for a given attempt
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	if delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	// Apply randomization factor (jitter)
	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta
		delay = minDelay + (rand.Float64() * (maxDelay - minDelay)) //nolint:gosec // jitter only
	}

	return time.Duration(delay)
}

// GetDelay returns the delay for a specific attempt (for testing/preview)
func (rp *RetryPolicy) GetDelay(attempt int) time.Duration {
	return rp.calculateDelay(attempt)
}
