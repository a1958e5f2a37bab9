// Package worker holds small helpers shared by background jobs.
package worker

import (
	"context"
	"time"
)

// Retry calls fn until it succeeds, attempts run out, or ctx is done.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	return RetryIf(ctx, attempts, delay, func(error) bool { return true }, fn)
}

// RetryIf retries only while retryable reports true for the last error.
// The delay grows linearly with each attempt.
func RetryIf(ctx context.Context, attempts int, delay time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) || i == attempts-1 {
			return err
		}
		if delay > 0 {
			timer := time.NewTimer(delay * time.Duration(i+1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return err
}
