// Package ratelimit decides whether a caller may proceed.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter interface {
	CheckLimit(ctx context.Context, key string) (Decision, error)
}

type Config struct {
	// Backend is "local" or "redis".
	Backend string
	// RPS and Burst configure the local token bucket.
	RPS   float64
	Burst int
	// Window and Requests configure the redis fixed window.
	Window   time.Duration
	Requests int
}
