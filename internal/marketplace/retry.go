package marketplace

import (
	"context"
	"math"
	"time"
)

// RetryPolicy defines exponential backoff parameters.
// MaxRetries counts retries after the first attempt; negative means unbounded.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy starts at the marketplace's historical 2s pause.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    8,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		return r.MaxDelay
	}
	d := time.Duration(delay)
	if d <= 0 || delay > math.MaxInt64 {
		d = r.MaxDelay
		if d <= 0 {
			d = time.Second
		}
	}
	return d
}

// Exhausted reports whether no retry may follow the given attempt.
func (r RetryPolicy) Exhausted(attempt int) bool {
	if r.MaxRetries < 0 {
		return false
	}
	return attempt > r.MaxRetries
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
