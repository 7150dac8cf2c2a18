package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Schedule computes the attempt sequence pinned by the spec's retry formula:
//
//	delay(k) = min(MaxDelay, InitialDelay * BackoffMultiplier^(k-1))   (k-th retry, 1-indexed)
//
// so the wait before attempt n (n >= 2) is delay(n-1).
//
// It is backed by cenkalti/backoff's ExponentialBackOff with jitter
// disabled, so NextBackOff() reproduces the formula deterministically.
type Schedule struct {
	MaxAttempts int
	backoff     *backoff.ExponentialBackOff
}

// NewSchedule builds a Schedule from the spec's RetrySpec-shaped fields.
func NewSchedule(maxAttempts int, initialDelay, maxDelay, backoffMultiplier float64) *Schedule {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     secondsToDuration(initialDelay),
		MaxInterval:         secondsToDuration(maxDelay),
		Multiplier:          backoffMultiplier,
		RandomizationFactor: 0,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return &Schedule{MaxAttempts: maxAttempts, backoff: b}
}

// DelayForAttempt returns the effective delay before attempt k (1-indexed),
// for k in [2, MaxAttempts] (attempt 1 never waits): delay(k-1), so attempt
// 2 waits InitialDelay.
func (s *Schedule) DelayForAttempt(k int) time.Duration {
	if k <= 1 {
		return 0
	}
	var d time.Duration
	for i := 1; i < k; i++ {
		d = s.backoff.NextBackOff()
	}
	s.backoff.Reset()
	return d
}

// Sleep waits for d or until ctx is done, whichever comes first. It returns
// ctx.Err() if interrupted, matching the "interruptible by the step's
// deadline" requirement of §5.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * float64(time.Second)))
}
