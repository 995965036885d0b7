package jobs

import (
	"context"
	"math"
	"time"

	"github.com/user/gopherfeed/internal/types"
)

// RetryPolicy controls how transient failures are retried with
// exponential backoff.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the schedule used for job status polling:
// 30 attempts, 2s initial delay, 2x multiplier, 30s max delay.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  30,
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// Decide is a pure function from (attempt, error) to the next step:
// the delay to wait before retrying, or ok=false to abort. Permanent
// errors abort on any attempt; transient errors abort once the attempt
// count exceeds MaxAttempts.
func (p *RetryPolicy) Decide(attempt int, err error) (time.Duration, bool) {
	if err == nil || types.IsPermanent(err) {
		return 0, false
	}
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	return p.NextDelay(attempt), true
}

// NextDelay returns the backoff delay for the given attempt number
// (1-indexed): InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
// Returns ctx.Err() on cancellation so callers stop issuing new work.
func (p *RetryPolicy) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs fn under the policy: on a transient error it sleeps the
// scheduled delay and retries; on a permanent error or exhausted budget
// it returns immediately. Cancellation interrupts any in-flight sleep.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		delay, retry := p.Decide(attempt, lastErr)
		if !retry {
			return lastErr
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}
