package dispatch

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls how a failed background task (dark/flat
// acquisition, analysis run) is retried, grounded on the teacher's
// RetryPolicy but stripped of its provider-tier escalation: there is
// no equivalent of a model tier here, only a shell tool that either
// succeeds or logs a failure (spec.md §7's "background-task failures
// ... logged; never propagated into executor decisions").
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// DefaultPolicy returns a sane default retry policy for a stuck
// background task.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  5 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      2 * time.Minute,
	}
}

// NextRetry calculates the next delay and whether to retry at all.
// attempt is the current retry count for this task.
func (p RetryPolicy) NextRetry(attempt int) (delay time.Duration, shouldRetry bool) {
	if attempt < 0 {
		attempt = 0
	}
	if p.MaxRetries <= attempt {
		return 0, false
	}
	return backoffDelayWithFactor(attempt+1, p.InitialDelay, p.MaxDelay, p.BackoffFactor), true
}

// backoffDelayWithFactor returns duration * factor^(retries-1) capped
// at maxDelay with up to 10% jitter.
func backoffDelayWithFactor(retries int, base, maxDelay time.Duration, factor float64) time.Duration {
	if retries <= 0 || base <= 0 {
		return 0
	}
	if factor < 1.0 {
		factor = 1.0
	}

	backoff := float64(base) * math.Pow(factor, float64(retries-1))
	if math.IsNaN(backoff) || math.IsInf(backoff, 0) {
		if maxDelay > 0 {
			backoff = float64(maxDelay)
		} else {
			backoff = float64(base)
		}
	}
	if maxDelay > 0 && backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}
	if backoff < float64(base) {
		backoff = float64(base)
	}

	jitter := 1.0 + (rand.Float64() * 0.1)
	return time.Duration(backoff * jitter)
}
