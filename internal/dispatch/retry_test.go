package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicyNextRetry(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  5 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      30 * time.Second,
	}

	delay, shouldRetry := policy.NextRetry(0)
	require.True(t, shouldRetry)
	require.InDelta(t, 5.25, delay.Seconds(), 0.6)

	delay, shouldRetry = policy.NextRetry(1)
	require.True(t, shouldRetry)
	require.InDelta(t, 10.5, delay.Seconds(), 1.1)

	delay, shouldRetry = policy.NextRetry(2)
	require.True(t, shouldRetry)
	require.InDelta(t, 21.0, delay.Seconds(), 2.2)

	_, shouldRetry = policy.NextRetry(3)
	require.False(t, shouldRetry)
}

func TestDefaultPolicyIsUsable(t *testing.T) {
	p := DefaultPolicy()
	delay, shouldRetry := p.NextRetry(0)
	require.True(t, shouldRetry)
	require.Positive(t, delay)
}
