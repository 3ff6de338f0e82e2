package gateway

import (
	"time"
)

// RetryPolicy computes bounded exponential backoff delays for transient
// failures. Rotation-triggering errors (auth, rate limit) retry without
// delay and never consult the policy.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy matches the gateway config defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
	}
}

// Delay returns min(initial * 2^attempt, max) for a zero-based attempt index
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := p.InitialDelay
	for range attempt {
		delay *= 2
		if delay >= p.MaxDelay || delay < 0 {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
