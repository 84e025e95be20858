package waittimes

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

// ExponentialRetryPolicy drives the fetch retry loop with jittered backoff.
// A zero attempt budget means a single attempt with no retries.
type ExponentialRetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxRetries extra
// attempts after the first. Non-positive delays fall back to defaults.
func NewExponentialRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *ExponentialRetryPolicy {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ExponentialRetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// MaxRetries returns the retry budget after the initial attempt.
func (p *ExponentialRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry decides whether the just-failed attempt (1-based) may be
// retried. Statuses carry their own transience; cancellation never retries.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt > p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrUnexpectedContentType) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	// Anything else is a transport-level failure: timeouts, resets, DNS.
	return true
}

// Backoff returns the wait before the attempt following the given one.
// The base delay doubles per attempt, capped, with half the window jittered.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			delay = p.maxDelay
			break
		}
	}
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	half := delay / 2
	return half + p.randomJitter(delay-half)
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
