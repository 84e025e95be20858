// Package fetcher wraps a page Fetcher with retry, backoff, and response
// validation. The pipeline talks to this layer; the colly and headless
// packages underneath only know how to perform one attempt.
package fetcher

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atlwait/waitbot/internal/metrics"
	"github.com/atlwait/waitbot/internal/waittimes"
)

// SleepFunc pauses between attempts. Injected so tests can record delays
// instead of waiting them out.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrying decorates an inner Fetcher with the bot's retry policy. Transient
// failures are retried with jittered exponential backoff; permanent ones
// (most 4xx statuses, a non-HTML body) fail the fetch at once.
type Retrying struct {
	inner  waittimes.Fetcher
	policy *waittimes.ExponentialRetryPolicy
	sleep  SleepFunc
	logger *zap.Logger
}

// NewRetrying builds the decorator around inner.
func NewRetrying(inner waittimes.Fetcher, policy *waittimes.ExponentialRetryPolicy, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{
		inner:  inner,
		policy: policy,
		sleep:  waittimes.Sleep,
		logger: logger,
	}
}

// WithSleep overrides the inter-attempt pause. Tests use it to observe the
// backoff schedule without real delays.
func (r *Retrying) WithSleep(sleep SleepFunc) *Retrying {
	if sleep != nil {
		r.sleep = sleep
	}
	return r
}

// Fetch runs attempts until one succeeds, the policy gives up, or the
// context is canceled.
func (r *Retrying) Fetch(ctx context.Context, request waittimes.FetchRequest) (waittimes.FetchResponse, error) {
	var lastErr error
	attempts := 0
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return waittimes.FetchResponse{}, fmt.Errorf("fetch canceled: %w", err)
		}

		attempts = attempt
		resp, err := r.inner.Fetch(ctx, request)
		if err == nil {
			err = validateResponse(resp)
		}
		if err == nil {
			metrics.ObserveFetch("success", resp.Duration)
			if attempt > 1 {
				r.logger.Info("fetch recovered after retries",
					zap.String("url", request.URL),
					zap.Int("attempt", attempt))
			}
			return resp, nil
		}

		metrics.ObserveFetch("error", resp.Duration)
		lastErr = err
		if !r.policy.ShouldRetry(err, attempt) {
			break
		}

		delay := r.policy.Backoff(attempt)
		r.logger.Warn("fetch attempt failed, backing off",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.policy.MaxRetries()),
			zap.Duration("backoff", delay),
			zap.Error(err))
		metrics.ObserveFetchRetry()
		if err := r.sleep(ctx, delay); err != nil {
			return waittimes.FetchResponse{}, fmt.Errorf("fetch backoff interrupted: %w", err)
		}
	}

	return waittimes.FetchResponse{}, fmt.Errorf("fetch %s failed after %d attempt(s): %w", request.URL, attempts, lastErr)
}

// validateResponse rejects bodies the parser cannot work with. The page
// occasionally serves JSON error payloads under a 200 when its backend
// misbehaves.
func validateResponse(resp waittimes.FetchResponse) error {
	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		return fmt.Errorf("%w: no content type header", waittimes.ErrUnexpectedContentType)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	if mediaType != "text/html" {
		return fmt.Errorf("%w: %q", waittimes.ErrUnexpectedContentType, contentType)
	}
	return nil
}
