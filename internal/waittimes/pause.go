package waittimes

import (
	"context"
	"time"
)

// Sleep waits for the duration or until the context is done, whichever comes
// first. Both the retry backoff and the inter-cycle sleep go through here so
// a shutdown signal is honored immediately instead of after the full wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
