package reservation

import (
	"context"
	"math/rand"
	"time"

	"github.com/ahinestrog/campusbooks/internal/storage"
)

const (
	defaultMaxAttempts  = 4
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

// withRetry runs fn until it succeeds, fails with a non-transient error or
// runs out of attempts. Backoff is baseDelay * 2^(attempt-1) plus jitter.
// Only store lock contention is retried; a unit that failed that way rolled
// back completely, so running it again is safe.
func (e *Engine) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * defaultJitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
			if e.metrics != nil {
				e.metrics.DecisionRetries.Inc()
			}
			e.log.Debug().Int("attempt", attempt+1).Err(lastErr).Msg("retrying after transient store error")
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !storage.IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
