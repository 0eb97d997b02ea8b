package notion

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/starford/ehwaz/internal/apperr"
)

// RetryOptions configures WithRetry. Zero values pick the defaults.
type RetryOptions struct {
	Retries     int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	IsRetriable func(error) bool
}

const (
	defaultRetries   = 6
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 15 * time.Second

	// throttleFloor is the minimum wait after a quota rejection regardless
	// of the computed backoff.
	throttleFloor = 5 * time.Second
)

// WithRetry invokes op, retrying transient failures with jittered exponential
// backoff: min(maxDelay, baseDelay * 2^(attempt-1) * jitter), jitter in
// [0.75, 1.0], floored at 5s for throttles. This is the lighter mechanism for
// call sites that do not need queue-based serialization; an operation should
// go through either this or the scheduler, not both.
func WithRetry[T any](ctx context.Context, op func(context.Context) (T, error), opts RetryOptions) (T, error) {
	retries := opts.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	isRetriable := opts.IsRetriable
	if isRetriable == nil {
		isRetriable = apperr.Retriable
	}

	var zero T
	for attempt := 1; ; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if !isRetriable(err) || attempt > retries {
			return zero, err
		}

		delay := baseDelay << (attempt - 1)
		if delay > maxDelay {
			delay = maxDelay
		}
		delay = time.Duration(float64(delay) * (0.75 + rand.Float64()*0.25))
		if errors.Is(err, apperr.ErrThrottled) && delay < throttleFloor {
			delay = throttleFloor
		}
		if err := sleepContext(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// sleepContext waits for delay or until ctx is done.
func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
