package storage

import (
	"context"
	"errors"
	"time"
)

// Retryer retries transient store operations with exponential backoff. Once
// the attempt budget is exhausted the last error propagates and is fatal to
// the current run; there is no cross-chunk rollback.
//
// Zero values get defaults: 5 attempts, 100ms initial backoff, 3s cap.
type Retryer struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration

	// sleep is injectable so tests run without real waits.
	sleep func(time.Duration)
}

// Do runs op, retrying on error until the attempt budget runs out or ctx is
// done. Context errors are never retried.
func (r Retryer) Do(ctx context.Context, op func() error) error {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	backoff := r.Initial
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	max := r.Max
	if max <= 0 {
		max = 3 * time.Second
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt >= attempts {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sleep(backoff)
		backoff *= 2
		if backoff > max {
			backoff = max
		}
	}
}
