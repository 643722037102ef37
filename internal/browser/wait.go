package browser

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned by Poll when the condition never held.
var ErrWaitTimeout = errors.New("condition not met before timeout")

// Probe reports whether a condition holds. A non-nil error stops polling.
type Probe func(ctx context.Context) (bool, error)

// minCheckTimeout is the least time one check may take before it counts as
// a miss.
const minCheckTimeout = time.Second

// Poll evaluates check every interval until it reports true or returns an
// error, or until timeout elapses. The first evaluation is immediate. Each
// check runs under a context that ends with the wait and is capped at twice
// the interval, so a hung check cannot outlast timeout. A check that fails
// only because its own time ran out is treated as a miss.
func Poll(ctx context.Context, interval, timeout time.Duration, check Probe) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	limit := max(2*interval, minCheckTimeout)
	for {
		checkCtx, cancelCheck := context.WithTimeout(waitCtx, limit)
		ok, err := check(checkCtx)
		expired := checkCtx.Err() != nil
		cancelCheck()

		switch {
		case err == nil && ok:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case waitCtx.Err() != nil:
			return ErrWaitTimeout
		case err != nil && !expired:
			return err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
