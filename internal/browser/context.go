package browser

import (
	"context"
	"time"
)

// CombineContext returns a context carrying tab's values (the chromedp
// target) that is canceled when either tab or op is done. Deadlines are
// inherited from tab only; op's deadline surfaces as cancellation.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(op, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

type detached struct {
	context.Context
}

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }

// Detach returns a context with ctx's values that is never canceled. The
// browser process is rooted in one so that it outlives the command context
// during an operator handoff.
func Detach(ctx context.Context) context.Context {
	return detached{ctx}
}
