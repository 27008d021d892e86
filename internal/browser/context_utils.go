// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context derived from primary that is also canceled
// when secondary is done. Values come from primary only, which matters for
// chromedp where the primary context carries the target connection and the
// secondary one carries the caller's deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext keeps the parent's values but drops its deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but is not canceled with it.
// Cleanup paths use it so a session can still be closed after the request that
// owned it was canceled.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
