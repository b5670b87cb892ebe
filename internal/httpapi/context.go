package httpapi

import (
	"context"
)

// joinContexts returns a context that is canceled when either the process
// base context or the request context is done. The returned cancel func must
// be called when the handler ends to release the goroutine.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		}
	}()
	return ctx, cancel
}
