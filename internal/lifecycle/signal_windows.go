//go:build windows

package lifecycle

import "context"

// WatchSignals has no job-control signals to watch on Windows; it blocks until ctx is done.
func WatchSignals(ctx context.Context, b *Broadcaster) {
	<-ctx.Done()
}
