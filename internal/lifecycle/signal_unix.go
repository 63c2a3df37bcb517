//go:build !windows

package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WatchSignals publishes job-control transitions until ctx is done. SIGCONT
// means the process was resumed after being stopped; SIGUSR1 lets a desktop
// hook report that the user returned.
func WatchSignals(ctx context.Context, b *Broadcaster) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGCONT, syscall.SIGUSR1)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			// a stop is never observable, so mark background first to let
			// Publish deliver the foreground edge again
			b.Publish(Background)
			b.Publish(Foreground)
		}
	}
}
