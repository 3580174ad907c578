package workers

import (
	"context"
	"time"

	"gomultibridge/logger"
)

// retry delay after the change feed drops
const watchRetry = 5 * time.Second

type tracker interface {
	Track(ctx context.Context)
}

// Worker_tracking runs the reconciler loop until ctx ends
func Worker_tracking(ctx context.Context, t tracker, log logger.Logger) {
	log.Info("starting tracking worker", nil)
	t.Track(ctx)
	log.Info("tracking worker stopped", nil)
}

type watcher interface {
	Watch(ctx context.Context) error
}

// Worker_watchStore forwards store changes made by other instances, and
// resubscribes after a dropped connection
func Worker_watchStore(ctx context.Context, w watcher, log logger.Logger) {
	for ctx.Err() == nil {
		err := w.Watch(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warn("store change feed dropped, resubscribing", map[string]any{"error": err})

		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRetry):
		}
	}
}
