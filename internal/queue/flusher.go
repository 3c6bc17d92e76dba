package queue

import (
	"context"
	"time"

	"github.com/bassista/fitsync/internal/logger"
)

// StartFlushLoop runs a goroutine that flushes the queue on an interval
// with exponential backoff: a failed flush doubles the wait up to ceiling,
// any fully successful flush resets it to base. On ctx.Done it attempts a
// final flush before returning. Returns a channel closed on shutdown.
func StartFlushLoop(ctx context.Context, q *Queue, base, ceiling time.Duration) <-chan struct{} {
	done := make(chan struct{})
	logger.WithComponent("sync").Debugf("starting flush loop, base %v, ceiling %v", base, ceiling)

	go func() {
		defer close(done)

		interval := base
		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.WithComponent("sync").Debug("flush loop received context cancellation, attempting final flush")
				// Final flush on shutdown with a short independent deadline
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				q.Flush(flushCtx)
				cancel()
				logger.WithComponent("sync").Info("flush loop stopped")
				return
			case <-timer.C:
				res := q.Flush(ctx)
				switch res.Status {
				case FlushFailed:
					interval = interval * 2
					if interval > ceiling {
						interval = ceiling
					}
					logger.WithComponent("sync").Debugf("flush failed, backing off to %v", interval)
				case FlushCompleted:
					interval = base
				}
				timer.Reset(interval)
			}
		}
	}()

	return done
}
