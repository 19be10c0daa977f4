package pubsub

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// processInterval is the receive timeout workers block on, bounding how
// long shutdown waits.
const processInterval = 100 * time.Millisecond

// Serve drives the given queues with one worker goroutine each until ctx
// is cancelled. It blocks until every worker has returned; callbacks still
// queued at cancellation stay in their queues.
func Serve(ctx context.Context, queues ...*Queue) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				q.Process(processInterval)
			}
		})
	}
	return g.Wait()
}

// Drain runs queued callbacks until the queue is empty, for tests and
// synchronous shutdown paths.
func Drain(q *Queue) {
	for q.Process(0) {
	}
}
